package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/remindly/callcore/pkg/call"
	"github.com/remindly/callcore/pkg/relay"
	"github.com/remindly/callcore/pkg/signaling"
	"github.com/remindly/callcore/pkg/telemetry"
	"github.com/remindly/callcore/pkg/webrtcext"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Application configuration, shared by the relay and the call client.
type Config struct {
	// Who we are towards the relay (client side only).
	Identity signaling.StaticCredentials `yaml:"identity"`
	// Signaling channel configuration (client side only).
	Signaling signaling.Config `yaml:"signaling"`
	// WebRTC configuration.
	WebRTC webrtcext.Config `yaml:"webrtc"`
	// Call engine configuration.
	Call call.Config `yaml:"call"`
	// Relay server configuration (relay side only).
	Relay relay.Config `yaml:"relay"`
	// Telemetry configuration.
	Telemetry telemetry.Config `yaml:"telemetry"`
	// Starting from which level to log stuff.
	LogLevel string `yaml:"log"`
}

// Tries to load a config from the `CONFIG` environment variable.
// If the environment variable is not set, tries to load a config from the
// provided path to the config file (YAML). Returns an error if the config
// could not be loaded.
func LoadConfig(path string) (*Config, error) {
	config, err := LoadConfigFromEnv()
	if err != nil {
		if !errors.Is(err, ErrNoConfigEnvVar) {
			return nil, err
		}

		return LoadConfigFromPath(path)
	}

	return config, nil
}

// ErrNoConfigEnvVar is returned when the CONFIG environment variable is not set.
var ErrNoConfigEnvVar = errors.New("environment variable not set or invalid")

// Tries to load the config from environment variable (`CONFIG`).
// Returns an error if not all environment variables are set.
func LoadConfigFromEnv() (*Config, error) {
	configEnv := os.Getenv("CONFIG")
	if configEnv == "" {
		return nil, ErrNoConfigEnvVar
	}

	return LoadConfigFromString(configEnv)
}

// Tries to load a config from the provided path.
func LoadConfigFromPath(path string) (*Config, error) {
	logrus.WithField("path", path).Info("loading config")

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return LoadConfigFromString(string(file))
}

// Load config from the provided string.
// Returns an error if the string is not a valid YAML.
func LoadConfigFromString(configString string) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(configString), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML file: %w", err)
	}

	return &config, nil
}
