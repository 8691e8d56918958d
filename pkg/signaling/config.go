package signaling

import "time"

// Configuration of the signaling channel.
type Config struct {
	// Base WebSocket URL of the relay, e.g. "wss://example.com/api/signaling".
	// The room identifier is appended as a path segment.
	URL string `yaml:"url"`
	// Initial reconnect delay after an abnormal close.
	ReconnectBaseDelay time.Duration `yaml:"reconnectBaseDelay"`
	// Upper bound on the reconnect delay.
	ReconnectMaxDelay time.Duration `yaml:"reconnectMaxDelay"`
	// How many consecutive failures we tolerate before giving up.
	ReconnectMaxAttempts int `yaml:"reconnectMaxAttempts"`
}

func (c Config) withDefaults() Config {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.ReconnectMaxAttempts == 0 {
		c.ReconnectMaxAttempts = 5
	}
	return c
}

// Credentials supplies the local participant's identity and bearer credential.
// The channel treats it as a read-only source and never refreshes or validates
// it; authenticating is the application's job.
type Credentials interface {
	UserID() string
	Username() string
	AccessToken() string
}

// Static credentials, e.g. loaded from the config file.
type StaticCredentials struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"username"`
	Token string `yaml:"token"`
}

func (c StaticCredentials) UserID() string      { return c.ID }
func (c StaticCredentials) Username() string    { return c.Name }
func (c StaticCredentials) AccessToken() string { return c.Token }
