package relay

// Configuration of the signaling relay.
type Config struct {
	// Address the relay listens on, e.g. ":8085".
	Address string `yaml:"address"`
	// Shared HMAC secret the access tokens are signed with.
	JWTSecret string `yaml:"jwtSecret"`
}
