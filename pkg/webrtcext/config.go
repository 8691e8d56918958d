package webrtcext

// Configuration of the WebRTC API for call peers.
type Config struct {
	// STUN/TURN servers handed to every peer connection.
	ICEServers []string `yaml:"iceServers"`
}

func (c Config) withDefaults() Config {
	if len(c.ICEServers) == 0 {
		c.ICEServers = []string{"stun:stun.l.google.com:19302"}
	}
	return c
}
