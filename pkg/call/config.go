package call

import "time"

// Configuration of the call engine.
type Config struct {
	// How long an incoming call rings before it is declined automatically.
	RingingTimeout time.Duration `yaml:"ringingTimeout"`
	// For how long after dismissing an incoming call notice a repeated
	// call-start is swallowed instead of ringing again. Guards against the
	// caller's retries re-opening a notice the user just declined.
	NoticeGracePeriod time.Duration `yaml:"noticeGracePeriod"`
}

func (c Config) withDefaults() Config {
	if c.RingingTimeout == 0 {
		c.RingingTimeout = 30 * time.Second
	}
	if c.NoticeGracePeriod == 0 {
		c.NoticeGracePeriod = 5 * time.Second
	}
	return c
}
