package signaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectSchedule(t *testing.T) {
	schedule := reconnectSchedule(Config{}.withDefaults())

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, schedule.NextBackOff(), "delay #%d", i)
	}

	// A successful connection resets the schedule to the base delay.
	schedule.Reset()
	assert.Equal(t, time.Second, schedule.NextBackOff())
}
