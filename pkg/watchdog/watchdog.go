package watchdog

import (
	"sync"
	"time"
)

// Watchdog runs a closure once no activity has been reported for a given timeout.
// We use it to implement the ringing timeout of a pending incoming call: the
// watchdog is armed when the call starts ringing and put down once the callee
// makes a decision.
type Watchdog struct {
	timeout   time.Duration
	onTimeout func()

	mutex      sync.Mutex
	notify     chan struct{}
	terminated chan struct{}
	closed     bool
	started    bool
}

func NewWatchdog(timeout time.Duration, onTimeout func()) *Watchdog {
	return &Watchdog{
		timeout:    timeout,
		onTimeout:  onTimeout,
		notify:     make(chan struct{}),
		terminated: make(chan struct{}),
	}
}

// Starts the watchdog loop. The returned channel is closed once the watchdog
// terminates (i.e. once `Close` is called). Calling `Start` more than once
// returns the same channel without spawning a second loop.
func (w *Watchdog) Start() <-chan struct{} {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.started || w.closed {
		return w.terminated
	}
	w.started = true

	go func() {
		defer close(w.terminated)
		for {
			select {
			case _, ok := <-w.notify:
				if !ok {
					return
				}
			case <-time.After(w.timeout):
				w.onTimeout()
			}
		}
	}()

	return w.terminated
}

// Notify the watchdog about activity, resetting its timeout.
// Returns `false` if the watchdog is already closed.
func (w *Watchdog) Notify() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return false
	}

	select {
	case w.notify <- struct{}{}:
	default:
		// The loop is busy executing the timeout closure; the notification
		// would have been absorbed by the next loop iteration anyway.
	}

	return true
}

// Close puts the watchdog down. Safe to call multiple times.
func (w *Watchdog) Close() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.closed {
		close(w.notify)
		w.closed = true
		if !w.started {
			// The loop never ran, so nobody will close `terminated` for us.
			close(w.terminated)
		}
	}
}
