package session

import (
	"sync"
	"time"
)

// Timer fires a callback once after a delay unless cancelled first. The
// callback runs on its own goroutine.
type Timer struct {
	mu        sync.Mutex
	t         *time.Timer
	fired     bool
	cancelled bool
}

// ArmTimer schedules onFire to run after d.
func ArmTimer(d time.Duration, onFire func()) (*Timer, error) {
	if d <= 0 {
		return nil, ErrInvalidDuration
	}
	tm := &Timer{}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.t = time.AfterFunc(d, func() {
		tm.mu.Lock()
		if tm.cancelled {
			tm.mu.Unlock()
			return
		}
		tm.fired = true
		tm.mu.Unlock()
		onFire()
	})
	return tm, nil
}

// Cancel stops the timer. It returns true only when this call prevented the
// callback from starting; later calls and calls after the fire are no-ops.
func (tm *Timer) Cancel() bool {
	if tm == nil {
		return false
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.cancelled || tm.fired {
		return false
	}
	tm.cancelled = true
	tm.t.Stop()
	return true
}

// Fired reports whether the callback has started.
func (tm *Timer) Fired() bool {
	if tm == nil {
		return false
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.fired
}
