package alarm

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Timer is a single one-shot operating system alarm. Arming it again replaces
// any pending alarm.
type Timer interface {
	Arm(d time.Duration) error
	Disarm() error
}

// ITimer delivers SIGALRM to the process using the real interval timer.
type ITimer struct{}

var _ Timer = ITimer{}

// Arm implements Timer.Arm. Durations below one microsecond are rounded up so
// an already expired deadline still fires.
func (ITimer) Arm(d time.Duration) error {
	if d < time.Microsecond {
		d = time.Microsecond
	}
	return setitimer(unix.NsecToTimeval(d.Nanoseconds()))
}

// Disarm implements Timer.Disarm.
func (ITimer) Disarm() error {
	return setitimer(unix.Timeval{})
}

func setitimer(value unix.Timeval) error {
	if _, err := unix.Setitimer(unix.ItimerReal, unix.Itimerval{Value: value}); err != nil {
		return fmt.Errorf("setitimer failed: %w", err)
	}
	return nil
}
