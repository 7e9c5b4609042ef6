package jobs

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Processes is the set of operating system calls the job table makes on
// tracked children.
type Processes interface {
	// Reap collects pid without blocking and reports whether it has exited.
	Reap(pid int) bool
	// Signal delivers sig to the job rooted at pid.
	Signal(pid int, sig syscall.Signal) error
	// SetAffinity pins pid to a single CPU core.
	SetAffinity(pid int, core int) error
}

// OSProcesses controls real child processes.
type OSProcesses struct{}

var _ Processes = OSProcesses{}

// Reap implements Processes.Reap. A pid that is not our child any more counts
// as exited.
func (OSProcesses) Reap(pid int) bool {
	var status unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &status, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return true
		default:
			return wpid == pid && (status.Exited() || status.Signaled())
		}
	}
}

// Signal implements Processes.Signal. Every job leads its own process group so
// the whole group is signalled; a pid that is not a group leader (children of
// a child-mode shell) is signalled directly.
func (OSProcesses) Signal(pid int, sig syscall.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		err = unix.Kill(pid, sig)
	}
	if err != nil {
		return fmt.Errorf("kill failed: %w", err)
	}
	return nil
}

// SetAffinity implements Processes.SetAffinity.
func (OSProcesses) SetAffinity(pid int, core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(pid, &set); err != nil {
		return fmt.Errorf("sched_setaffinity failed: %w", err)
	}
	return nil
}
