// Package jobstest provides in-memory stand-ins for the process calls and clock
// used by the job table and the alarm scheduler.
package jobstest

import (
	"fmt"
	"syscall"
	"time"
)

// SentSignal records one call to Processes.Signal.
type SentSignal struct {
	PID    int
	Signal syscall.Signal
}

// Processes is a fake jobs.Processes. Pids in Exited reap successfully; pids
// that were sent SIGKILL or SIGTERM exit as well.
type Processes struct {
	Exited   map[int]bool
	Signals  []SentSignal
	Affinity map[int]int
	// Reaped counts calls to Reap per pid.
	Reaped map[int]int
	// SignalErr, if set, is returned from every Signal call.
	SignalErr error
}

// NewProcesses creates a fake with no exited processes.
func NewProcesses() *Processes {
	return &Processes{
		Exited:   make(map[int]bool),
		Affinity: make(map[int]int),
		Reaped:   make(map[int]int),
	}
}

// Exit marks pids as having exited.
func (p *Processes) Exit(pids ...int) {
	for _, pid := range pids {
		p.Exited[pid] = true
	}
}

func (p *Processes) Reap(pid int) bool {
	p.Reaped[pid]++
	return p.Exited[pid]
}

func (p *Processes) Signal(pid int, sig syscall.Signal) error {
	if p.SignalErr != nil {
		return p.SignalErr
	}
	p.Signals = append(p.Signals, SentSignal{PID: pid, Signal: sig})
	if sig == syscall.SIGKILL || sig == syscall.SIGTERM {
		p.Exit(pid)
	}
	return nil
}

func (p *Processes) SetAffinity(pid int, core int) error {
	if core < 0 {
		return fmt.Errorf("sched_setaffinity failed: %w", syscall.EINVAL)
	}
	p.Affinity[pid] = core
	return nil
}

// Clock is a manually advanced time source.
type Clock struct {
	Current time.Time
}

// NewClock creates a clock stopped at start.
func NewClock(start time.Time) *Clock {
	return &Clock{Current: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	return c.Current
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.Current = c.Current.Add(d)
}
