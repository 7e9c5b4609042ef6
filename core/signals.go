package core

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/josephlewis42/smash/core/logger"
)

var (
	// InteractiveSignals are relayed to a shell reading from a user.
	InteractiveSignals = []os.Signal{syscall.SIGTSTP, syscall.SIGINT, syscall.SIGALRM}
	// ChildSignals are relayed to a shell running a single line. Stop and
	// interrupt keep their default action so they reach the whole group.
	ChildSignals = []os.Signal{syscall.SIGALRM}
)

// SignalBridge queues OS signals for the shell's dispatch goroutine, which is
// the only place job state changes.
type SignalBridge struct {
	ch chan os.Signal
}

// NewSignalBridge starts relaying sigs.
func NewSignalBridge(sigs ...os.Signal) *SignalBridge {
	b := &SignalBridge{ch: make(chan os.Signal, 16)}
	signal.Notify(b.ch, sigs...)
	return b
}

// C returns the channel signals are delivered on.
func (b *SignalBridge) C() <-chan os.Signal {
	return b.ch
}

// Close stops relaying signals; they get their default action again.
func (b *SignalBridge) Close() error {
	signal.Stop(b.ch)
	return nil
}

func (s *Shell) handleSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGTSTP:
		s.onStop()
	case syscall.SIGINT:
		s.onInterrupt()
	case syscall.SIGALRM:
		s.onAlarm()
	}
}

// onStop suspends the foreground job and files it in the job table.
func (s *Shell) onStop() {
	fmt.Fprintln(s.IO.Stdout, "smash: got ctrl-Z")
	if s.fg == nil {
		return
	}

	if err := s.procs.Signal(s.fg.PID, syscall.SIGSTOP); err != nil {
		s.errorf("%v", err)
		return
	}
	s.stopForeground()
	fmt.Fprintf(s.IO.Stdout, "smash: process %d was stopped\n", s.fg.PID)
	s.fg = nil
}

// stopForeground puts the foreground job in the job table as stopped, under
// its old job ID if it had one.
func (s *Shell) stopForeground() {
	job := s.Jobs.Add(s.fg.Command, s.fg.PID, true, s.fg.ID)
	s.fg.ID = job.ID
	s.fg.Stopped = true
	s.record(logger.Event{Type: logger.JobStopped, JobID: job.ID, PID: job.PID, Command: job.Command.Original})
}

// onInterrupt kills the foreground job.
func (s *Shell) onInterrupt() {
	fmt.Fprintln(s.IO.Stdout, "smash: got ctrl-C")
	if s.fg == nil {
		return
	}

	sig := s.config.Signal()
	if err := s.procs.Signal(s.fg.PID, sig); err != nil {
		s.errorf("%v", err)
		return
	}
	fmt.Fprintf(s.IO.Stdout, "smash: process %d was killed\n", s.fg.PID)
	s.record(logger.Event{Type: logger.JobKilled, JobID: s.fg.ID, PID: s.fg.PID, Command: s.fg.Command.Original, Signal: int(sig)})
}

// onAlarm kills timed jobs that are past their deadline.
func (s *Shell) onAlarm() {
	fmt.Fprintln(s.IO.Stdout, "smash: got an alarm")

	killed, err := s.Timeouts.HandleAlarm(s.IO.Stdout)
	for _, job := range killed {
		s.record(logger.Event{Type: logger.JobTimedOut, JobID: job.ID, PID: job.PID, Command: job.Command.Original})
	}
	s.reportJoined(err)
}
