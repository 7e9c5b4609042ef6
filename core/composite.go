package core

import (
	"errors"
	"os"
	"time"

	"github.com/josephlewis42/smash/core/jobs"
	"github.com/josephlewis42/smash/core/logger"
	"github.com/josephlewis42/smash/core/shell"
	"golang.org/x/sys/unix"
)

// runPipeline connects the two stages of cmd with a pipe and waits for both.
//
// Stages that are programs run as children in one process group, the left
// one leading it. Built-in stages run in the shell itself against their end
// of the pipe, after every child has been started so neither side can block
// the other.
func (s *Shell) runPipeline(cmd *shell.Command) {
	r, w, err := os.Pipe()
	if err != nil {
		s.errorf("pipe failed: %v", osError(err))
		return
	}

	left, right := s.IO, s.IO
	if cmd.Pipe.Stderr {
		left.Stderr = w
	} else {
		left.Stdout = w
	}
	right.Stdin = r

	var pids []int
	pgid := 0
	startStage := func(stage *shell.Command, stdio IO) error {
		if stage.Kind == shell.BuiltIn {
			return nil
		}
		pid, err := s.start(stage, stdio, pgid)
		if err != nil {
			return err
		}
		if pgid == 0 {
			pgid = pid
		}
		pids = append(pids, pid)
		return nil
	}

	for _, stage := range []struct {
		cmd   *shell.Command
		stdio IO
	}{
		{cmd.Pipe.Left, left},
		{cmd.Pipe.Right, right},
	} {
		err := startStage(stage.cmd, stage.stdio)
		switch {
		case errors.Is(err, ErrForkFailed):
			s.errorf("%v", err)
			w.Close()
			r.Close()
			s.waitAll(pids)
			return
		case err != nil:
			// The stage never runs; its neighbour sees end of file.
			s.errorf("%v", err)
		}
	}

	if cmd.Pipe.Left.Kind == shell.BuiltIn {
		s.withIO(left, func() { s.execute(cmd.Pipe.Left) })
	}
	w.Close()

	if cmd.Pipe.Right.Kind == shell.BuiltIn {
		s.withIO(right, func() { s.execute(cmd.Pipe.Right) })
	}
	r.Close()

	s.waitAll(pids)
}

// waitAll waits for each pid to exit, in order.
func (s *Shell) waitAll(pids []int) {
	for _, pid := range pids {
		if _, err := s.wait(pid, false); err != nil && !errors.Is(err, unix.ECHILD) {
			s.errorf("waitpid failed: %v", err)
		}
	}
}

// runRedirection runs the inner command with standard output sent to the
// target file.
func (s *Shell) runRedirection(cmd *shell.Command) {
	flags := os.O_CREATE | os.O_WRONLY
	if cmd.Redirect.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(cmd.Redirect.Target, flags, 0666)
	if err != nil {
		s.errorf("open failed: %v", osError(err))
		return
	}
	defer f.Close()

	stdio := s.IO
	stdio.Stdout = f
	s.withIO(stdio, func() { s.execute(cmd.Redirect.Inner) })
}

// runTimeout starts the inner command and schedules it to be killed at the
// deadline. It runs in the foreground unless the inner command asked for the
// background.
func (s *Shell) runTimeout(cmd *shell.Command) {
	if cmd.Timed == nil {
		s.errorf("timeout: invalid arguments")
		return
	}
	inner := cmd.Timed.Inner

	pid, err := s.start(inner, s.IO, 0)
	if err != nil {
		s.errorf("%v", err)
		return
	}

	deadline := s.now().Add(time.Duration(cmd.Timed.Seconds) * time.Second)

	var job *jobs.Job
	if inner.Background {
		job = s.Jobs.Add(cmd, pid, false, 0)
		s.record(logger.Event{Type: logger.JobStarted, JobID: job.ID, PID: pid, Command: cmd.Original})
	} else {
		job = &jobs.Job{Command: cmd, PID: pid, Started: s.now()}
	}

	if err := s.Timeouts.Add(deadline, job); err != nil {
		s.errorf("%v", err)
	}

	if !inner.Background {
		s.foreground(job)
	}
}
