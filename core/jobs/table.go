// Package jobs tracks the child processes the shell has handed off to the
// background or that were stopped while in the foreground.
package jobs

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"syscall"
	"time"

	"github.com/josephlewis42/smash/core/shell"
	"golang.org/x/sys/unix"
)

// Job is one tracked child process.
type Job struct {
	// ID is zero until the job has been put in a Table.
	ID      int
	Command *shell.Command
	PID     int
	Started time.Time
	Stopped bool
}

// Elapsed returns the whole seconds since the job started.
func (j *Job) Elapsed(now time.Time) int64 {
	return int64(now.Sub(j.Started) / time.Second)
}

// Table is the registry of live jobs, kept in ascending ID order.
//
// Table is not safe for concurrent use; the shell mutates it only from its
// dispatch goroutine.
type Table struct {
	procs Processes
	now   func() time.Time
	jobs  []*Job
}

// NewTable creates an empty table. If now is nil, time.Now is used.
func NewTable(procs Processes, now func() time.Time) *Table {
	if now == nil {
		now = time.Now
	}
	return &Table{procs: procs, now: now}
}

// Add registers pid, running cmd, as a job. The new job gets the largest
// current ID plus one unless id is non-zero, in which case it is used as-is;
// callers must not pass an ID that is already present.
func (t *Table) Add(cmd *shell.Command, pid int, stopped bool, id int) *Job {
	if id == 0 {
		id = t.maxID() + 1
	}

	job := &Job{
		ID:      id,
		Command: cmd,
		PID:     pid,
		Started: t.now(),
		Stopped: stopped,
	}

	idx := sort.Search(len(t.jobs), func(i int) bool { return t.jobs[i].ID > id })
	t.jobs = append(t.jobs, nil)
	copy(t.jobs[idx+1:], t.jobs[idx:])
	t.jobs[idx] = job

	return job
}

func (t *Table) maxID() int {
	if len(t.jobs) == 0 {
		return 0
	}
	return t.jobs[len(t.jobs)-1].ID
}

// Get returns the live job with the given ID.
func (t *Table) Get(id int) (*Job, bool) {
	t.RemoveFinished()
	for _, job := range t.jobs {
		if job.ID == id {
			return job, true
		}
	}
	return nil, false
}

// Remove drops the job with the given ID, if present.
func (t *Table) Remove(id int) {
	for i, job := range t.jobs {
		if job.ID == id {
			t.jobs = append(t.jobs[:i], t.jobs[i+1:]...)
			return
		}
	}
}

// Last returns the live job with the highest ID.
func (t *Table) Last() (*Job, bool) {
	t.RemoveFinished()
	if len(t.jobs) == 0 {
		return nil, false
	}
	return t.jobs[len(t.jobs)-1], true
}

// LastStopped returns the stopped job with the highest ID.
func (t *Table) LastStopped() (*Job, bool) {
	t.RemoveFinished()
	for i := len(t.jobs) - 1; i >= 0; i-- {
		if t.jobs[i].Stopped {
			return t.jobs[i], true
		}
	}
	return nil, false
}

// RemoveFinished reaps every tracked process that has exited and drops its job.
func (t *Table) RemoveFinished() {
	live := t.jobs[:0]
	for _, job := range t.jobs {
		if !t.procs.Reap(job.PID) {
			live = append(live, job)
		}
	}
	for i := len(live); i < len(t.jobs); i++ {
		t.jobs[i] = nil
	}
	t.jobs = live
}

// KillAll sends sig to every live job in ascending ID order, reporting each
// one to w, and returns how many jobs were signalled. The table is left empty.
// Jobs that exited in the meantime are skipped silently; every other failure
// is joined into the returned error.
func (t *Table) KillAll(w io.Writer, sig syscall.Signal) (int, error) {
	t.RemoveFinished()

	fmt.Fprintf(w, "smash: sending %s signal to %d jobs:\n", unix.SignalName(sig), len(t.jobs))
	var errs []error
	for _, job := range t.jobs {
		fmt.Fprintf(w, "%d: %s\n", job.PID, job.Command.Original)
		if err := t.procs.Signal(job.PID, sig); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, err)
		}
	}

	n := len(t.jobs)
	t.jobs = nil
	return n, errors.Join(errs...)
}

// Print writes the live jobs to w in ascending ID order.
func (t *Table) Print(w io.Writer) {
	t.RemoveFinished()

	now := t.now()
	for _, job := range t.jobs {
		fmt.Fprintf(w, "[%d] %s : %d %d secs", job.ID, job.Command.Original, job.PID, job.Elapsed(now))
		if job.Stopped {
			fmt.Fprint(w, " (stopped)")
		}
		fmt.Fprintln(w)
	}
}

// Jobs returns a snapshot of the tracked jobs without reaping.
func (t *Table) Jobs() []*Job {
	out := make([]*Job, len(t.jobs))
	copy(out, t.jobs)
	return out
}

// Len returns the number of tracked jobs without reaping.
func (t *Table) Len() int {
	return len(t.jobs)
}
