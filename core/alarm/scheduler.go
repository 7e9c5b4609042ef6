// Package alarm kills jobs that outlive their deadline.
//
// Deadlines are grouped into one-second buckets and only the earliest bucket
// has the operating system alarm armed at any time. When the alarm fires,
// every bucket that is due is handled, so an alarm that is delivered late
// does not strand a deadline.
package alarm

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"syscall"
	"time"

	"github.com/josephlewis42/smash/core/jobs"
)

// Scheduler is the deadline-ordered registry of timed jobs.
//
// Scheduler is not safe for concurrent use; the shell drives it only from its
// dispatch goroutine, including when handling SIGALRM.
type Scheduler struct {
	// KillSignal is sent to jobs still alive at their deadline.
	KillSignal syscall.Signal

	timer Timer
	procs jobs.Processes
	now   func() time.Time

	buckets map[int64][]*jobs.Job
	// keys holds the bucket keys in ascending order.
	keys []int64
}

// New creates an empty scheduler. If now is nil, time.Now is used.
func New(timer Timer, procs jobs.Processes, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		KillSignal: syscall.SIGKILL,
		timer:      timer,
		procs:      procs,
		now:        now,
		buckets:    make(map[int64][]*jobs.Job),
	}
}

// bucketKey rounds the deadline up to the next whole second.
func bucketKey(deadline time.Time) int64 {
	key := deadline.Unix()
	if deadline.After(time.Unix(key, 0)) {
		key++
	}
	return key
}

// Add schedules job to be killed at deadline and re-arms the alarm for the
// earliest pending deadline.
func (s *Scheduler) Add(deadline time.Time, job *jobs.Job) error {
	key := bucketKey(deadline)
	if _, ok := s.buckets[key]; !ok {
		idx := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= key })
		s.keys = append(s.keys, 0)
		copy(s.keys[idx+1:], s.keys[idx:])
		s.keys[idx] = key
	}
	s.buckets[key] = append(s.buckets[key], job)

	return s.rearm()
}

// HandleAlarm kills every timed job whose deadline has passed and is still
// alive, reporting each to w, then re-arms the alarm. It returns the jobs that
// were killed; jobs that could not be signalled are dropped and their errors
// joined into the returned error.
func (s *Scheduler) HandleAlarm(w io.Writer) ([]*jobs.Job, error) {
	now := s.now().Unix()

	var killed []*jobs.Job
	var errs []error
	for len(s.keys) > 0 && s.keys[0] <= now {
		key := s.keys[0]
		for _, job := range s.buckets[key] {
			if s.procs.Reap(job.PID) {
				continue
			}
			if err := s.procs.Signal(job.PID, s.KillSignal); err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Fprintf(w, "smash: %s timed out!\n", job.Command.Original)
			killed = append(killed, job)
		}

		delete(s.buckets, key)
		s.keys = s.keys[1:]
	}

	errs = append(errs, s.rearm())
	return killed, errors.Join(errs...)
}

// Remove forgets the timed job with job's pid, which has already been
// collected, so the pid is never signalled once the system reuses it. The alarm is re-armed or disarmed to
// match what is left.
func (s *Scheduler) Remove(job *jobs.Job) error {
	for i, key := range s.keys {
		bucket := s.buckets[key]
		for j, pending := range bucket {
			if pending.PID != job.PID {
				continue
			}

			bucket = append(bucket[:j], bucket[j+1:]...)
			if len(bucket) > 0 {
				s.buckets[key] = bucket
				return nil
			}

			delete(s.buckets, key)
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			if len(s.keys) == 0 {
				return s.timer.Disarm()
			}
			return s.rearm()
		}
	}
	return nil
}

func (s *Scheduler) rearm() error {
	if len(s.keys) == 0 {
		return nil
	}
	return s.timer.Arm(time.Unix(s.keys[0], 0).Sub(s.now()))
}

// Next returns the earliest pending deadline.
func (s *Scheduler) Next() (time.Time, bool) {
	if len(s.keys) == 0 {
		return time.Time{}, false
	}
	return time.Unix(s.keys[0], 0), true
}

// Len returns the number of pending timed jobs.
func (s *Scheduler) Len() int {
	n := 0
	for _, bucket := range s.buckets {
		n += len(bucket)
	}
	return n
}

// Stop disarms the alarm. Pending jobs stay registered.
func (s *Scheduler) Stop() error {
	return s.timer.Disarm()
}
