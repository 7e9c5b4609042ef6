package logger

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       StrCounter `json:"sessions"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	RunCommand RunCommandReport `json:"run_command_report"`
	Jobs       JobReport        `json:"job_report"`
	Errors     *PathCounter     `json:"command_errors"`
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{
		Errors: NewPathCounter("command", "error"),
	}
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++
	r.Sessions.Increment(le.SessionID)

	switch le.Type {
	case RunCommand:
		r.RunCommand.update(&le.Event)
	case JobStarted, JobStopped, JobResumed, JobKilled, JobSignaled, JobTimedOut:
		r.Jobs.update(&le.Event)
	case CommandError:
		if r.Errors == nil {
			r.Errors = NewPathCounter("command", "error")
		}
		r.Errors.Increment(le.Command, le.Error)
	default:
		r.InvalidEntries.Increment(string(le.Type))
	}
}

type RunCommandReport struct {
	// Kind of each dispatched command.
	Kinds StrCounter `json:"kinds"`
	// Full text of each dispatched command.
	Commands StrCounter `json:"commands"`
}

func (r *RunCommandReport) update(e *Event) {
	r.Kinds.Increment(e.Kind)
	r.Commands.Increment(e.Command)
}

type JobReport struct {
	// Transitions counts events by type.
	Transitions StrCounter `json:"transitions"`
	// Signals counts signals sent with kill, by number.
	Signals StrCounter `json:"signals"`
	// TimedOut lists commands killed at their deadline.
	TimedOut []string `json:"timed_out"`
}

func (r *JobReport) update(e *Event) {
	r.Transitions.Increment(string(e.Type))

	switch e.Type {
	case JobSignaled:
		r.Signals.Increment(strconv.Itoa(e.Signal))
	case JobTimedOut:
		r.TimedOut = append(r.TimedOut, e.Command)
	}
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of distinct tuples seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
