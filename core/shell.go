package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/josephlewis42/smash/commands"
	"github.com/josephlewis42/smash/core/alarm"
	"github.com/josephlewis42/smash/core/config"
	"github.com/josephlewis42/smash/core/jobs"
	"github.com/josephlewis42/smash/core/logger"
	"github.com/josephlewis42/smash/core/shell"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// Options holds the collaborators of a Shell. Zero values select the real
// operating system.
type Options struct {
	IO        IO
	Processes jobs.Processes
	Timer     alarm.Timer
	Clock     func() time.Time
	Launcher  *Launcher
	Fs        afero.Fs
	Events    *logger.SessionLogger
	// Signals delivers the OS signals the shell reacts to; see SignalBridge.
	Signals <-chan os.Signal
	// Interactive shells keep stopped children as jobs. Shells running a
	// single line for another shell only wait for their children to exit.
	Interactive bool
}

// Shell is the state of one running shell: its title, the last working
// directory, the job table, the timeout scheduler and the foreground slot.
//
// All of it is owned by the goroutine that calls Run or RunCommand. Signals
// are received on that goroutine too, while it waits for input or for a
// foreground child.
type Shell struct {
	Title    string
	IO       IO
	Jobs     *jobs.Table
	Timeouts *alarm.Scheduler
	Launcher *Launcher
	Parser   *shell.Parser

	config      *config.Configuration
	events      *logger.SessionLogger
	signals     <-chan os.Signal
	procs       jobs.Processes
	now         func() time.Time
	fs          afero.Fs
	color       commands.ColorPrinter
	interactive bool
	toClose     listCloser

	lastWD string
	// fg is set only while the shell is blocked waiting on it.
	fg      *jobs.Job
	current *shell.Command
	quit    bool
}

// NewShell creates a shell from the configuration.
func NewShell(cfg *config.Configuration, opts Options) *Shell {
	if opts.IO == (IO{}) {
		opts.IO = StdIO()
	}
	if opts.Processes == nil {
		opts.Processes = jobs.OSProcesses{}
	}
	if opts.Timer == nil {
		opts.Timer = alarm.ITimer{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Launcher == nil {
		opts.Launcher = NewLauncher(nil, cfg.ComplexShell, cfg.FallbackPath)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Events == nil {
		opts.Events = logger.Discard().Sessionless()
	}

	s := &Shell{
		Title:    cfg.Prompt,
		IO:       opts.IO,
		Jobs:     jobs.NewTable(opts.Processes, opts.Clock),
		Timeouts: alarm.New(opts.Timer, opts.Processes, opts.Clock),
		Launcher: opts.Launcher,
		Parser: &shell.Parser{
			IsBuiltin:     IsBuiltin,
			MaxArgs:       cfg.MaxArgs,
			MaxLineLength: cfg.MaxLineLength,
		},

		config:      cfg,
		events:      opts.Events,
		signals:     opts.Signals,
		procs:       opts.Processes,
		now:         opts.Clock,
		fs:          opts.Fs,
		color:       commands.ColorPrinter{Mode: cfg.Color},
		interactive: opts.Interactive,
	}
	s.Timeouts.KillSignal = cfg.Signal()

	return s
}

// AddCloser registers c to be closed with the shell.
func (s *Shell) AddCloser(c io.Closer) {
	s.toClose = append(s.toClose, c)
}

// Close releases everything registered with AddCloser.
func (s *Shell) Close() error {
	return s.toClose.Close()
}

// Prompt returns the text shown before each line is read.
func (s *Shell) Prompt() string {
	return s.color.Sprintf(commands.ColorBoldBlue, "%s> ", s.Title)
}

// Quitting reports whether quit has been run.
func (s *Shell) Quitting() bool {
	return s.quit
}

type readResult struct {
	line string
	err  error
}

// lineReader reads one line from r each time one is requested, so the shell
// never consumes input meant for a foreground child.
type lineReader struct {
	requests chan struct{}
	results  chan readResult
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{
		requests: make(chan struct{}),
		results:  make(chan readResult, 1),
	}

	go func() {
		reader := bufio.NewReader(r)
		for range lr.requests {
			line, err := reader.ReadString('\n')
			lr.results <- readResult{line: line, err: err}
			if err != nil {
				return
			}
		}
	}()

	return lr
}

// next requests a line and waits for it, handling signals that arrive in the
// meantime.
func (s *Shell) next(lr *lineReader) readResult {
	lr.requests <- struct{}{}
	for {
		select {
		case res := <-lr.results:
			return res
		case sig := <-s.signals:
			s.handleSignal(sig)
		}
	}
}

// Run reads lines from r and dispatches them until quit is run or r is
// exhausted.
func (s *Shell) Run(r io.Reader) error {
	lr := newLineReader(r)
	defer close(lr.requests)

	for !s.quit {
		fmt.Fprint(s.IO.Stdout, s.Prompt())

		res := s.next(lr)
		line := strings.TrimRight(res.line, "\r\n")
		if strings.TrimSpace(line) != "" {
			s.Jobs.RemoveFinished()
			s.Dispatch(line)
		}

		switch {
		case res.err == io.EOF:
			return nil
		case res.err != nil:
			return res.err
		}
	}

	return nil
}

// RunCommand dispatches a single line and returns the shell's exit status.
func (s *Shell) RunCommand(line string) int {
	s.Dispatch(line)
	return 0
}

// Dispatch parses and runs one line.
func (s *Shell) Dispatch(line string) {
	cmd, err := s.Parser.Parse(line)
	if err != nil {
		s.errorf("%v", err)
		return
	}

	s.record(logger.Event{Type: logger.RunCommand, Command: cmd.Original, Kind: cmd.Kind.String()})
	s.execute(cmd)
}

func (s *Shell) execute(cmd *shell.Command) {
	prev := s.current
	s.current = cmd
	defer func() { s.current = prev }()

	switch cmd.Kind {
	case shell.BuiltIn:
		s.runBuiltin(cmd)
	case shell.External:
		s.runExternal(cmd)
	case shell.Pipeline:
		s.runPipeline(cmd)
	case shell.Redirection:
		s.runRedirection(cmd)
	case shell.Timeout:
		s.runTimeout(cmd)
	}
}

func (s *Shell) runBuiltin(cmd *shell.Command) int {
	builtin, ok := AllBuiltins[cmd.Name()]
	if !ok {
		s.errorf("%s: command not found", cmd.Name())
		return 127
	}
	return builtin.Main(s, cmd.Args)
}

func (s *Shell) runExternal(cmd *shell.Command) {
	pid, err := s.start(cmd, s.IO, 0)
	if err != nil {
		s.errorf("%v", err)
		return
	}
	s.place(cmd, pid)
}

// start launches cmd as a child process in process group pgid, or in a new
// group if pgid is zero.
func (s *Shell) start(cmd *shell.Command, stdio IO, pgid int) (int, error) {
	return s.Launcher.Start(cmd, stdio, pgid)
}

// place either tracks pid as a background job or waits for it in the
// foreground.
func (s *Shell) place(cmd *shell.Command, pid int) {
	if cmd.Background {
		job := s.Jobs.Add(cmd, pid, false, 0)
		s.record(logger.Event{Type: logger.JobStarted, JobID: job.ID, PID: pid, Command: cmd.Original})
		return
	}

	s.foreground(&jobs.Job{Command: cmd, PID: pid, Started: s.now()})
}

// foreground occupies the foreground slot with job until it exits or stops.
// A job stopped by anything other than ctrl-Z is put in the job table too.
func (s *Shell) foreground(job *jobs.Job) {
	s.fg = job
	defer func() { s.fg = nil }()

	status, err := s.wait(job.PID, s.interactive)
	switch {
	case errors.Is(err, unix.ECHILD):
		// Already collected, by the alarm handler for example.
	case err != nil:
		s.errorf("waitpid failed: %v", err)
		return
	case status.Stopped():
		if s.fg != nil {
			s.stopForeground()
		}
		return
	}

	// The pid is free for reuse now.
	if err := s.Timeouts.Remove(job); err != nil {
		s.errorf("%v", err)
	}
}

type waitResult struct {
	status unix.WaitStatus
	err    error
}

// wait blocks until pid exits, or stops if untraced is set, and handles
// signals delivered to the shell meanwhile.
func (s *Shell) wait(pid int, untraced bool) (unix.WaitStatus, error) {
	options := 0
	if untraced {
		options = unix.WUNTRACED
	}

	done := make(chan waitResult, 1)
	go func() {
		var status unix.WaitStatus
		for {
			_, err := unix.Wait4(pid, &status, options, nil)
			if errors.Is(err, unix.EINTR) {
				continue
			}
			done <- waitResult{status: status, err: err}
			return
		}
	}()

	for {
		select {
		case res := <-done:
			return res.status, res.err
		case sig := <-s.signals:
			s.handleSignal(sig)
		}
	}
}

// withIO runs fn with the shell's standard streams replaced.
func (s *Shell) withIO(stdio IO, fn func()) {
	saved := s.IO
	s.IO = stdio
	defer func() { s.IO = saved }()

	fn()
}

// errorf reports a failure of the current command on standard error.
func (s *Shell) errorf(format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	commands.Errorf(s.IO.Stderr, "%s", msg)

	event := logger.Event{Type: logger.CommandError, Error: msg}
	if s.current != nil {
		event.Command = s.current.Name()
	}
	s.record(event)
}

// reportJoined reports each error of an errors.Join result on its own line.
func (s *Shell) reportJoined(err error) {
	if err == nil {
		return
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		s.errorf("%v", err)
		return
	}
	for _, e := range joined.Unwrap() {
		s.errorf("%v", e)
	}
}

func (s *Shell) record(event logger.Event) {
	if err := s.events.Record(event); err != nil {
		log.Printf("recording %s event: %v", event.Type, err)
	}
}

// osError strips the operation and path from errors returned by package os so
// only the system error text remains.
func osError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	var syscallErr *os.SyscallError
	if errors.As(err, &syscallErr) {
		return syscallErr.Err
	}
	return err
}

type listCloser []io.Closer

func (lc listCloser) Close() error {
	var lastErr error
	for _, v := range lc {
		if err := v.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}
