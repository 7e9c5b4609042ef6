package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/josephlewis42/smash/commands"
	"github.com/josephlewis42/smash/core/config"
	"github.com/josephlewis42/smash/core/jobs"
	"github.com/josephlewis42/smash/core/logger"
	"github.com/sebdah/goldie/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperShellEnv = "SMASH_HELPER_SHELL"

// TestHelperShell stands in for the shell binary when a line has to run in a
// shell of its own. It is a no-op unless run by testLauncher.
func TestHelperShell(t *testing.T) {
	if os.Getenv(helperShellEnv) != "1" {
		return
	}

	cfg := testConfig()
	launcher := testLauncher()
	launcher.NewGroup = false
	s := NewShell(cfg, Options{Launcher: launcher})
	os.Exit(s.RunCommand(os.Args[len(os.Args)-1]))
}

func testConfig() *config.Configuration {
	cfg := config.Default()
	cfg.Color = commands.ColorNever
	cfg.ComplexShell = "/bin/sh"
	return cfg
}

func testLauncher() *Launcher {
	launcher := NewLauncher(
		[]string{os.Args[0], "-test.run=^TestHelperShell$", "--"},
		"/bin/sh",
		[]string{"/bin", "/usr/bin"},
	)
	launcher.Env = append(os.Environ(), helperShellEnv+"=1")
	return launcher
}

type testShell struct {
	*Shell
	t       *testing.T
	stdout  *os.File
	stderr  *os.File
	signals chan os.Signal
}

// newTestShell creates an interactive shell writing to temporary files and
// receiving signals only from the test.
func newTestShell(t *testing.T, opts Options) *testShell {
	t.Helper()

	dir := t.TempDir()
	stdout, err := os.Create(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	stderr, err := os.Create(filepath.Join(dir, "stderr"))
	require.NoError(t, err)
	devnull, err := os.Open(os.DevNull)
	require.NoError(t, err)

	signals := make(chan os.Signal, 4)
	opts.IO = IO{Stdin: devnull, Stdout: stdout, Stderr: stderr}
	opts.Signals = signals
	opts.Interactive = true
	if opts.Launcher == nil {
		opts.Launcher = testLauncher()
	}

	ts := &testShell{
		Shell:   NewShell(testConfig(), opts),
		t:       t,
		stdout:  stdout,
		stderr:  stderr,
		signals: signals,
	}

	t.Cleanup(func() {
		for _, job := range ts.Jobs.Jobs() {
			_ = jobs.OSProcesses{}.Signal(job.PID, syscall.SIGKILL)
			jobs.OSProcesses{}.Reap(job.PID)
		}
		stdout.Close()
		stderr.Close()
		devnull.Close()
	})

	return ts
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(contents)
}

func (ts *testShell) Stdout() string {
	return readFile(ts.t, ts.stdout.Name())
}

func (ts *testShell) Stderr() string {
	return readFile(ts.t, ts.stderr.Name())
}

// processState returns the state letter of pid from /proc.
func processState(t *testing.T, pid int) string {
	t.Helper()

	stat := readFile(t, fmt.Sprintf("/proc/%d/stat", pid))
	fields := strings.Fields(stat[strings.LastIndex(stat, ")")+1:])
	require.NotEmpty(t, fields)
	return fields[0]
}

func TestShell_Prompt(t *testing.T) {
	s := newTestShell(t, Options{})
	assert.Equal(t, "smash> ", s.Prompt())

	s.Dispatch("chprompt hello")
	assert.Equal(t, "hello> ", s.Prompt())

	s.Dispatch("chprompt")
	assert.Equal(t, "smash> ", s.Prompt())
}

func TestShell_Run(t *testing.T) {
	t.Run("stops at quit", func(t *testing.T) {
		s := newTestShell(t, Options{})

		err := s.Run(strings.NewReader("chprompt test\n\n   \nshowpid\nquit\nshowpid\n"))
		require.NoError(t, err)

		want := fmt.Sprintf("smash> test> test> test> smash pid is %d\ntest> ", os.Getpid())
		assert.Equal(t, want, s.Stdout())
		assert.True(t, s.Quitting())
	})

	t.Run("last line without newline", func(t *testing.T) {
		s := newTestShell(t, Options{})

		require.NoError(t, s.Run(strings.NewReader("showpid")))

		assert.Equal(t, fmt.Sprintf("smash> smash pid is %d\n", os.Getpid()), s.Stdout())
		assert.False(t, s.Quitting())
	})

	t.Run("signal while reading", func(t *testing.T) {
		s := newTestShell(t, Options{})
		s.signals <- syscall.SIGINT

		r, w, err := os.Pipe()
		require.NoError(t, err)
		defer r.Close()

		done := make(chan error, 1)
		go func() { done <- s.Run(r) }()

		// The interrupt is reported before any input arrives.
		require.Eventually(t, func() bool {
			return strings.Contains(s.Stdout(), "smash: got ctrl-C\n")
		}, 5*time.Second, 10*time.Millisecond)

		fmt.Fprintln(w, "quit")
		w.Close()
		require.NoError(t, <-done)
	})
}

func TestShell_Dispatch(t *testing.T) {
	t.Run("parse error", func(t *testing.T) {
		s := newTestShell(t, Options{})
		s.Dispatch("echo" + strings.Repeat(" a", 30))
		assert.Equal(t, "smash error: too many arguments\n", s.Stderr())
	})

	t.Run("line too long", func(t *testing.T) {
		s := newTestShell(t, Options{})
		s.Dispatch(strings.Repeat("a", 201))
		assert.Equal(t, "smash error: command line too long\n", s.Stderr())
	})

	t.Run("external not found", func(t *testing.T) {
		s := newTestShell(t, Options{})
		s.Dispatch("definitely-not-a-command-smash")
		assert.Equal(t, "smash error: execvp failed: executable file not found in $PATH\n", s.Stderr())
	})

	t.Run("external foreground", func(t *testing.T) {
		s := newTestShell(t, Options{})
		s.Dispatch("printf hello")
		assert.Equal(t, "hello", s.Stdout())
		assert.Equal(t, 0, s.Jobs.Len())
	})

	t.Run("complex line", func(t *testing.T) {
		s := newTestShell(t, Options{})
		s.Dispatch("X=42; printf $X")
		assert.Equal(t, "42", s.Stdout())
	})

	t.Run("external background", func(t *testing.T) {
		s := newTestShell(t, Options{})
		s.Dispatch("sleep 100&")

		require.Equal(t, 1, s.Jobs.Len())
		job, ok := s.Jobs.Last()
		require.True(t, ok)
		assert.Equal(t, 1, job.ID)
		assert.False(t, job.Stopped)

		s.Dispatch("jobs")
		assert.Regexp(t, `^\[1\] sleep 100& : \d+ \d+ secs\n$`, s.Stdout())
	})
}

func TestShell_Events(t *testing.T) {
	var buf bytes.Buffer
	s := newTestShell(t, Options{Events: logger.NewJsonLinesLogRecorder(&buf).NewSession()})

	s.Dispatch("fg")
	s.Dispatch("sleep 100 &")

	var types []logger.EventType
	var errs []string
	require.NoError(t, logger.ReadJSONLinesLog(&buf, func(le *logger.LogEntry) {
		types = append(types, le.Type)
		if le.Type == logger.CommandError {
			errs = append(errs, le.Command+": "+le.Error)
		}
	}))

	assert.Equal(t, []logger.EventType{
		logger.RunCommand,
		logger.CommandError,
		logger.RunCommand,
		logger.JobStarted,
	}, types)
	assert.Equal(t, []string{"fg: fg: jobs list is empty"}, errs)
}

func TestShell_ChildMode(t *testing.T) {
	// Built-ins under a deadline run in a shell of their own.
	s := newTestShell(t, Options{Timer: &fakeTimer{}})
	s.Dispatch("timeout 5 showpid")

	assert.Empty(t, s.Stderr())
	assert.Regexp(t, `^smash pid is \d+\n$`, s.Stdout())
	assert.NotEqual(t, fmt.Sprintf("smash pid is %d\n", os.Getpid()), s.Stdout())
}

func TestBuiltinNames(t *testing.T) {
	g := goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithTestNameForDir(true),
	)

	g.Assert(t, "builtins", []byte(strings.Join(BuiltinNames(), "\n")+"\n"))
}

func TestNewShell_Defaults(t *testing.T) {
	s := NewShell(testConfig(), Options{Fs: afero.NewMemMapFs()})

	assert.Equal(t, StdIO(), s.IO)
	assert.Equal(t, "smash", s.Title)
	assert.Equal(t, 20, s.Parser.MaxArgs)
	assert.Equal(t, syscall.SIGKILL, s.Timeouts.KillSignal)
	assert.True(t, s.Launcher.NewGroup)
	assert.NoError(t, s.Close())
}
