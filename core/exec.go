package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/josephlewis42/smash/core/shell"
	"github.com/spf13/afero"
)

var (
	// ErrNotFound is the error resulting if a path search failed to find an executable file.
	ErrNotFound = exec.ErrNotFound

	// ErrExecFailed wraps failures to resolve or execute a program. The shell
	// reports them and carries on.
	ErrExecFailed = errors.New("execvp failed")
	// ErrForkFailed wraps failures to create a child process.
	ErrForkFailed = errors.New("fork failed")
)

func findExecutable(fsys afero.Fs, file string) error {
	d, err := fsys.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// LookPath searches for an executable named file in the directories named by
// path, then in the fallback directories. If file contains a slash, it is
// tried directly and no directories are consulted. The result may be an
// absolute path or a path relative to the current directory.
func LookPath(fsys afero.Fs, file, path string, fallback []string) (string, error) {
	if strings.Contains(file, "/") {
		err := findExecutable(fsys, file)
		if err == nil {
			return file, nil
		}
		return "", err
	}

	dirs := append(filepath.SplitList(path), fallback...)
	for _, dir := range dirs {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(fsys, path); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}

// IO holds the standard streams a command runs with. They are always files so
// child processes inherit the descriptors directly.
type IO struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// StdIO returns the process's own standard streams.
func StdIO() IO {
	return IO{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Launcher turns commands into child processes.
type Launcher struct {
	// Self re-runs the shell on a single line; the line is appended as the
	// final argument. It starts commands that must run inside a shell of
	// their own: composite pipeline stages, and built-ins or composites
	// under a deadline.
	Self []string
	// Env is the child environment; nil inherits the shell's.
	Env []string
	// ComplexShell runs external lines that need expansion.
	ComplexShell string
	// FallbackPath is searched after PATH.
	FallbackPath []string
	// Fs is used to resolve executables.
	Fs afero.Fs
	// NewGroup puts every child in a process group of its own, or in the
	// group given to Start.
	NewGroup bool
}

// NewLauncher creates a launcher resolving against the real filesystem.
func NewLauncher(self []string, complexShell string, fallback []string) *Launcher {
	return &Launcher{
		Self:         self,
		ComplexShell: complexShell,
		FallbackPath: fallback,
		Fs:           afero.NewOsFs(),
		NewGroup:     true,
	}
}

func (l *Launcher) getenv(key string) string {
	if l.Env == nil {
		return os.Getenv(key)
	}
	prefix := key + "="
	for i := len(l.Env) - 1; i >= 0; i-- {
		if strings.HasPrefix(l.Env[i], prefix) {
			return strings.TrimPrefix(l.Env[i], prefix)
		}
	}
	return ""
}

// Command builds the process for c. Plain externals run directly, complex
// externals through ComplexShell and everything else through Self.
func (l *Launcher) Command(c *shell.Command, stdio IO, pgid int) (*exec.Cmd, error) {
	var argv []string
	switch {
	case c.Kind == shell.External && c.Complex:
		argv = []string{l.ComplexShell, "-c", c.Line}
	case c.Kind == shell.External:
		resolved, err := LookPath(l.fs(), c.Args[0], l.getenv("PATH"), l.FallbackPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExecFailed, err)
		}
		if !strings.Contains(resolved, "/") {
			resolved = "./" + resolved
		}
		argv = append([]string{resolved}, c.Args[1:]...)
	default:
		if len(l.Self) == 0 {
			return nil, fmt.Errorf("%w: %w", ErrExecFailed, ErrNotFound)
		}
		argv = append(append([]string{}, l.Self...), c.Line)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if c.Kind == shell.External && !c.Complex {
		// Keep the name the user typed as argv[0].
		cmd.Args[0] = c.Args[0]
	}
	cmd.Env = l.Env
	cmd.Stdin = stdio.Stdin
	cmd.Stdout = stdio.Stdout
	cmd.Stderr = stdio.Stderr
	if l.NewGroup {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}
	}
	return cmd, nil
}

// Start launches c and returns its pid. Pass pgid zero to make the child lead
// a new process group. The child is never waited on through os/exec; callers
// reap it by pid.
func (l *Launcher) Start(c *shell.Command, stdio IO, pgid int) (int, error) {
	cmd, err := l.Command(c, stdio, pgid)
	if err != nil {
		return 0, err
	}

	if err := cmd.Start(); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return 0, fmt.Errorf("%w: %w", ErrExecFailed, pathErr.Err)
		}
		return 0, fmt.Errorf("%w: %w", ErrForkFailed, err)
	}

	pid := cmd.Process.Pid
	// Reaping happens through wait4 on the pid.
	_ = cmd.Process.Release()
	return pid, nil
}

func (l *Launcher) fs() afero.Fs {
	if l.Fs == nil {
		return afero.NewOsFs()
	}
	return l.Fs
}
