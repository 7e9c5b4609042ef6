package core

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/josephlewis42/smash/commands"
	"github.com/josephlewis42/smash/core/jobs"
	"github.com/josephlewis42/smash/core/logger"
	"github.com/josephlewis42/smash/core/shell"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// IsBuiltin reports whether name runs inside the shell.
func IsBuiltin(name string) bool {
	_, ok := AllBuiltins[name]
	return ok
}

// BuiltinNames lists every command the shell handles itself, sorted.
func BuiltinNames() []string {
	names := []string{shell.TimeoutKeyword}
	for name := range AllBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chprompt sets the shell title, or restores the default one.
func Chprompt(s *Shell, args []string) int {
	if len(args) < 2 {
		s.Title = s.config.Prompt
		return 0
	}
	s.Title = args[1]
	return 0
}

func Showpid(s *Shell, args []string) int {
	cmd := &commands.SimpleCommand{Use: "showpid", Short: "Print the shell's process ID."}
	return cmd.Run(s.IO.Stdout, s.IO.Stderr, args, func() int {
		fmt.Fprintf(s.IO.Stdout, "smash pid is %d\n", os.Getpid())
		return 0
	})
}

func Pwd(s *Shell, args []string) int {
	cmd := &commands.SimpleCommand{Use: "pwd", Short: "Print the current working directory."}
	return cmd.Run(s.IO.Stdout, s.IO.Stderr, args, func() int {
		wd, err := os.Getwd()
		if err != nil {
			s.errorf("getcwd failed: %v", osError(err))
			return 1
		}
		fmt.Fprintln(s.IO.Stdout, wd)
		return 0
	})
}

// Cd is the cd shell builtin. "cd -" returns to the previous directory.
func Cd(s *Shell, args []string) int {
	cmd := &commands.SimpleCommand{Use: "cd <dir>|-", Short: "Change the working directory."}
	return cmd.Run(s.IO.Stdout, s.IO.Stderr, args, func() int {
		switch len(cmd.Args()) {
		case 0:
			s.errorf("cd: missing argument")
			return 1
		case 1:
		default:
			s.errorf("cd: too many arguments")
			return 1
		}

		target := cmd.Args()[0]
		if target == "-" {
			if s.lastWD == "" {
				s.errorf("cd: OLDPWD not set")
				return 1
			}
			target = s.lastWD
		}

		wd, err := os.Getwd()
		if err != nil {
			s.errorf("getcwd failed: %v", osError(err))
			return 1
		}
		if err := os.Chdir(target); err != nil {
			s.errorf("chdir failed: %v", osError(err))
			return 1
		}
		s.lastWD = wd
		return 0
	})
}

func Jobs(s *Shell, args []string) int {
	cmd := &commands.SimpleCommand{Use: "jobs", Short: "List the tracked jobs."}
	return cmd.Run(s.IO.Stdout, s.IO.Stderr, args, func() int {
		s.Jobs.Print(s.IO.Stdout)
		return 0
	})
}

// lookupJob resolves the optional job ID argument of fg and bg. With no
// argument, fallback picks the job.
func (s *Shell) lookupJob(name string, args []string, fallback func() (*jobs.Job, bool), none string) (*jobs.Job, bool) {
	switch len(args) {
	case 0:
		job, ok := fallback()
		if !ok {
			s.errorf("%s: %s", name, none)
		}
		return job, ok
	case 1:
		id, err := strconv.Atoi(args[0])
		if err != nil {
			s.errorf("%s: invalid arguments", name)
			return nil, false
		}
		job, ok := s.Jobs.Get(id)
		if !ok {
			s.errorf("%s: job-id %d does not exist", name, id)
		}
		return job, ok
	default:
		s.errorf("%s: invalid arguments", name)
		return nil, false
	}
}

// Fg resumes a job and waits for it.
func Fg(s *Shell, args []string) int {
	cmd := &commands.SimpleCommand{Use: "fg [job-id]", Short: "Resume a job in the foreground."}
	return cmd.Run(s.IO.Stdout, s.IO.Stderr, args, func() int {
		job, ok := s.lookupJob("fg", cmd.Args(), s.Jobs.Last, "jobs list is empty")
		if !ok {
			return 1
		}

		fmt.Fprintf(s.IO.Stdout, "%s : %d\n", job.Command.Original, job.PID)
		if job.Stopped {
			if err := s.procs.Signal(job.PID, syscall.SIGCONT); err != nil {
				s.errorf("%v", err)
				return 1
			}
		}

		s.Jobs.Remove(job.ID)
		job.Stopped = false
		s.record(logger.Event{Type: logger.JobResumed, JobID: job.ID, PID: job.PID, Command: job.Command.Original})
		s.foreground(job)
		return 0
	})
}

// Bg resumes a stopped job in the background.
func Bg(s *Shell, args []string) int {
	cmd := &commands.SimpleCommand{Use: "bg [job-id]", Short: "Resume a stopped job in the background."}
	return cmd.Run(s.IO.Stdout, s.IO.Stderr, args, func() int {
		job, ok := s.lookupJob("bg", cmd.Args(), s.Jobs.LastStopped, "there is no stopped jobs to resume")
		if !ok {
			return 1
		}
		if !job.Stopped {
			s.errorf("bg: job-id %d is already running in the background", job.ID)
			return 1
		}

		fmt.Fprintf(s.IO.Stdout, "%s : %d\n", job.Command.Original, job.PID)
		if err := s.procs.Signal(job.PID, syscall.SIGCONT); err != nil {
			s.errorf("%v", err)
			return 1
		}
		job.Stopped = false
		s.record(logger.Event{Type: logger.JobResumed, JobID: job.ID, PID: job.PID, Command: job.Command.Original})
		return 0
	})
}

// Quit exits the shell, killing every job first if asked to.
func Quit(s *Shell, args []string) int {
	cmd := &commands.SimpleCommand{Use: "quit [kill]", Short: "Exit the shell.", NeverBail: true}
	return cmd.Run(s.IO.Stdout, s.IO.Stderr, args, func() int {
		if len(args) > 1 && args[1] == "kill" {
			for _, job := range s.Jobs.Jobs() {
				s.record(logger.Event{Type: logger.JobKilled, JobID: job.ID, PID: job.PID, Command: job.Command.Original, Signal: s.config.KillSignal})
			}
			_, err := s.Jobs.KillAll(s.IO.Stdout, s.config.Signal())
			s.reportJoined(err)
		}
		s.quit = true
		return 0
	})
}

// Kill sends a signal to a job: kill -<signum> <job-id>.
func Kill(s *Shell, args []string) int {
	if len(args) != 3 {
		s.errorf("kill: invalid arguments")
		return 1
	}

	id, err := strconv.Atoi(args[2])
	if err != nil {
		s.errorf("kill: invalid arguments")
		return 1
	}
	job, ok := s.Jobs.Get(id)
	if !ok {
		s.errorf("kill: job-id %d does not exist", id)
		return 1
	}

	if !strings.HasPrefix(args[1], "-") {
		s.errorf("kill: invalid arguments")
		return 1
	}
	signum, err := strconv.Atoi(args[1][1:])
	if err != nil || signum < 1 || signum > 64 {
		s.errorf("kill: invalid arguments")
		return 1
	}
	sig := syscall.Signal(signum)

	if err := s.procs.Signal(job.PID, sig); err != nil {
		s.errorf("%v", err)
		return 1
	}
	fmt.Fprintf(s.IO.Stdout, "signal number %d was sent to pid %d\n", signum, job.PID)

	switch sig {
	case syscall.SIGCONT:
		job.Stopped = false
	case syscall.SIGSTOP, syscall.SIGTSTP:
		job.Stopped = true
	}
	s.record(logger.Event{Type: logger.JobSignaled, JobID: job.ID, PID: job.PID, Command: job.Command.Original, Signal: signum})
	return 0
}

// Setcore pins a job to one CPU core: setcore <job-id> <core>.
func Setcore(s *Shell, args []string) int {
	cmd := &commands.SimpleCommand{Use: "setcore <job-id> <core>", Short: "Pin a job to a CPU core."}
	return cmd.Run(s.IO.Stdout, s.IO.Stderr, args, func() int {
		if len(cmd.Args()) != 2 {
			s.errorf("setcore: invalid arguments")
			return 1
		}
		id, idErr := strconv.Atoi(cmd.Args()[0])
		core, coreErr := strconv.Atoi(cmd.Args()[1])
		if idErr != nil || coreErr != nil {
			s.errorf("setcore: invalid arguments")
			return 1
		}

		job, ok := s.Jobs.Get(id)
		if !ok {
			s.errorf("setcore: job-id %d does not exist", id)
			return 1
		}
		if core < 0 || core >= s.hostCPUs() {
			s.errorf("setcore: invalid core number")
			return 1
		}

		if err := s.procs.SetAffinity(job.PID, core); err != nil {
			s.errorf("%v", err)
			return 1
		}
		return 0
	})
}

// hostCPUs returns the number of cores setcore accepts.
func (s *Shell) hostCPUs() int {
	n, err := jobs.OnlineCPUs(s.fs)
	if err != nil {
		return runtime.NumCPU()
	}
	return n
}

func Fare(s *Shell, args []string) int {
	return commands.Fare(s.fs, s.IO.Stdout, s.IO.Stderr, args)
}

func init() {
	AllBuiltins["chprompt"] = ShellBuiltinFunc(Chprompt)
	AllBuiltins["showpid"] = ShellBuiltinFunc(Showpid)
	AllBuiltins["pwd"] = ShellBuiltinFunc(Pwd)
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["jobs"] = ShellBuiltinFunc(Jobs)
	AllBuiltins["fg"] = ShellBuiltinFunc(Fg)
	AllBuiltins["bg"] = ShellBuiltinFunc(Bg)
	AllBuiltins["quit"] = ShellBuiltinFunc(Quit)
	AllBuiltins["kill"] = ShellBuiltinFunc(Kill)
	AllBuiltins["setcore"] = ShellBuiltinFunc(Setcore)
	AllBuiltins["fare"] = ShellBuiltinFunc(Fare)
}
