package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	getopt "github.com/pborman/getopt/v2"
)

// ErrorPrefix starts every diagnostic the shell prints.
const ErrorPrefix = "smash error: "

// Errorf writes one diagnostic line to w.
func Errorf(w io.Writer, format string, a ...interface{}) {
	fmt.Fprintf(w, ErrorPrefix+format+"\n", a...)
}

type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a sone line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help flag isn't
	// added.
	ShowHelp *bool
	// NeverBail skips interacting with stdout/stderr on failure and
	// always runs the callback.
	NeverBail bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}

	return s.flags
}

// Args returns the positional arguments left after parsing, the command name
// excluded.
func (s *SimpleCommand) Args() []string {
	return s.Flags().Args()
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

// Run parses args (args[0] is the command name) and, if flag parsing was
// successful, calls the callback. A parse failure is reported as
// "<name>: invalid arguments".
func (s *SimpleCommand) Run(stdout, stderr io.Writer, args []string, callback func() int) int {
	opts := s.Flags()

	// Add help flag if not overridden.
	if s.ShowHelp == nil {
		s.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	err := opts.Getopt(args, nil)
	if err != nil && !s.NeverBail {
		Errorf(stderr, "%s: invalid arguments", args[0])
		return 1
	}

	if *s.ShowHelp {
		s.PrintHelp(stdout)
		return 0
	}

	return callback()
}

const (
	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

var (
	ColorBoldBlue  = color.New(color.FgBlue, color.Bold)
	ColorBoldGreen = color.New(color.FgGreen, color.Bold)
	ColorBoldCyan  = color.New(color.FgCyan, color.Bold)
	ColorBoldRed   = color.New(color.FgRed, color.Bold)
)

// ColorPrinter colours output according to an always|auto|never mode. Auto
// colours only when standard output is a terminal.
type ColorPrinter struct {
	Mode string
}

func (c *ColorPrinter) ShouldColor() bool {
	switch c.Mode {
	case ColorNever:
		return false
	case ColorAlways:
		return true
	default:
		return !color.NoColor
	}
}

func (c *ColorPrinter) Sprintf(clr *color.Color, format string, a ...interface{}) string {
	if !c.ShouldColor() {
		return fmt.Sprintf(format, a...)
	}

	forced := *clr
	forced.EnableColor()
	return forced.Sprintf(format, a...)
}
