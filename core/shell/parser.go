// Package shell classifies command lines into the commands the shell knows
// how to run.
//
// Classification is structural and happens in a fixed order: output
// redirection (">>" before ">"), then pipes ("|&" before "|"), then the first
// word is matched against the timeout keyword and the built-in table. Anything
// else is an external program.
package shell

import (
	"errors"
	"strconv"
	"strings"

	"github.com/anmitsu/go-shlex"
	"mvdan.cc/sh/v3/syntax"
)

const (
	// DefaultMaxArgs is the largest number of words accepted on one line.
	DefaultMaxArgs = 20
	// DefaultMaxLineLength is the longest line accepted, in bytes.
	DefaultMaxLineLength = 200

	// TimeoutKeyword introduces a deadline-wrapped command.
	TimeoutKeyword = "timeout"

	whitespace = " \n\r\t\f\v"
)

var (
	ErrLineTooLong     = errors.New("command line too long")
	ErrTooManyArgs     = errors.New("too many arguments")
	ErrMissingCommand  = errors.New("syntax error: missing command")
	errNotPositiveSecs = errors.New("timeout must be a positive number of seconds")
)

// Kind tags which variant a Command holds.
type Kind int

const (
	BuiltIn Kind = iota
	External
	Pipeline
	Redirection
	Timeout
)

func (k Kind) String() string {
	switch k {
	case BuiltIn:
		return "builtin"
	case External:
		return "external"
	case Pipeline:
		return "pipeline"
	case Redirection:
		return "redirection"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Command is one parsed command line. Exactly one of Pipe, Redirect and Timed
// is set for the Pipeline, Redirection and Timeout kinds; Timed stays nil when
// the timeout arguments are malformed so the error can be reported when the
// command runs.
type Command struct {
	Kind Kind

	// Original holds the line exactly as it was given.
	Original string
	// Line is the trimmed line with any background marker removed.
	Line string
	// Args holds the words of Line.
	Args []string
	// Background is set when the line ended with '&'.
	Background bool

	// Complex marks external lines that need a real shell to expand.
	Complex bool

	Pipe     *Pipe
	Redirect *Redirect
	Timed    *Timed
}

// Name returns the first word of the command, or "" if there is none.
func (c *Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// Pipe connects the output of Left to the input of Right.
type Pipe struct {
	Left  *Command
	Right *Command
	// Stderr is set for "|&", which feeds standard error instead of standard
	// output.
	Stderr bool
}

// Redirect sends the standard output of Inner to Target.
type Redirect struct {
	Inner  *Command
	Target string
	Append bool
}

// Timed runs Inner and kills it if it is still alive after Seconds.
type Timed struct {
	Seconds int
	Inner   *Command
}

// Parser turns lines into Commands.
type Parser struct {
	// IsBuiltin reports whether name is a built-in command.
	IsBuiltin func(name string) bool
	// MaxArgs and MaxLineLength cap the input; zero means no limit.
	MaxArgs       int
	MaxLineLength int
}

// NewParser creates a parser with the default limits.
func NewParser(isBuiltin func(string) bool) *Parser {
	return &Parser{
		IsBuiltin:     isBuiltin,
		MaxArgs:       DefaultMaxArgs,
		MaxLineLength: DefaultMaxLineLength,
	}
}

// Parse classifies line. Composite commands parse their parts recursively so
// a pipeline stage or a redirected command may be of any kind.
func (p *Parser) Parse(line string) (*Command, error) {
	if p.MaxLineLength > 0 && len(line) > p.MaxLineLength {
		return nil, ErrLineTooLong
	}

	cmd := &Command{Original: line}
	cmd.Line, cmd.Background = StripBackground(strings.Trim(line, whitespace))
	if cmd.Line == "" {
		return nil, ErrMissingCommand
	}

	cmd.Args = Tokenize(cmd.Line)
	if p.MaxArgs > 0 && len(cmd.Args) > p.MaxArgs {
		return nil, ErrTooManyArgs
	}

	if op, idx := findOperator(cmd.Line, ">>", ">"); idx >= 0 {
		left, _ := StripBackground(strings.Trim(cmd.Line[:idx], whitespace))
		inner, err := p.Parse(left)
		if err != nil {
			return nil, err
		}
		cmd.Kind = Redirection
		cmd.Redirect = &Redirect{
			Inner:  inner,
			Target: strings.Trim(cmd.Line[idx+len(op):], whitespace),
			Append: op == ">>",
		}
		return cmd, nil
	}

	if op, idx := findOperator(cmd.Line, "|&", "|"); idx >= 0 {
		left, err := p.Parse(cmd.Line[:idx])
		if err != nil {
			return nil, err
		}
		right, err := p.Parse(cmd.Line[idx+len(op):])
		if err != nil {
			return nil, err
		}
		cmd.Kind = Pipeline
		cmd.Pipe = &Pipe{Left: left, Right: right, Stderr: op == "|&"}
		return cmd, nil
	}

	switch name := cmd.Name(); {
	case name == TimeoutKeyword:
		cmd.Kind = Timeout
		if timed, err := p.parseTimed(cmd); err == nil {
			cmd.Timed = timed
			cmd.Background = timed.Inner.Background
		}
	case p.IsBuiltin != nil && p.IsBuiltin(name):
		cmd.Kind = BuiltIn
		cmd.Background = false
	default:
		cmd.Kind = External
		cmd.Complex = IsComplex(cmd.Line)
	}

	return cmd, nil
}

// parseTimed reads "timeout <seconds> <command...>". The inner command is
// everything in the original text after the seconds word, so operators and a
// trailing '&' belong to it.
func (p *Parser) parseTimed(cmd *Command) (*Timed, error) {
	if len(cmd.Args) < 3 {
		return nil, ErrMissingCommand
	}
	secs, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		return nil, err
	}
	if secs <= 0 {
		return nil, errNotPositiveSecs
	}

	start := strings.Index(cmd.Original, TimeoutKeyword) + len(TimeoutKeyword)
	offset := strings.Index(cmd.Original[start:], cmd.Args[1])
	if offset < 0 {
		return nil, ErrMissingCommand
	}
	rest := cmd.Original[start+offset+len(cmd.Args[1]):]

	inner, err := p.Parse(strings.Trim(rest, whitespace))
	if err != nil {
		return nil, err
	}
	return &Timed{Seconds: secs, Inner: inner}, nil
}

// findOperator returns the first of ops (in priority order) present in line
// and its index, or -1.
func findOperator(line string, ops ...string) (string, int) {
	for _, op := range ops {
		if idx := strings.Index(line, op); idx >= 0 {
			return op, idx
		}
	}
	return "", -1
}

// StripBackground removes a trailing '&' and the whitespace before it.
func StripBackground(line string) (string, bool) {
	trimmed := strings.TrimRight(line, whitespace)
	if !strings.HasSuffix(trimmed, "&") {
		return trimmed, false
	}
	return strings.TrimRight(strings.TrimSuffix(trimmed, "&"), whitespace), true
}

// Tokenize splits line into words, honoring quotes. Lines the quoting rules
// reject (an unterminated quote, say) fall back to plain whitespace splitting.
func Tokenize(line string) []string {
	words, err := shlex.Split(line, true)
	if err != nil {
		return strings.Fields(line)
	}
	return words
}

// IsComplex reports whether an external line uses syntax only a real shell
// can expand: wildcards, parameter or command substitution, input
// redirection, assignments or lists.
func IsComplex(line string) bool {
	if strings.ContainsAny(line, "*?") {
		return true
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(line), "")
	if err != nil || len(file.Stmts) != 1 {
		return true
	}

	stmt := file.Stmts[0]
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok || len(call.Assigns) > 0 || len(stmt.Redirs) > 0 || stmt.Negated || stmt.Background || stmt.Coprocess {
		return true
	}

	complex := false
	syntax.Walk(stmt, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp, *syntax.CmdSubst, *syntax.ArithmExp, *syntax.ProcSubst, *syntax.ExtGlob:
			complex = true
		case *syntax.Lit:
			if strings.ContainsAny(n.Value, "[") {
				complex = true
			}
		}
		return !complex
	})
	return complex
}
