package shell

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParser() *Parser {
	return NewParser(func(name string) bool {
		switch name {
		case "cd", "jobs", "showpid", "fg", "bg":
			return true
		}
		return false
	})
}

func ExampleStripBackground() {
	line, bg := StripBackground("sleep 10 &")
	fmt.Printf("%q %v\n", line, bg)

	line, bg = StripBackground("sleep 10&")
	fmt.Printf("%q %v\n", line, bg)

	line, bg = StripBackground("sleep 10")
	fmt.Printf("%q %v\n", line, bg)

	// Output: "sleep 10" true
	// "sleep 10" true
	// "sleep 10" false
}

func ExampleTokenize() {
	fmt.Printf("%q\n", Tokenize(`echo "hello world" foo`))
	fmt.Printf("%q\n", Tokenize(`echo "unterminated`))

	// Output: ["echo" "hello world" "foo"]
	// ["echo" "\"unterminated"]
}

func TestParser_Parse(t *testing.T) {
	cases := map[string]struct {
		line       string
		kind       Kind
		args       []string
		background bool
		complex    bool
	}{
		"quoted argument keeps its spaces": {
			line: `echo "a  b" c`,
			kind: External,
			args: []string{"echo", "a  b", "c"},
		},
		"builtin": {
			line: "cd /tmp",
			kind: BuiltIn,
			args: []string{"cd", "/tmp"},
		},
		"builtin ignores background": {
			line: "jobs&",
			kind: BuiltIn,
			args: []string{"jobs"},
		},
		"external": {
			line: "  sleep 100  ",
			kind: External,
			args: []string{"sleep", "100"},
		},
		"external background": {
			line:       "sleep 100 &",
			kind:       External,
			args:       []string{"sleep", "100"},
			background: true,
		},
		"external glob": {
			line:    "ls *.go",
			kind:    External,
			args:    []string{"ls", "*.go"},
			complex: true,
		},
		"external expansion": {
			line:    "echo $HOME",
			kind:    External,
			args:    []string{"echo", "$HOME"},
			complex: true,
		},
		"external list": {
			line:    "echo a && echo b",
			kind:    External,
			args:    []string{"echo", "a", "&&", "echo", "b"},
			complex: true,
		},
		"pipeline": {
			line: "ls | wc -l",
			kind: Pipeline,
			args: []string{"ls", "|", "wc", "-l"},
		},
		"redirection": {
			line: "ls > out.txt",
			kind: Redirection,
			args: []string{"ls", ">", "out.txt"},
		},
		"timeout": {
			line: "timeout 5 sleep 10",
			kind: Timeout,
			args: []string{"timeout", "5", "sleep", "10"},
		},
		"timeout background follows inner": {
			line:       "timeout 5 sleep 10&",
			kind:       Timeout,
			args:       []string{"timeout", "5", "sleep", "10"},
			background: true,
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			cmd, err := testParser().Parse(tc.line)
			require.NoError(t, err)

			assert.Equal(t, tc.kind, cmd.Kind)
			assert.Equal(t, tc.args, cmd.Args)
			assert.Equal(t, tc.background, cmd.Background)
			assert.Equal(t, tc.complex, cmd.Complex)
			assert.Equal(t, tc.line, cmd.Original)
		})
	}
}

func TestParser_Redirection(t *testing.T) {
	p := testParser()

	t.Run("truncate", func(t *testing.T) {
		cmd, err := p.Parse("showpid > pid.txt")
		require.NoError(t, err)
		require.NotNil(t, cmd.Redirect)

		assert.False(t, cmd.Redirect.Append)
		assert.Equal(t, "pid.txt", cmd.Redirect.Target)
		assert.Equal(t, BuiltIn, cmd.Redirect.Inner.Kind)
	})

	t.Run("append wins over truncate", func(t *testing.T) {
		cmd, err := p.Parse("echo hi >>   log.txt ")
		require.NoError(t, err)
		require.NotNil(t, cmd.Redirect)

		assert.True(t, cmd.Redirect.Append)
		assert.Equal(t, "log.txt", cmd.Redirect.Target)
		assert.Equal(t, []string{"echo", "hi"}, cmd.Redirect.Inner.Args)
	})

	t.Run("inner background stripped", func(t *testing.T) {
		cmd, err := p.Parse("sleep 5 & > out.txt")
		require.NoError(t, err)
		require.NotNil(t, cmd.Redirect)

		assert.False(t, cmd.Redirect.Inner.Background)
		assert.Equal(t, "sleep 5", cmd.Redirect.Inner.Line)
	})

	t.Run("redirection wins over pipe", func(t *testing.T) {
		cmd, err := p.Parse("ls | sort > sorted.txt")
		require.NoError(t, err)
		require.Equal(t, Redirection, cmd.Kind)

		assert.Equal(t, Pipeline, cmd.Redirect.Inner.Kind)
	})
}

func TestParser_Pipeline(t *testing.T) {
	p := testParser()

	t.Run("stdout", func(t *testing.T) {
		cmd, err := p.Parse("showpid | cat")
		require.NoError(t, err)
		require.NotNil(t, cmd.Pipe)

		assert.False(t, cmd.Pipe.Stderr)
		assert.Equal(t, BuiltIn, cmd.Pipe.Left.Kind)
		assert.Equal(t, External, cmd.Pipe.Right.Kind)
		assert.Equal(t, "cat", cmd.Pipe.Right.Line)
	})

	t.Run("stderr", func(t *testing.T) {
		cmd, err := p.Parse("make |& grep error")
		require.NoError(t, err)
		require.NotNil(t, cmd.Pipe)

		assert.True(t, cmd.Pipe.Stderr)
		assert.Equal(t, []string{"make"}, cmd.Pipe.Left.Args)
		assert.Equal(t, []string{"grep", "error"}, cmd.Pipe.Right.Args)
	})

	t.Run("missing stage", func(t *testing.T) {
		_, err := p.Parse("| cat")
		assert.ErrorIs(t, err, ErrMissingCommand)
	})
}

func TestParser_Timeout(t *testing.T) {
	p := testParser()

	t.Run("inner keeps operators", func(t *testing.T) {
		cmd, err := p.Parse("timeout 3 ls | wc -l")
		require.NoError(t, err)

		// Pipes are classified before the timeout keyword.
		require.Equal(t, Pipeline, cmd.Kind)
		assert.Equal(t, Timeout, cmd.Pipe.Left.Kind)
	})

	t.Run("inner from original text", func(t *testing.T) {
		cmd, err := p.Parse(`timeout 3 echo "a  b"`)
		require.NoError(t, err)
		require.NotNil(t, cmd.Timed)

		assert.Equal(t, 3, cmd.Timed.Seconds)
		assert.Equal(t, `echo "a  b"`, cmd.Timed.Inner.Original)
		assert.Equal(t, []string{"echo", "a  b"}, cmd.Timed.Inner.Args)
	})

	t.Run("inner builtin", func(t *testing.T) {
		cmd, err := p.Parse("timeout 1 showpid")
		require.NoError(t, err)
		require.NotNil(t, cmd.Timed)

		assert.Equal(t, BuiltIn, cmd.Timed.Inner.Kind)
	})

	invalid := map[string]string{
		"missing command": "timeout 5",
		"missing seconds": "timeout",
		"non numeric":     "timeout five sleep 10",
		"zero":            "timeout 0 sleep 10",
		"negative":        "timeout -3 sleep 10",
	}
	for tn, line := range invalid {
		t.Run(tn, func(t *testing.T) {
			cmd, err := p.Parse(line)
			require.NoError(t, err)

			assert.Equal(t, Timeout, cmd.Kind)
			assert.Nil(t, cmd.Timed)
		})
	}
}

func TestParser_Limits(t *testing.T) {
	p := testParser()

	t.Run("line too long", func(t *testing.T) {
		_, err := p.Parse("echo " + strings.Repeat("a", DefaultMaxLineLength))
		assert.ErrorIs(t, err, ErrLineTooLong)
	})

	t.Run("too many args", func(t *testing.T) {
		_, err := p.Parse("echo" + strings.Repeat(" a", DefaultMaxArgs))
		assert.ErrorIs(t, err, ErrTooManyArgs)
	})

	t.Run("at max args", func(t *testing.T) {
		_, err := p.Parse("echo" + strings.Repeat(" a", DefaultMaxArgs-1))
		assert.NoError(t, err)
	})

	t.Run("unlimited", func(t *testing.T) {
		unlimited := &Parser{}
		_, err := unlimited.Parse("echo" + strings.Repeat(" a", 500))
		assert.NoError(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := p.Parse("   &")
		assert.ErrorIs(t, err, ErrMissingCommand)
	})
}

func TestIsComplex(t *testing.T) {
	cases := map[string]bool{
		"ls -la":              false,
		"echo 'quoted arg'":   false,
		"ls *.go":             true,
		"ls file?.txt":        true,
		"ls [ab].txt":         true,
		"echo $HOME":          true,
		"echo $(date)":        true,
		"echo `date`":         true,
		"echo $((1 + 2))":     true,
		"FOO=bar env":         true,
		"sort < input.txt":    true,
		"true && false":       true,
		"true; false":         true,
		"if true; then :; fi": true,
		"echo 'unterminated":  true,
	}

	for line, want := range cases {
		t.Run(line, func(t *testing.T) {
			assert.Equal(t, want, IsComplex(line))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "builtin", BuiltIn.String())
	assert.Equal(t, "timeout", Timeout.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
