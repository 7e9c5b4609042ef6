package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
)

// Fare implements the fare built-in: fare <file> <old> <new> replaces every
// literal occurrence of old in file with new.
func Fare(fsys afero.Fs, stdout, stderr io.Writer, args []string) int {
	cmd := &SimpleCommand{
		Use:   "fare <file> <old> <new>",
		Short: "Replace every occurrence of a string in a file.",
	}

	return cmd.Run(stdout, stderr, args, func() int {
		if len(cmd.Args()) != 3 || cmd.Args()[1] == "" {
			Errorf(stderr, "fare: invalid arguments")
			return 1
		}
		path, old, replacement := cmd.Args()[0], cmd.Args()[1], cmd.Args()[2]

		info, err := fsys.Stat(path)
		if err != nil {
			Errorf(stderr, "fare: file not found")
			return 1
		}

		contents, err := afero.ReadFile(fsys, path)
		if err != nil {
			Errorf(stderr, "open failed: %v", err)
			return 1
		}

		count := strings.Count(string(contents), old)
		if count > 0 {
			updated := strings.ReplaceAll(string(contents), old, replacement)
			if err := afero.WriteFile(fsys, path, []byte(updated), info.Mode().Perm()); err != nil {
				Errorf(stderr, "write failed: %v", err)
				return 1
			}
		}

		fmt.Fprintf(stdout, "replaced %d instances of the string %q\n", count, old)
		return 0
	})
}
