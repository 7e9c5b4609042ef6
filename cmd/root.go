package cmd

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/josephlewis42/smash/core"
	"github.com/josephlewis42/smash/core/config"
	"github.com/josephlewis42/smash/core/logger"
	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	commandLine string
)

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// selfCommand returns the argv that re-runs this binary on a single line with
// the same configuration.
func selfCommand() ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(cfgPath)
	if err != nil {
		return nil, err
	}
	return []string{exe, "--config", dir, "-c"}, nil
}

// openEvents starts a session in the configured event log. The returned close
// function is never nil.
func openEvents(cfg *config.Configuration) (*logger.SessionLogger, func() error, error) {
	if cfg.AppLog == "" {
		return logger.Discard().Sessionless(), func() error { return nil }, nil
	}

	fd, err := cfg.OpenAppLog()
	if err != nil {
		return nil, nil, err
	}
	return logger.NewJsonLinesLogRecorder(fd).NewSession(), fd.Close, nil
}

// rootCmd runs the shell: interactively on standard input, or on the single
// line given with --command.
var rootCmd = &cobra.Command{
	Use:   "smash",
	Short: "Small shell with job control",
	Long: `A small interactive shell with job control: background jobs, ctrl-Z and
ctrl-C handling, pipes, redirection and timed jobs.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		events, closeEvents, err := openEvents(cfg)
		if err != nil {
			return err
		}
		defer closeEvents()

		self, err := selfCommand()
		if err != nil {
			return err
		}
		launcher := core.NewLauncher(self, cfg.ComplexShell, cfg.FallbackPath)

		child := cmd.Flags().Changed("command")
		sigs := core.InteractiveSignals
		if child {
			// The parent shell already owns the process group.
			sigs = core.ChildSignals
			launcher.NewGroup = false
		}
		bridge := core.NewSignalBridge(sigs...)

		shell := core.NewShell(cfg, core.Options{
			Launcher:    launcher,
			Events:      events,
			Signals:     bridge.C(),
			Interactive: !child,
		})
		shell.AddCloser(bridge)
		defer shell.Close()

		if child {
			code := shell.RunCommand(commandLine)
			shell.Close()
			closeEvents()
			os.Exit(code)
		}

		return shell.Run(os.Stdin)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
	rootCmd.Flags().StringVarP(&commandLine, "command", "c", "", "run a single line and exit")
}
