package config

import (
	_ "embed"
	"os"
	"reflect"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
)

type Configuration struct {
	configFs afero.Fs

	// Prompt is the default shell title.
	Prompt        string `json:"prompt" validate:"required"`
	MaxArgs       int    `json:"max_args" validate:"gte=1"`
	MaxLineLength int    `json:"max_line_length" validate:"gte=1"`

	// ComplexShell runs lines that use globs, expansions or lists.
	ComplexShell string   `json:"complex_shell" validate:"required"`
	FallbackPath []string `json:"fallback_path" validate:"dive,required"`

	Color string `json:"color" validate:"oneof=always auto never"`

	// AppLog is the name of the job event log inside the configuration
	// directory. Empty disables the log.
	AppLog string `json:"app_log"`

	// KillSignal is sent on ctrl-C, to timed out jobs and by quit kill.
	KillSignal int `json:"kill_signal" validate:"gte=1,lte=64"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

// Signal returns KillSignal as a syscall.Signal.
func (c *Configuration) Signal() syscall.Signal {
	return syscall.Signal(c.KillSignal)
}

func (c *Configuration) fs() afero.Fs {
	if c.configFs == nil {
		return afero.NewMemMapFs()
	}
	return c.configFs
}

// OpenAppLog opens the application log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(c.AppLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ReadAppLog() (afero.File, error) {
	return c.fs().OpenFile(c.AppLog, os.O_RDONLY, 0600)
}

// Default returns the built-in configuration, backed by an in-memory
// filesystem.
func Default() *Configuration {
	out := defaultConfig()
	out.configFs = afero.NewMemMapFs()
	return out
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
