package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Initialize writes the default configuration into dir, creating it if
// needed. An existing configuration is never overwritten.
func Initialize(dir string, logger *log.Logger) error {
	logger.Printf("Creating directory %q\n", dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	return InitializeFs(afero.NewBasePathFs(afero.NewOsFs(), dir), logger)
}

// InitializeFs writes the default configuration to the root of fsys.
func InitializeFs(fsys afero.Fs, logger *log.Logger) error {
	exists, err := afero.Exists(fsys, ConfigurationName)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s already exists", ConfigurationName)
	}

	logger.Printf("Writing %q\n", filepath.Join(".", ConfigurationName))
	return afero.WriteFile(fsys, ConfigurationName, defaultConfigData, 0600)
}
