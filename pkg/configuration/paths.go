package configuration

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// configurationFileName is the name of the YAML configuration file resolved
// relative to the user's home directory.
const configurationFileName = ".watchman.yml"

// environmentFileName is the name of the optional dotenv override file,
// resolved relative to the same directory as the YAML configuration file.
const environmentFileName = ".watchman.env"

// ConfigurationPath returns the path of the YAML-based configuration file.
// It does not verify that the file exists.
func ConfigurationPath() (string, error) {
	homeDirectoryPath, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to compute path to home directory")
	}
	return filepath.Join(homeDirectoryPath, configurationFileName), nil
}

// EnvironmentPath returns the path of the optional dotenv override file. It
// does not verify that the file exists.
func EnvironmentPath() (string, error) {
	homeDirectoryPath, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to compute path to home directory")
	}
	return filepath.Join(homeDirectoryPath, environmentFileName), nil
}
