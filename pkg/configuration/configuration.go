// Package configuration loads the two tuning values this system consumes
// from external configuration (§6): the watcher's descriptor-map capacity
// hint and its per-batch event-coalescing limit.
package configuration

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/Server-perf/watchman/pkg/encoding"
)

// environmentHintNumDirs and environmentBatchLimit are the dotenv/OS
// environment variable names that override the YAML-loaded values.
const (
	environmentHintNumDirs = "WATCHMAN_HINT_NUM_DIRS"
	environmentBatchLimit  = "WATCHMAN_BATCH_LIMIT"
)

// Configuration is the YAML-based configuration object type.
type Configuration struct {
	// HintNumDirs is the initial capacity hint for the watcher's
	// descriptor map (§6: "initial capacity hint for the watcher's
	// descriptor map").
	HintNumDirs int `yaml:"hint_num_dirs"`
	// BatchLimit bounds how many raw events a single coalescing window
	// may accumulate before the batch is considered overflowed (§6:
	// "Per-platform tuning (e.g., batch-limit for event draining)").
	BatchLimit int `yaml:"batch_limit"`
}

// Default returns the configuration used when no file is present and no
// environment override applies.
func Default() Configuration {
	return Configuration{
		HintNumDirs: 8192,
		BatchLimit:  128,
	}
}

// Load reads path as YAML into a Configuration seeded with Default,
// falling back to Default entirely if path doesn't exist. It then applies
// any override from an environment file at envPath (which may not exist)
// and from the OS environment, OS environment taking precedence.
func Load(path, envPath string) (*Configuration, error) {
	result := Default()

	if err := encoding.LoadAndUnmarshalYAML(path, &result); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	environment, err := godotenv.Read(envPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "unable to load environment override file")
	}
	if environment == nil {
		environment = make(map[string]string)
	}
	for _, key := range []string{environmentHintNumDirs, environmentBatchLimit} {
		if value, ok := os.LookupEnv(key); ok {
			environment[key] = value
		}
	}

	if err := result.applyEnvironment(environment); err != nil {
		return nil, err
	}

	return &result, nil
}

// applyEnvironment overrides c's fields from environment, if the
// corresponding keys are present and parse as integers.
func (c *Configuration) applyEnvironment(environment map[string]string) error {
	if raw, ok := environment[environmentHintNumDirs]; ok {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrapf(err, "invalid %s value", environmentHintNumDirs)
		}
		c.HintNumDirs = value
	}
	if raw, ok := environment[environmentBatchLimit]; ok {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrapf(err, "invalid %s value", environmentBatchLimit)
		}
		c.BatchLimit = value
	}
	return nil
}
