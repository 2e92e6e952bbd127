package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cube2222/octoplan/optimizer"
)

var OctoplanDir = func() string {
	dir, err := homedir.Dir()
	if err != nil {
		log.Fatalf("couldn't get user home directory: %s", err)
	}
	return filepath.Join(dir, ".octoplan")
}()

var OctoplanCacheDir = filepath.Join(OctoplanDir, "cache")

// DefaultPath is where the configuration is read from when no path is given.
var DefaultPath = filepath.Join(OctoplanDir, "octoplan.yml")

type Config struct {
	Optimizer map[string]interface{} `yaml:"optimizer"`
	Cache     map[string]interface{} `yaml:"cache"`
}

func ReadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open file")
	}
	defer f.Close()

	var config Config
	if err := yaml.NewDecoder(f).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "couldn't decode yaml configuration")
	}

	return &config, nil
}

// ReadDefaultConfig reads the configuration at DefaultPath. A missing file means an empty configuration.
func ReadDefaultConfig() (*Config, error) {
	config, err := ReadConfig(DefaultPath)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return config, err
}

// OptimizerOptions translates the optimizer section into engine options.
// Fields left unset keep the engine defaults.
func (config *Config) OptimizerOptions() ([]optimizer.Option, error) {
	defaults := optimizer.DefaultOptions()

	maxNodeCount, err := GetInt(config.Optimizer, "maxNodeCount", WithDefault(defaults.MaxNodeCount))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get maxNodeCount")
	}
	maxScalarTreeSize, err := GetInt(config.Optimizer, "maxScalarTreeSize", WithDefault(defaults.MaxScalarTreeSize))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get maxScalarTreeSize")
	}
	ansiNullSemantics, err := GetBool(config.Optimizer, "ansiNullSemantics", WithDefault(defaults.AnsiNullSemantics))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get ansiNullSemantics")
	}
	verbose, err := GetBool(config.Optimizer, "verbose", WithDefault(false))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get verbose")
	}
	disabledRules, err := GetStringList(config.Optimizer, "disabledRules", WithDefault([]string(nil)))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get disabledRules")
	}

	return []optimizer.Option{
		optimizer.WithMaxNodeCount(maxNodeCount),
		optimizer.WithMaxScalarTreeSize(maxScalarTreeSize),
		optimizer.WithAnsiNullSemantics(ansiNullSemantics),
		optimizer.WithVerbose(verbose),
		optimizer.WithDisabledRules(disabledRules...),
	}, nil
}

// CacheMaxEntries is the number of rewritten documents kept in memory by the CLI.
func (config *Config) CacheMaxEntries() (int, error) {
	return GetInt(config.Cache, "maxEntries", WithDefault(1024))
}
