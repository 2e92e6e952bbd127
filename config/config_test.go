package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octoplan/optimizer"
)

const exampleConfig = `
optimizer:
  maxNodeCount: 500
  ansiNullSemantics: false
  disabledRules:
    - FilterOverProject
    - SimplifyCase
  limits:
    depth: 3
cache:
  maxEntries: 16
`

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "octoplan.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestReadConfig(t *testing.T) {
	config, err := ReadConfig(writeConfig(t, exampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 500, config.Optimizer["maxNodeCount"])
	assert.Equal(t, map[string]interface{}{"maxEntries": 16}, config.Cache)

	entries, err := config.CacheMaxEntries()
	require.NoError(t, err)
	assert.Equal(t, 16, entries)

	_, err = ReadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = ReadConfig(writeConfig(t, "optimizer: [1, 2"))
	assert.Error(t, err)
}

func TestOptimizerOptions(t *testing.T) {
	config, err := ReadConfig(writeConfig(t, exampleConfig))
	require.NoError(t, err)

	opts, err := config.OptimizerOptions()
	require.NoError(t, err)
	options := optimizer.DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	assert.Equal(t, optimizer.Options{
		MaxNodeCount:      500,
		MaxScalarTreeSize: 100,
		AnsiNullSemantics: false,
		DisabledRules: map[string]bool{
			"FilterOverProject": true,
			"SimplifyCase":      true,
		},
	}, options)

	empty := &Config{}
	opts, err = empty.OptimizerOptions()
	require.NoError(t, err)
	options = optimizer.DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	assert.Equal(t, 100000, options.MaxNodeCount)
	assert.True(t, options.AnsiNullSemantics)
	assert.Empty(t, options.DisabledRules)

	broken, err := ReadConfig(writeConfig(t, "optimizer:\n  maxNodeCount: lots\n"))
	require.NoError(t, err)
	_, err = broken.OptimizerOptions()
	assert.Error(t, err)
}

func TestGetters(t *testing.T) {
	config, err := ReadConfig(writeConfig(t, exampleConfig))
	require.NoError(t, err)

	depth, err := GetInt(config.Optimizer, "limits.depth")
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	_, err = GetInt(config.Optimizer, "limits.width")
	assert.Equal(t, ErrNotFound, errors.Cause(err))

	width, err := GetInt(config.Optimizer, "limits.width", WithDefault(7))
	require.NoError(t, err)
	assert.Equal(t, 7, width)

	_, err = GetInt(config.Optimizer, "maxNodeCount.value")
	assert.Error(t, err)

	_, err = GetString(config.Optimizer, "maxNodeCount")
	assert.EqualError(t, err, "expected string, got int")

	rules, err := GetStringList(config.Optimizer, "disabledRules")
	require.NoError(t, err)
	assert.Equal(t, []string{"FilterOverProject", "SimplifyCase"}, rules)

	limits, err := GetMap(config.Optimizer, "limits")
	require.NoError(t, err)
	assert.Len(t, limits, 1)

	verbose, err := GetBool(config.Optimizer, "verbose", WithDefault(true))
	require.NoError(t, err)
	assert.True(t, verbose)
}
