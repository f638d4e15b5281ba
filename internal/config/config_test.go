package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "concentrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
bind: "0.0.0.0:6380"
group_name: mymaster
sentinels:
  address:
    - "127.0.0.1:26379"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:6380", cfg.Bind)
	assert.Equal(t, "mymaster", cfg.GroupName)
	assert.Equal(t, []string{"127.0.0.1:26379"}, cfg.Sentinels.Address)
	assert.Equal(t, 1000, cfg.Sentinels.CheckFrequency)
	assert.Equal(t, "log4rs.yml", cfg.Log.File)
	assert.True(t, cfg.Log.Logo)
	assert.Equal(t, 5000, cfg.Timeout.Sentinels)
	assert.Equal(t, 5000, cfg.Timeout.WorkerIdleTimeout)
	assert.Equal(t, 5, cfg.Workers.Pool.Min)
	assert.Equal(t, 10, cfg.Workers.Pool.Max)
}

func TestLoadHonoursExplicitOverrides(t *testing.T) {
	path := writeConfig(t, `
bind: "0.0.0.0:6380"
group_name: mymaster
sentinels:
  address: ["a:1", "b:2"]
  check_frequency: 250
workers:
  pool:
    min: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Sentinels.CheckFrequency)
	assert.Equal(t, 8, cfg.Workers.Pool.Min)
	assert.Equal(t, 10, cfg.Workers.Pool.Max)
}

func TestLoadRequiresBindGroupNameAndSentinels(t *testing.T) {
	cases := []string{
		`group_name: mymaster
sentinels:
  address: ["a:1"]`,
		`bind: "0.0.0.0:6380"
sentinels:
  address: ["a:1"]`,
		`bind: "0.0.0.0:6380"
group_name: mymaster`,
	}
	for _, body := range cases {
		path := writeConfig(t, body)
		_, err := Load(path)
		assert.Error(t, err)
	}
}
