package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hwbench/config"
)

func TestCompile(t *testing.T) {
}

func TestDefaults(t *testing.T) {
	c := config.ReadConfig(`
workload:
  cache_line_size: 64
  default_buffer: 1MiB
numa:
  sysfs_root: /sys/devices/system/node
`)
	assert.Equal(t, 64, c.Workload.CACHE_LINE_SIZE)
	assert.Equal(t, "/sys/devices/system/node", c.Numa.SYSFS_ROOT)
	n, err := c.DefaultBufferBytes()
	require.Nil(t, err)
	assert.Equal(t, uint64(1<<20), n)

	assert.NotNil(t, config.Conf)
	assert.True(t, config.Conf.Lockbench.TRIALS > 0)
}

func TestOverride(t *testing.T) {
	c := config.ReadConfig("numa:\n  max_nodes: 256\nlockbench:\n  trials: 5\n")
	ov := config.FromEnv("numa.max_nodes=8; lockbench.pin=true;bogus;nosection=1")
	assert.Equal(t, 2, len(ov))

	err := config.Override(c, ov)
	require.Nil(t, err)
	assert.Equal(t, 8, c.Numa.MAX_NODES)
	assert.True(t, c.Lockbench.PIN)
	assert.Equal(t, 5, c.Lockbench.TRIALS, "untouched")
}

func TestReadConfigFile(t *testing.T) {
	pn := filepath.Join(t.TempDir(), "hwbench.yaml")
	err := os.WriteFile(pn, []byte("workload:\n  burst_block: 50\n"), 0644)
	require.Nil(t, err)

	c, err := config.ReadConfigFile(pn)
	require.Nil(t, err)
	assert.Equal(t, uint64(50), c.Workload.BURST_BLOCK)
	assert.Equal(t, 4, c.Workload.BURST_FACTOR, "default kept")

	_, err = config.ReadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotNil(t, err)
}
