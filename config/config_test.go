package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"g8rtos/kernel"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	kc := cfg.KernelConfig()
	require.Equal(t, kernel.DefaultMaxThreads, kc.MaxThreads)
	require.Equal(t, kernel.DefaultStackSize, kc.StackSize)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
kernel:
  max_threads: 8
  fifo_depth: 32
  stack_size: 4KB
demo:
  heartbeat_period: 250
log:
  level: debug
`))
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Kernel.MaxThreads)
	require.Equal(t, 32, cfg.Kernel.FIFODepth)
	require.Equal(t, 4096, cfg.Kernel.StackSize.Bytes())
	require.Equal(t, uint32(250), cfg.Demo.HeartbeatPeriod)
	require.Equal(t, "debug", cfg.Log.Level)

	require.Equal(t, kernel.DefaultMaxPeriodic, cfg.Kernel.MaxPeriodic)
	require.Equal(t, uint32(33), cfg.Demo.FramePeriod)
}

func TestParsePlainIntegerSize(t *testing.T) {
	cfg, err := Parse([]byte("kernel:\n  stack_size: 1024\n"))
	require.NoError(t, err)
	require.Equal(t, 1024, cfg.Kernel.StackSize.Bytes())
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "kernel:\n  max_thread: 3\n",
		"bad size":        "kernel:\n  stack_size: lots\n",
		"tiny stack":      "kernel:\n  stack_size: 16\n",
		"no fifo room":    "kernel:\n  fifo_depth: 1\n",
		"no threads":      "kernel:\n  max_threads: 0\n",
		"button priority": "demo:\n  button_priority: 7\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host:\n  headless: true\n  hz: 120\n"), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Host.Headless)
	require.Equal(t, 120, cfg.Host.Hz)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
