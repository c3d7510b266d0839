package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", t.TempDir())

		cfg, err := Load(nil)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "text", cfg.Log.Format)
		assert.Equal(t, 2*time.Second, cfg.Proxy.ProbeTimeout)
		assert.True(t, cfg.Metrics.Enabled)
	})

	t.Run("Valid Config", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "devproxy.yaml")

		configContent := `
server:
  host: "0.0.0.0"
  port: 3000
  static_dir: "./dist"

proxy:
  path: "./proxy.config.yaml"
  show_proxy: true
  probe_timeout: 500ms

log:
  level: "debug"
  format: "json"
`
		err := os.WriteFile(configPath, []byte(configContent), 0644)
		require.NoError(t, err)
		t.Setenv("CONFIG_PATH", tmpDir)

		cfg, err := Load(nil)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr())
		assert.Equal(t, "./dist", cfg.Server.StaticDir)
		assert.Equal(t, "./proxy.config.yaml", cfg.Proxy.Path)
		assert.True(t, cfg.Proxy.ShowProxy)
		assert.Equal(t, 500*time.Millisecond, cfg.Proxy.ProbeTimeout)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, cfg, GetConfig())
	})

	t.Run("Env and flags override", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", t.TempDir())
		t.Setenv("DEVPROXY_LOG_LEVEL", "warn")

		flags := Flags()
		require.NoError(t, flags.Parse([]string{"--port", "9000", "--show-proxy", "--shallow", "-c", "vue.config.yaml"}))

		cfg, err := Load(flags)
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.True(t, cfg.Proxy.ShowProxy)
		assert.Equal(t, "vue.config.yaml", cfg.Proxy.Path)
		assert.True(t, cfg.Proxy.Shallow)
		assert.Equal(t, "warn", cfg.Log.Level)
	})
}
