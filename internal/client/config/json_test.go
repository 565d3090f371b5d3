package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJSON(t *testing.T) {
	t.Run("overlays given keys only", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{
			"server_endpoint_addr":  "www.example:9000",
			"online_check_interval": "10s",
			"upload_timeout":        int64(2 * time.Second),
		})

		cfg := defaults()
		require.NoError(t, parseJSON(&cfg, path))

		assert.Equal(t, "www.example:9000", cfg.ServerEndpointAddr)
		assert.Equal(t, 10*time.Second, cfg.OnlineCheckInterval)
		assert.Equal(t, 2*time.Second, cfg.UploadTimeout)
		assert.Equal(t, "gophscan.db", cfg.DatabasePath)
		assert.True(t, cfg.AutoSync)
	})

	t.Run("invalid duration", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{"sync_interval": "often"})
		cfg := defaults()
		require.Error(t, parseJSON(&cfg, path))
	})
}
