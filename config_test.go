package treehaus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestLoadConfigOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treehaus.yml")
	err := os.WriteFile(path, []byte("store:\n  backend: sqlite\n  path: /var/lib/treehaus.db\n"), 0600)
	assert.Equal(t, nil, err)

	config, err := LoadConfig(path)
	assert.Equal(t, nil, err)

	// a partial file keeps the defaults for everything else
	assert.Equal(t, DefaultConfig().Listen, config.Listen)
	assert.Equal(t, "sqlite", config.Store.Backend)
	assert.Equal(t, "/var/lib/treehaus.db", config.Store.Path)
}

func TestConfigUnknownBackend(t *testing.T) {
	config := DefaultConfig()
	config.Store.Backend = "postgres"
	_, err := config.NewStore()
	assert.NotEqual(t, nil, err)
}
