package treehaus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// daemon file config

type Config struct {
	Listen string      `yaml:"listen"`
	Store  StoreConfig `yaml:"store"`
}

type StoreConfig struct {
	// file | sqlite
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen: ":7070",
		Store: StoreConfig{
			Backend: "file",
			Path:    "treehaus.json",
		},
	}
}

// LoadConfig reads a yaml config over the defaults, so a partial file
// is fine.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("bad config %s: %w", path, err)
	}
	return config, nil
}

func (self *Config) NewStore() (Store, error) {
	switch self.Store.Backend {
	case "", "file":
		return NewFileStore(self.Store.Path)
	case "sqlite":
		return NewSqliteStore(self.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", self.Store.Backend)
	}
}
