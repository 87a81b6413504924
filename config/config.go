package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the node-level runtime settings for collard. Protocol
// economics live separately in the YAML params file so operators can tune
// them without touching the node setup.
type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	DataDir        string `toml:"DataDir"`
	ParamsFile     string `toml:"ParamsFile"`
	LogLevel       string `toml:"LogLevel"`
	MetricsEnabled bool   `toml:"MetricsEnabled"`
	RateLimitRPS   int    `toml:"RateLimitRPS"`
	RateLimitBurst int    `toml:"RateLimitBurst"`
}

// Load reads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	cfg.normalize(path)
	return cfg, nil
}

func (cfg *Config) normalize(path string) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8547"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = filepath.Join(filepath.Dir(path), "data")
	}
	if strings.TrimSpace(cfg.ParamsFile) == "" {
		cfg.ParamsFile = filepath.Join(filepath.Dir(path), "params.yaml")
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 25
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 50
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.normalize(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
