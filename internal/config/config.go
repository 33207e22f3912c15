// Package config loads and holds phrasematchd's service configuration
// (phrasebuild takes its settings from flags and a build config file).
// Settings are layered: defaults → match-config.json → environment
// variables (env vars win).
package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the full service configuration.
type Config struct {
	BindAddress string `json:"bindAddress"`
	Port        int    `json:"port"`
	LogLevel    string `json:"logLevel"`

	ArtifactDir     string `json:"artifactDir"`
	AutomatonFile   string `json:"automatonFile"`
	PayloadsFile    string `json:"payloadsFile"`
	ManifestFile    string `json:"manifestFile"`
	UseMmapPayloads bool   `json:"useMmapPayloads"`

	DefaultPolicy string `json:"defaultPolicy"`
	DefaultMax    uint32 `json:"defaultMax"`

	ShutdownTimeoutSeconds int `json:"shutdownTimeoutSeconds"`
}

// AutomatonPath, PayloadsPath, and ManifestPath join ArtifactDir with the
// respective filename fields.
func (c *Config) AutomatonPath() string { return filepath.Join(c.ArtifactDir, c.AutomatonFile) }
func (c *Config) PayloadsPath() string  { return filepath.Join(c.ArtifactDir, c.PayloadsFile) }
func (c *Config) ManifestPath() string  { return filepath.Join(c.ArtifactDir, c.ManifestFile) }

// Load returns config with defaults overridden by match-config.json and env vars.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "match-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		BindAddress:            "127.0.0.1",
		Port:                   8070,
		LogLevel:               "info",
		ArtifactDir:            "./artifacts",
		AutomatonFile:          "phrases.daac",
		PayloadsFile:           "payloads.bin",
		ManifestFile:           "manifest.json",
		UseMmapPayloads:        false,
		DefaultPolicy:          "leftmost_longest",
		DefaultMax:             100,
		ShutdownTimeoutSeconds: 15,
	}
}

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // G703: path is a controlled config file path, not user input
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ARTIFACT_DIR"); v != "" {
		cfg.ArtifactDir = v
	}
	if v := os.Getenv("AUTOMATON_FILE"); v != "" {
		cfg.AutomatonFile = v
	}
	if v := os.Getenv("PAYLOADS_FILE"); v != "" {
		cfg.PayloadsFile = v
	}
	if v := os.Getenv("MANIFEST_FILE"); v != "" {
		cfg.ManifestFile = v
	}
	if v := os.Getenv("USE_MMAP_PAYLOADS"); v == "true" {
		cfg.UseMmapPayloads = true
	}
	if v := os.Getenv("DEFAULT_POLICY"); v != "" {
		cfg.DefaultPolicy = v
	}
	if v := os.Getenv("DEFAULT_MAX"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.DefaultMax = uint32(n)
		}
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ShutdownTimeoutSeconds = n
		}
	}
}
