package agent

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the agent's runtime settings.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// DefaultFamily is used when an open request names no device family.
	DefaultFamily string

	// LibraryPath is the default backing native library path for opened
	// probes.
	LibraryPath string

	// ProbeLog enables worker-side logging for opened probes.
	ProbeLog bool

	// ProbeLogDir, when set, gives each worker its own log file under this
	// directory.
	ProbeLogDir string
}

// DefaultConfig returns the agent defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "127.0.0.1:9150",
	}
}

// agent config.toml key mapping.
type fileConfig struct {
	ListenAddr    string `toml:"listen_addr"`
	DefaultFamily string `toml:"default_family"`
	LibraryPath   string `toml:"library_path"`
	ProbeLog      bool   `toml:"probe_log"`
	ProbeLogDir   string `toml:"probe_log_dir"`
}

// LoadConfig reads a TOML config file and overlays it on the defaults. Keys
// absent from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("loading agent config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("default_family") {
		cfg.DefaultFamily = strings.TrimSpace(raw.DefaultFamily)
	}
	if meta.IsDefined("library_path") {
		cfg.LibraryPath = strings.TrimSpace(raw.LibraryPath)
	}
	if meta.IsDefined("probe_log") {
		cfg.ProbeLog = raw.ProbeLog
	}
	if meta.IsDefined("probe_log_dir") {
		cfg.ProbeLogDir = strings.TrimSpace(raw.ProbeLogDir)
	}
	return cfg, nil
}
