package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// overlayJSON5File reads a relaxed-JSON (JSON5) config file and unmarshals
// it on top of cfg. A missing file is not an error: the CLI falls back to
// config.json when no path is given, and that file need not exist.
func overlayJSON5File(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
