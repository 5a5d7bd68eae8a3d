package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Loaded is a resolved configuration with the warnings raised while
// reading it. Exists is false when defaults stand in for a missing file.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Source names where the configuration came from, for logs and doctor.
func (l Loaded) Source() string {
	if l.Exists {
		return l.Path
	}
	return "defaults"
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("line %d: %s", w.Line, w.Message)
	}
	return w.Message
}

// Load reads the config at explicitPath, or the XDG default when empty.
// A missing file yields defaults and a warning; any other read or parse
// failure is an error.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, found, err := readConfigFile(path)
	if err != nil {
		return Loaded{}, err
	}
	loaded := Loaded{Path: path, Exists: found}
	if !found {
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", path),
		})
	}

	cfg, warnings, err := Parse(content, Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	loaded.Config = cfg
	loaded.Warnings = append(loaded.Warnings, warnings...)
	return loaded, nil
}

func readConfigFile(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("read config %q: %w", path, err)
	}
	return string(data), true, nil
}
