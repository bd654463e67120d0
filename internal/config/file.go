package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// readFile decodes the TOML file at path into cfg. A missing file
// leaves cfg untouched.
func readFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	for _, key := range meta.Undecoded() {
		fmt.Fprintf(os.Stderr, "[WARN] unknown config key %q in %s\n", key, path)
	}
	return nil
}

// SetKey writes a non-secret config key to the TOML file at path,
// preserving any other keys the file holds.
func SetKey(path, key, value string) error {
	spec, err := findSpec(key)
	if err != nil {
		return err
	}
	if spec.secret {
		return fmt.Errorf("cannot set secret %q via config file; use environment variable %s", key, spec.env)
	}

	section, field, ok := strings.Cut(key, ".")
	if !ok {
		return fmt.Errorf("invalid config key: %q", key)
	}

	data := make(map[string]any)
	if raw, err := os.ReadFile(path); err == nil {
		if _, err := toml.Decode(string(raw), &data); err != nil {
			return fmt.Errorf("parsing config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	table, _ := data[section].(map[string]any)
	if table == nil {
		table = make(map[string]any)
	}
	switch spec.typ {
	case kInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		table[field] = i
	default:
		table[field] = value
	}
	data[section] = table

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(data); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

func findSpec(key string) (keySpec, error) {
	for _, s := range specs {
		if s.key == key {
			return s, nil
		}
	}
	return keySpec{}, fmt.Errorf("unknown config key: %q", key)
}
