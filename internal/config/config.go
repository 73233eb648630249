// Package config stores the user's preferences between invocations.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gajzzs/dropship/internal/errors"
)

const (
	appDir   = "dropship"
	fileName = "config.yaml"
)

// Config holds the preferences the CLI falls back to when a flag or
// argument is omitted.
type Config struct {
	GamePath       string   `yaml:"game_path,omitempty"`
	Selected       []string `yaml:"selected,omitempty"`
	RegionsFile    string   `yaml:"regions_file,omitempty"`
	FlushConntrack bool     `yaml:"flush_conntrack,omitempty"`
	LogLevel       string   `yaml:"log_level,omitempty"`
}

// DefaultPath returns $XDG_CONFIG_HOME/dropship/config.yaml or the
// platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, errors.KindNotFound, "cannot locate user config directory")
	}
	return filepath.Join(dir, appDir, fileName), nil
}

// Load reads the preferences at path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, errors.KindInternal, "failed to read %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, errors.KindValidation, "config file %s is corrupted", path)
	}
	cfg.Selected = removeDuplicates(cfg.Selected)
	return cfg, nil
}

// Save writes the preferences to path atomically, readable only by the
// owner.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to encode config")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+fileName+".*")
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to create temporary config")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.KindInternal, "failed to write config")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.KindInternal, "failed to restrict config permissions")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to write config")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to replace %s", path)
	}
	return nil
}

// SetSelected replaces the selected region keys, dropping duplicates.
func (c *Config) SetSelected(keys []string) {
	c.Selected = removeDuplicates(keys)
}

// RemoveSelected drops key from the selection.
func (c *Config) RemoveSelected(key string) {
	c.Selected = removeFromSlice(c.Selected, key)
}

func removeDuplicates(slice []string) []string {
	if slice == nil {
		return nil
	}
	seen := make(map[string]bool)
	result := []string{}
	for _, item := range slice {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}

func removeFromSlice(slice []string, item string) []string {
	for i, v := range slice {
		if v == item {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}
