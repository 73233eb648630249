package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gajzzs/dropship/internal/errors"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
game_path: /games/overwatch/Overwatch.exe
selected:
  - blizzard/ord1
  - google/europe-north1
  - blizzard/ord1
flush_conntrack: true
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/games/overwatch/Overwatch.exe", cfg.GamePath)
	assert.Equal(t, []string{"blizzard/ord1", "google/europe-north1"}, cfg.Selected)
	assert.True(t, cfg.FlushConntrack)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Empty(t, cfg.RegionsFile)
}

func TestLoadCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selected: {nope"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dropship", "config.yaml")

	cfg := &Config{GamePath: "/games/app", RegionsFile: "/etc/dropship/regions.yaml"}
	cfg.SetSelected([]string{"blizzard/tpe1", "blizzard/tpe1", "blizzard/syd2"})
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is cleaned up")
}

func TestRemoveSelected(t *testing.T) {
	cfg := &Config{}
	cfg.SetSelected([]string{"a", "b", "c"})
	cfg.RemoveSelected("b")
	cfg.RemoveSelected("missing")
	assert.Equal(t, []string{"a", "c"}, cfg.Selected)
}
