package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/blockcache"
	"github.com/dargueta/easyfs/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "easyfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPresets__Parsed(t *testing.T) {
	presets := config.Presets()
	require.NotEmpty(t, presets)

	for i := 1; i < len(presets); i++ {
		assert.LessOrEqualf(
			t,
			presets[i-1].TotalBlocks,
			presets[i].TotalBlocks,
			"presets %q and %q are out of order",
			presets[i-1].Slug,
			presets[i].Slug,
		)
	}

	rcore, err := config.GetPreset("rcore")
	require.NoError(t, err)
	assert.EqualValues(t, 32768, rcore.TotalBlocks)
	assert.EqualValues(t, 1, rcore.InodeBitmapBlocks)
	assert.EqualValues(t, 16*1024*1024, rcore.SizeBytes())
}

func TestGetPreset__Unknown(t *testing.T) {
	_, err := config.GetPreset("no-such-preset")
	assert.ErrorIs(t, err, easyfs.ErrNotFound)
}

func TestLoad__DefaultsOnly(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, blockcache.DefaultCapacity, cfg.CacheCapacity)
	require.NoError(t, cfg.Validate())
}

func TestLoad__File(t *testing.T) {
	path := writeConfigFile(t, "cacheCapacity: 64\npreset: floppy-1440k\nverbose: true\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.CacheCapacity)
	assert.Equal(t, "floppy-1440k", cfg.Preset)
	assert.True(t, cfg.Verbose)

	totalBlocks, inodeBitmapBlocks, err := cfg.Geometry()
	require.NoError(t, err)
	assert.EqualValues(t, 2880, totalBlocks)
	assert.EqualValues(t, 1, inodeBitmapBlocks)
}

func TestLoad__UnknownKeyInFile(t *testing.T) {
	path := writeConfigFile(t, "cacheCapacity: 64\nblockSize: 1024\n")
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad__MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad__EnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "cacheCapacity: 64\ntotalBlocks: 8192\n")
	t.Setenv("EASYFS_CACHE_CAPACITY", "8")
	t.Setenv("EASYFS_INODE_BITMAP_BLOCKS", "2")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.CacheCapacity)
	assert.EqualValues(t, 8192, cfg.TotalBlocks)
	assert.EqualValues(t, 2, cfg.InodeBitmapBlocks)
}

func TestLoad__BadEnvironmentValue(t *testing.T) {
	t.Setenv("EASYFS_TOTAL_BLOCKS", "lots")
	_, err := config.Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.CacheCapacity = 0
	assert.ErrorIs(t, cfg.Validate(), easyfs.ErrInvalidArgument)

	cfg.CacheCapacity = blockcache.MinCapacity - 1
	assert.ErrorIs(t, cfg.Validate(), easyfs.ErrInvalidArgument, "cache too small to mount with")

	cfg.CacheCapacity = blockcache.MinCapacity
	assert.NoError(t, cfg.Validate())

	cfg = config.Default()
	cfg.Preset = "bogus"
	assert.ErrorIs(t, cfg.Validate(), easyfs.ErrNotFound)

	cfg = config.Default()
	cfg.TotalBlocks = 4
	assert.Error(t, cfg.Validate(), "four blocks can't hold a filesystem")
}

func TestLogger__Verbose(t *testing.T) {
	var output bytes.Buffer

	cfg := config.Default()
	cfg.Logger(&output).Print("hidden")
	assert.Empty(t, output.String())

	cfg.Verbose = true
	cfg.Logger(&output).Print("shown")
	assert.Contains(t, output.String(), "component=easyfs")
	assert.Contains(t, output.String(), "msg=shown")
}

func TestFileSystemOptions(t *testing.T) {
	cfg := config.Default()
	assert.Len(t, cfg.FileSystemOptions(&bytes.Buffer{}), 2)
}
