package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigDir_NonEmpty(t *testing.T) {
	dir := DefaultConfigDir()
	assert.NotEmpty(t, dir)
	assert.True(t, strings.Contains(dir, appName))
}

func TestDefaultDataDir_NonEmpty(t *testing.T) {
	dir := DefaultDataDir()
	assert.NotEmpty(t, dir)
	assert.True(t, strings.Contains(dir, appName))
}

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	path := DefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.True(t, strings.HasSuffix(path, "config.toml"))
}

func TestDefaultConfigDir_LinuxXDG(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("Linux-specific test")
	}

	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, filepath.Join("/custom/config", appName), DefaultConfigDir())
}

func TestDefaultDataDir_LinuxXDG(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("Linux-specific test")
	}

	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, filepath.Join("/custom/data", appName), DefaultDataDir())
}

func TestHistoryPath_ConfiguredWins(t *testing.T) {
	r := &Resolved{History: HistoryConfig{Path: "/var/lib/arkprobe.db"}}
	assert.Equal(t, "/var/lib/arkprobe.db", r.HistoryPath())
}

func TestHistoryPath_DefaultsToDataDir(t *testing.T) {
	r := &Resolved{}
	assert.Equal(t, filepath.Join(DefaultDataDir(), historyFileName), r.HistoryPath())
}
