// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dir  func() string
		set  string
		want string
	}{
		{"config from env", "XDG_CONFIG_HOME", ConfigDir, "/custom/config", "/custom/config/pftl"},
		{"config default", "XDG_CONFIG_HOME", ConfigDir, "", "/home/testuser/.config/pftl"},
		{"data from env", "XDG_DATA_HOME", DataDir, "/custom/data", "/custom/data/pftl"},
		{"data default", "XDG_DATA_HOME", DataDir, "", "/home/testuser/.local/share/pftl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", "/home/testuser")
			t.Setenv(tt.env, tt.set)
			assert.Equal(t, tt.want, tt.dir())
		})
	}
}

func TestFiles(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")

	assert.Equal(t, "/cfg/pftl/pftl.yaml", ConfigFile())
	assert.Equal(t, "/data/pftl/results.db", ResultsDB())
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.Error(t, EnsureDir(filepath.Join(file, "child")))
}
