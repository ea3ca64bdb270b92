// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PFTL Contributors

// Package xdg resolves XDG Base Directory paths for pftl.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "pftl"

func base(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	return filepath.Join(append([]string{os.Getenv("HOME")}, fallback...)...)
}

// ConfigDir returns $XDG_CONFIG_HOME/pftl, defaulting to ~/.config/pftl.
func ConfigDir() string {
	return filepath.Join(base("XDG_CONFIG_HOME", ".config"), appName)
}

// DataDir returns $XDG_DATA_HOME/pftl, defaulting to ~/.local/share/pftl.
func DataDir() string {
	return filepath.Join(base("XDG_DATA_HOME", ".local", "share"), appName)
}

// ConfigFile is the default config file location.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "pftl.yaml")
}

// ResultsDB is the default SQLite result database.
func ResultsDB() string {
	return filepath.Join(DataDir(), "results.db")
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.With("path", path).Wrapf(err, "create directory")
	}
	return nil
}
