// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg provides XDG Base Directory paths for holochat.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "holochat"

// ConfigDir returns $XDG_CONFIG_HOME/holochat, falling back to ~/.config/holochat.
func ConfigDir() string {
	return dir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/holochat, falling back to ~/.local/share/holochat.
func DataDir() string {
	return dir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func dir(env, fallback string) string {
	base := os.Getenv(env)
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), fallback)
	}
	return filepath.Join(base, appName)
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
