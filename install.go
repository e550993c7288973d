package main

import (
	"os"
	"path/filepath"
)

// bottleRoots returns the directories CrossOver keeps its bottles in.
func bottleRoots() []string {
	roots := []string{
		"/Applications/CrossOver.app/Contents/SharedSupport/CrossOver/bottles",
	}
	if home, err := os.UserHomeDir(); err == nil {
		roots = append([]string{
			filepath.Join(home, "Library/Application Support/CrossOver/Bottles"),
			filepath.Join(home, ".cxoffice"),
		}, roots...)
	}
	return roots
}

// driveRoots returns the roots of native Windows installs.
func driveRoots() []string {
	return []string{`C:\`, `D:\`}
}

// findInstall returns the first game directory found, searching each bottle
// under the bottle roots and then each drive root.
func findInstall(bottles, drives []string) (string, bool) {
	for _, root := range bottles {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(root, e.Name(), "drive_c", filepath.FromSlash(gameDir))
			if isDir(dir) {
				return dir, true
			}
		}
	}
	for _, root := range drives {
		dir := filepath.Join(root, filepath.FromSlash(gameDir))
		if isDir(dir) {
			return dir, true
		}
	}
	return "", false
}

func isDir(name string) bool {
	st, err := os.Stat(name)
	return err == nil && st.IsDir()
}
