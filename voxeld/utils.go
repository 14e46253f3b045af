package voxeld

import (
	"fmt"
	"path/filepath"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
	Tera = 1 << 40
)

// ConvertToAbsolute returns an absolute path, converting a relative path
// using the given directory as its base.
func ConvertToAbsolute(path string, configDir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return path, fmt.Errorf("could not get absolute path of directory %q: %v", configDir, err)
	}
	return filepath.Join(absDir, path), nil
}
