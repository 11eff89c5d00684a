// Package platform wraps the host specific bits: where pictures live, how to
// expand "~" and how to reveal a folder in the system file manager.
package platform

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/browser"
)

const (
	// AppFolder is the subfolder created below the user's pictures directory
	AppFolder = "PhonePhotos"
	// FallbackDestination is returned when no home directory can be resolved
	FallbackDestination = "~/Pictures/" + AppFolder
)

// ExpandHome replaces a leading "~" with the user's home directory. Other
// users' homes ("~bob") are left alone.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	return homedir.Expand(path)
}

// PicturesDir returns the user's pictures directory. On Linux the XDG user
// dirs are honored.
func PicturesDir() (string, bool) {
	home, err := homedir.Dir()
	if err != nil || home == "" {
		return "", false
	}
	if dir := os.Getenv("XDG_PICTURES_DIR"); dir != "" {
		return expandXDG(dir, home), true
	}
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}
	if dir, ok := readUserDirs(filepath.Join(configHome, "user-dirs.dirs"), home); ok {
		return dir, true
	}
	return filepath.Join(home, "Pictures"), true
}

// DefaultDestination is the pictures directory plus the application folder,
// or FallbackDestination when the pictures directory is unknown.
func DefaultDestination() string {
	dir, ok := PicturesDir()
	if !ok {
		return FallbackDestination
	}
	return filepath.Join(dir, AppFolder)
}

// OpenFolder reveals path in the system file manager
func OpenFolder(path string) error {
	expanded, err := ExpandHome(path)
	if err != nil {
		return err
	}
	return browser.OpenFile(expanded)
}

func readUserDirs(path, home string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		value, found := strings.CutPrefix(line, "XDG_PICTURES_DIR=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"`)
		if value == "" || value == "$HOME" || value == "$HOME/" {
			return "", false
		}
		return expandXDG(value, home), true
	}
	return "", false
}

func expandXDG(value, home string) string {
	if rest, ok := strings.CutPrefix(value, "$HOME"); ok {
		return filepath.Join(home, rest)
	}
	return value
}
