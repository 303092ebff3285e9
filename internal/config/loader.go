package config

import (
	"os"
	"path/filepath"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "phonograph.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "phonograph.yml"

// MaxUpwardSearchLevels limits how far FindProjectRoot climbs.
const MaxUpwardSearchLevels = 10

// FindConfigFile returns the config file in dir, or "" if there is none.
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to the first directory holding a
// config file. Returns "" if none is found within MaxUpwardSearchLevels.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for range MaxUpwardSearchLevels {
		if FindConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
	return ""
}
