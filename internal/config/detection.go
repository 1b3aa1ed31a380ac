package config

import (
	"os"
	"path/filepath"
	"strings"
)

// SettingsFile represents a detected project settings file
type SettingsFile struct {
	Path   string
	Format string
}

// DefaultSettingsFiles lists the settings file names looked up in the project
// root, in priority order
var DefaultSettingsFiles = []string{"slugship.yaml", "slugship.yml", "slugship.json", "slugship.toml"}

// FindSettingsFile returns the first settings file present in dir, or nil when
// the project has none.
func FindSettingsFile(dir string) *SettingsFile {
	for _, name := range DefaultSettingsFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return &SettingsFile{
				Path:   path,
				Format: detectFormat(name),
			}
		}
	}
	return nil
}

func detectFormat(path string) string {
	switch ext := strings.TrimPrefix(filepath.Ext(path), "."); ext {
	case "yaml", "yml":
		return "yaml"
	case "json", "toml":
		return ext
	default:
		return "unknown"
	}
}
