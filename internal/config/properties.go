// Package config loads project settings and the Java-style properties files a
// JVM project carries next to its build.
package config

import (
	"path/filepath"

	"github.com/magiconair/properties"
	"github.com/sirupsen/logrus"
)

const (
	// SystemPropertiesFile selects the runtime version
	SystemPropertiesFile = "system.properties"
	// RuntimeVersionKey is the key read from SystemPropertiesFile
	RuntimeVersionKey = "java.runtime.version"
	// DefaultRuntimeVersion applies when no version is configured
	DefaultRuntimeVersion = "1.8"

	// ProjectPropertiesFile carries per-project deploy overrides
	ProjectPropertiesFile = "heroku.properties"
	// AppNameKey overrides the deployed application name
	AppNameKey = "heroku.appName"
)

// LoadProperties reads a .properties file. A missing or unreadable file is
// logged at debug level and yields an empty set.
func LoadProperties(path string, log logrus.FieldLogger) *properties.Properties {
	p, err := properties.LoadFile(filepath.Clean(path), properties.UTF8)
	if err != nil {
		log.WithField("path", path).WithError(err).Debug("properties file not loaded")
		return properties.NewProperties()
	}
	return p
}

// RuntimeVersion returns the runtime version configured in the project's
// system.properties, or DefaultRuntimeVersion.
func RuntimeVersion(rootDir string, log logrus.FieldLogger) string {
	p := LoadProperties(filepath.Join(rootDir, SystemPropertiesFile), log)
	return p.GetString(RuntimeVersionKey, DefaultRuntimeVersion)
}

// AppNameOverride returns the app name set in the project's heroku.properties,
// or "" when none is set.
func AppNameOverride(rootDir string, log logrus.FieldLogger) string {
	p := LoadProperties(filepath.Join(rootDir, ProjectPropertiesFile), log)
	return p.GetString(AppNameKey, "")
}
