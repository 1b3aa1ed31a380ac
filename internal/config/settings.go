package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces the environment variables read into Settings
const EnvPrefix = "SLUGSHIP"

// Settings holds deploy settings resolved from flags, SLUGSHIP_* environment
// variables and the project settings file, in that priority order.
// RegistryToken is a base64 "username:password" pair for Registry.
type Settings struct {
	App           string   `mapstructure:"app"`
	Stack         string   `mapstructure:"stack"`
	SlugFile      string   `mapstructure:"slug-file"`
	JDKVersion    string   `mapstructure:"jdk-version"`
	JDKURL        string   `mapstructure:"jdk-url"`
	VendorJDK     bool     `mapstructure:"vendor-jdk"`
	APIURL        string   `mapstructure:"api-url"`
	Client        string   `mapstructure:"client"`
	BuildVersion  string   `mapstructure:"build-version"`
	Registry      string   `mapstructure:"registry"`
	RegistryToken string   `mapstructure:"registry-token"`
	Includes      []string `mapstructure:"include"`
	RootDir       string   `mapstructure:"root"`
	TargetDir     string   `mapstructure:"target"`

	// ConfigVars and ProcessTypes are read verbatim from the settings file;
	// viper folds map keys to lower case, which would rename config vars.
	ConfigVars   map[string]string `mapstructure:"-"`
	ProcessTypes map[string]string `mapstructure:"-"`

	// File is the settings file that was read, if any
	File string `mapstructure:"-"`
}

// keys lists every setting that may come from the environment
var keys = []string{
	"app", "stack", "slug-file", "jdk-version", "jdk-url", "vendor-jdk",
	"api-url", "client", "build-version", "registry", "registry-token",
	"include", "root", "target",
}

// SetDefaults registers the default value of every setting on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("stack", "heroku-24")
	v.SetDefault("slug-file", "slug.tgz")
	v.SetDefault("jdk-url", "https://lang-jvm.s3.amazonaws.com/jdk")
	v.SetDefault("api-url", "https://api.heroku.com")
	v.SetDefault("client", "slugship")
	v.SetDefault("root", ".")
	v.SetDefault("target", "target")
}

// Load resolves Settings from v. When no settings file was configured
// explicitly, one is looked up in the project root.
func Load(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	file := v.ConfigFileUsed()
	if file == "" {
		if found := FindSettingsFile(v.GetString("root")); found != nil {
			file = found.Path
			v.SetConfigFile(file)
		}
	}
	if file != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", file, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.File = file

	if file != "" {
		sections, err := loadMapSections(file)
		if err != nil {
			return nil, err
		}
		s.ConfigVars = sections.ConfigVars
		s.ProcessTypes = sections.ProcessTypes
	}

	return &s, nil
}

type mapSections struct {
	ConfigVars   map[string]string `yaml:"config-vars" toml:"config-vars"`
	ProcessTypes map[string]string `yaml:"process-types" toml:"process-types"`
}

// loadMapSections reads the case-sensitive map sections of a settings file.
// JSON is parsed as YAML.
func loadMapSections(path string) (*mapSections, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	var sections mapSections
	if detectFormat(path) == "toml" {
		err = toml.Unmarshal(data, &sections)
	} else {
		err = yaml.Unmarshal(data, &sections)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return &sections, nil
}
