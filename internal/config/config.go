package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/dna-labs/dna/internal/branding"
	"github.com/dna-labs/dna/internal/project"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Keys accepted by Get and Set.
const (
	KeyMaxRetries          = "recovery.max_retries"
	KeyAutoFix             = "recovery.auto_fix"
	KeyGracefulDegradation = "recovery.graceful_degradation"
	KeyMinDiskSpace        = "validation.min_disk_space"
	KeyPackageManager      = "package_manager"
	KeyLogLevel            = "log.level"
	KeyLogFormat           = "log.format"
)

var defaultValues = map[string]any{
	KeyMaxRetries:          3,
	KeyAutoFix:             true,
	KeyGracefulDegradation: true,
	KeyMinDiskSpace:        "100 MB",
	KeyPackageManager:      "npm",
	KeyLogLevel:            "warn",
	KeyLogFormat:           "console",
}

// Settings is the decoded view of the config file, environment and defaults.
type Settings struct {
	Recovery       RecoverySettings   `mapstructure:"recovery"`
	Validation     ValidationSettings `mapstructure:"validation"`
	PackageManager string             `mapstructure:"package_manager"`
	Log            LogSettings        `mapstructure:"log"`
}

type RecoverySettings struct {
	MaxRetries          int  `mapstructure:"max_retries"`
	AutoFix             bool `mapstructure:"auto_fix"`
	GracefulDegradation bool `mapstructure:"graceful_degradation"`
}

type ValidationSettings struct {
	// MinDiskSpace is a human-readable size such as "100 MB".
	MinDiskSpace string `mapstructure:"min_disk_space"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MinDiskBytes parses Validation.MinDiskSpace.
func (s Settings) MinDiskBytes() (uint64, error) {
	n, err := humanize.ParseBytes(s.Validation.MinDiskSpace)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", KeyMinDiskSpace, s.Validation.MinDiskSpace, err)
	}
	return n, nil
}

// Dir returns the path to the DNA config directory (~/.dna/). DNA_HOME
// overrides it.
func Dir() string {
	if dir := os.Getenv(branding.EnvVar("HOME")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.dna/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
// Nested keys map to env vars with dots replaced, e.g. DNA_RECOVERY_MAX_RETRIES.
func Load() error {
	for key, value := range defaultValues {
		viper.SetDefault(key, value)
	}
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if _, err := os.Stat(FilePath()); os.IsNotExist(err) {
		return nil
	}
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", FilePath(), err)
	}
	return nil
}

// Current decodes the loaded settings.
func Current() (Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	return s, nil
}

// Keys returns the known setting keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaultValues))
	for k := range defaultValues {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if _, ok := defaultValues[key]; !ok {
		return fmt.Errorf("unknown key %q (known keys: %s)", key, strings.Join(Keys(), ", "))
	}
	if err := checkValue(key, value); err != nil {
		return err
	}
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

func checkValue(key, value string) error {
	var err error
	switch key {
	case KeyMaxRetries:
		var n int
		n, err = strconv.Atoi(value)
		if err == nil && n < 0 {
			err = errors.New("must not be negative")
		}
	case KeyAutoFix, KeyGracefulDegradation:
		_, err = strconv.ParseBool(value)
	case KeyMinDiskSpace:
		_, err = humanize.ParseBytes(value)
	case KeyPackageManager:
		_, err = project.ParsePackageManager(value)
	case KeyLogFormat:
		if value != "console" && value != "json" {
			err = errors.New("expected console or json")
		}
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	return nil
}
