// Package branding provides compile-time identity values for the CLI.
//
// Forkers edit branding.yaml in this package before building. Go's
// //go:embed bakes it into the binary, and hard defaults apply for any key
// the file leaves out.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName      string `yaml:"cli_name"`
	DisplayName  string `yaml:"display_name"`
	Description  string `yaml:"description"`
	HomeDir      string `yaml:"home_dir"`
	EnvPrefix    string `yaml:"env_prefix"`
	GoModule     string `yaml:"go_module"`
	ManifestFile string `yaml:"manifest_file"`
	BackupInfix  string `yaml:"backup_infix"`
}

func load() {
	once.Do(func() {
		// Set hard defaults in case the embedded file is missing/empty.
		defaults = brand{
			CLIName:      "dna",
			DisplayName:  "DNA",
			Description:  "Transactional project generator for composable templates",
			HomeDir:      ".dna",
			EnvPrefix:    "DNA",
			GoModule:     "github.com/dna-labs/dna",
			ManifestFile: "dna.config.json",
			BackupInfix:  ".backup.",
		}
		// Overlay with embedded YAML values.
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "dna").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name (e.g., "DNA").
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".dna").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "DNA").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GoModule returns the Go module path. Not consumed at runtime.
func GoModule() string { load(); return defaults.GoModule }

// ManifestFile returns the name of the manifest written into generated
// projects (e.g., "dna.config.json").
func ManifestFile() string { load(); return defaults.ManifestFile }

// BackupInfix returns the separator placed between an output path and the
// backup timestamp (e.g., "/work/demo" + ".backup." + "1700000000000").
func BackupInfix() string { load(); return defaults.BackupInfix }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("HOME") → "DNA_HOME".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
