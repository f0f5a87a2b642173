package templates

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Metadata describes one project template.
type Metadata struct {
	ID                string     `yaml:"id" json:"id"`
	Name              string     `yaml:"name" json:"name"`
	Description       string     `yaml:"description" json:"description"`
	Framework         string     `yaml:"framework" json:"framework"`
	Category          string     `yaml:"category,omitempty" json:"category,omitempty"`
	Version           string     `yaml:"version" json:"version"`
	Tags              []string   `yaml:"tags,omitempty" json:"tags,omitempty"`
	CompatibleModules []string   `yaml:"compatibleModules,omitempty" json:"compatibleModules,omitempty"`
	MinDiskSpace      string     `yaml:"minDiskSpace,omitempty" json:"minDiskSpace,omitempty"`
	MinToolVersion    string     `yaml:"minToolVersion,omitempty" json:"minToolVersion,omitempty"`
	PackageManaged    bool       `yaml:"packageManaged,omitempty" json:"packageManaged,omitempty"`
	Variables         []Variable `yaml:"variables,omitempty" json:"variables,omitempty"`

	minDiskBytes   uint64
	toolConstraint *semver.Constraints
}

// Module describes a DNA module that can be composed onto templates.
type Module struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Frameworks  []string   `yaml:"frameworks" json:"frameworks"`
	Variables   []Variable `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// Variable is an input a template or module accepts.
type Variable struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Default     string `yaml:"default,omitempty" json:"default,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// SupportsModule reports whether id is in the template's compatible set.
func (m *Metadata) SupportsModule(id string) bool {
	for _, c := range m.CompatibleModules {
		if c == id {
			return true
		}
	}
	return false
}

// RequiredBytes returns the template's minimum free disk space, or fallback
// when the template does not declare one.
func (m *Metadata) RequiredBytes(fallback uint64) uint64 {
	if m.minDiskBytes > 0 {
		return m.minDiskBytes
	}
	return fallback
}

// ToolVersionAllowed checks version against the template's minToolVersion
// constraint. Versions that are not semver (development builds) are always
// allowed.
func (m *Metadata) ToolVersionAllowed(version string) bool {
	if m.toolConstraint == nil {
		return true
	}
	v, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return true
	}
	return m.toolConstraint.Check(v)
}

// SupportsFramework reports whether the module ships files for framework.
func (m *Module) SupportsFramework(framework string) bool {
	for _, f := range m.Frameworks {
		if f == framework {
			return true
		}
	}
	return false
}
