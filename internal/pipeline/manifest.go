package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dna-labs/dna/internal/branding"
	"github.com/dna-labs/dna/internal/platform"
	"github.com/dna-labs/dna/internal/project"
)

// Manifest is written to the root of every generated project.
type Manifest struct {
	Template  string   `json:"template"`
	Framework string   `json:"framework"`
	Modules   []string `json:"modules"`
	Generated string   `json:"generated"`
	Version   string   `json:"version"`
}

// ManifestPath returns the manifest location inside a project directory.
func ManifestPath(projectDir string) string {
	return filepath.Join(projectDir, branding.ManifestFile())
}

func writeManifest(cfg project.ProjectConfig, version string, now time.Time) (string, error) {
	m := Manifest{
		Template:  cfg.TemplateID,
		Framework: cfg.FrameworkID,
		Modules:   append([]string{}, cfg.ModuleIDs...),
		Generated: now.UTC().Format(time.RFC3339),
		Version:   version,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}

	path := ManifestPath(cfg.OutputPath)
	if err := os.WriteFile(path, append(data, '\n'), platform.FilePerm); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// ReadManifest loads the manifest of a generated project.
func ReadManifest(projectDir string) (*Manifest, error) {
	path := ManifestPath(projectDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &m, nil
}
