//go:build integration

package integration_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/dna-labs/dna/internal/pipeline"
	"github.com/dna-labs/dna/internal/project"
	"github.com/dna-labs/dna/internal/recovery"
	"github.com/dna-labs/dna/internal/render"
	"github.com/dna-labs/dna/internal/templates"
)

// newPipeline builds a pipeline over the embedded templates that runs real
// subprocesses.
func newPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	reg, err := templates.Load()
	if err != nil {
		t.Fatalf("loading templates: %v", err)
	}
	return pipeline.New(pipeline.Deps{
		Templates:   reg,
		Renderer:    render.New(reg),
		Runner:      pipeline.ExecRunner{},
		ToolVersion: "1.0.0",
	})
}

// projectConfig returns a config for the basic template under a fresh
// temp directory.
func projectConfig(t *testing.T, name string) project.ProjectConfig {
	t.Helper()
	return project.ProjectConfig{
		Name:           name,
		OutputPath:     filepath.Join(t.TempDir(), name),
		TemplateID:     "basic",
		FrameworkID:    "node",
		PackageManager: project.PackageManagerNPM,
	}
}

func nonInteractive() recovery.Options {
	return recovery.DefaultOptions()
}

// requireGit skips the test when git is not installed.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// requirePOSIX skips the test on platforms without /bin/sh.
func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
}

// fakeTool writes an executable shell script named name into a fresh
// directory and returns that directory.
func fakeTool(t *testing.T, name, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return dir
}

// prependPath puts dir first on PATH for the rest of the test.
func prependPath(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// writeFile creates a file at the given path with the given content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating dir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// assertFileExists fails the test if the file does not exist.
func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %s (error: %v)", path, err)
	}
}

// assertFileNotExists fails the test if the file exists.
func assertFileNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Errorf("expected file NOT to exist: %s", path)
	}
}

// assertDirExists fails the test if the directory does not exist.
func assertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Errorf("expected directory to exist: %s (error: %v)", path, err)
		return
	}
	if !info.IsDir() {
		t.Errorf("expected %s to be a directory, but it is a file", path)
	}
}

// assertFileContains fails if the file doesn't exist or doesn't contain substr.
func assertFileContains(t *testing.T, path, substr string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("reading %s: %v", path, err)
		return
	}
	if !strings.Contains(string(data), substr) {
		t.Errorf("file %s does not contain %q.\nContents:\n%s", path, substr, string(data))
	}
}
