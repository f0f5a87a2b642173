package render

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/dna-labs/dna/internal/platform"
	"github.com/dna-labs/dna/internal/templates"
)

const templateSuffix = ".tmpl"

// Request is a fully resolved render job. Type is the template id.
type Request struct {
	Name       string
	Type       string
	Framework  string
	ModuleIDs  []string
	OutputPath string
	Variables  map[string]string
}

// Response reports the outcome of Render. Errors are collected per file
// rather than stopping at the first failure.
type Response struct {
	Success  bool
	Errors   []string
	Files    []string
	Warnings []string
}

// Renderer writes a project's files.
type Renderer interface {
	Render(req Request) Response
}

// Previewer lists the files Render would write without touching disk.
type Previewer interface {
	Preview(req Request) ([]string, error)
}

// Source provides template metadata and file trees.
type Source interface {
	Get(id string) (*templates.Metadata, bool)
	Module(id string) (*templates.Module, bool)
	TemplateFiles(id string) (fs.FS, error)
	ModuleFiles(id, framework string) (fs.FS, error)
}

// Engine renders templates from a Source.
type Engine struct {
	src Source
	now func() time.Time
}

var (
	_ Renderer  = (*Engine)(nil)
	_ Previewer = (*Engine)(nil)
)

// New creates an engine over src.
func New(src Source) *Engine {
	return &Engine{src: src, now: time.Now}
}

// Data is the value templates execute against.
type Data struct {
	Name      string
	Framework string
	Modules   []string
	Year      int
	Vars      map[string]string
}

// unit is one file tree to render, in order.
type unit struct {
	label string
	files fs.FS
}

// output is one rendered file.
type output struct {
	rel     string
	content []byte
}

// Render executes every file of the template and its modules into
// req.OutputPath. Later modules overwrite files of earlier ones.
func (e *Engine) Render(req Request) Response {
	outputs, warnings, errs := e.build(req)
	resp := Response{Warnings: warnings, Errors: errs}
	if len(errs) > 0 {
		return resp
	}

	for _, out := range outputs {
		dst := filepath.Join(req.OutputPath, filepath.FromSlash(out.rel))
		if err := writeFile(dst, out.content); err != nil {
			resp.Errors = append(resp.Errors, err.Error())
			continue
		}
		resp.Files = append(resp.Files, out.rel)
	}
	resp.Success = len(resp.Errors) == 0
	return resp
}

// Preview renders every file in memory and returns the relative paths that
// Render would write, sorted.
func (e *Engine) Preview(req Request) ([]string, error) {
	outputs, _, errs := e.build(req)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	files := make([]string, 0, len(outputs))
	for _, out := range outputs {
		files = append(files, out.rel)
	}
	sort.Strings(files)
	return files, nil
}

func (e *Engine) build(req Request) ([]output, []string, []string) {
	var warnings, errs []string

	meta, ok := e.src.Get(req.Type)
	if !ok {
		return nil, nil, []string{fmt.Sprintf("template %q not found", req.Type)}
	}
	framework := req.Framework
	if framework == "" {
		framework = meta.Framework
	}

	tmplFiles, err := e.src.TemplateFiles(meta.ID)
	if err != nil {
		return nil, nil, []string{err.Error()}
	}
	units := []unit{{label: meta.ID, files: tmplFiles}}
	varDefs := append([]templates.Variable(nil), meta.Variables...)

	for _, id := range req.ModuleIDs {
		mod, ok := e.src.Module(id)
		if !ok {
			errs = append(errs, fmt.Sprintf("module %q not found", id))
			continue
		}
		if !mod.SupportsFramework(framework) {
			warnings = append(warnings, fmt.Sprintf("module %q has no files for framework %q; skipped", id, framework))
			continue
		}
		files, err := e.src.ModuleFiles(id, framework)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		units = append(units, unit{label: id, files: files})
		varDefs = append(varDefs, mod.Variables...)
	}

	vars, varErrs := resolveVariables(varDefs, req.Variables)
	errs = append(errs, varErrs...)
	if len(errs) > 0 {
		return nil, warnings, errs
	}

	data := Data{
		Name:      req.Name,
		Framework: framework,
		Modules:   append([]string(nil), req.ModuleIDs...),
		Year:      e.now().Year(),
		Vars:      vars,
	}

	var outputs []output
	index := make(map[string]int)
	for _, u := range units {
		rendered, unitErrs := renderUnit(u, data)
		errs = append(errs, unitErrs...)
		for _, out := range rendered {
			if i, dup := index[out.rel]; dup {
				warnings = append(warnings, fmt.Sprintf("%s: %s overrides an earlier file", u.label, out.rel))
				outputs[i] = out
				continue
			}
			index[out.rel] = len(outputs)
			outputs = append(outputs, out)
		}
	}
	return outputs, warnings, errs
}

// resolveVariables applies declared defaults, then the caller's values.
// Missing required variables are reported as errors.
func resolveVariables(defs []templates.Variable, given map[string]string) (map[string]string, []string) {
	vars := make(map[string]string, len(defs)+len(given))
	for _, def := range defs {
		if _, ok := vars[def.Name]; !ok {
			vars[def.Name] = def.Default
		}
	}
	for k, v := range given {
		vars[k] = v
	}

	var errs []string
	for _, def := range defs {
		if def.Required && vars[def.Name] == "" {
			errs = append(errs, fmt.Sprintf("missing required variable %q", def.Name))
		}
	}
	return vars, errs
}

func renderUnit(u unit, data Data) ([]output, []string) {
	var outputs []output
	var errs []string

	walkErr := fs.WalkDir(u.files, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", u.label, err))
			return nil
		}
		if d.IsDir() {
			return nil
		}

		raw, err := fs.ReadFile(u.files, p)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: reading %s: %v", u.label, p, err))
			return nil
		}

		if !strings.HasSuffix(p, templateSuffix) {
			outputs = append(outputs, output{rel: p, content: raw})
			return nil
		}

		rel := strings.TrimSuffix(p, templateSuffix)
		content, err := execute(path.Base(p), raw, data)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %s: %v", u.label, rel, err))
			return nil
		}
		outputs = append(outputs, output{rel: rel, content: content})
		return nil
	})
	if walkErr != nil {
		errs = append(errs, fmt.Sprintf("%s: %v", u.label, walkErr))
	}
	return outputs, errs
}

func execute(name string, raw []byte, data Data) ([]byte, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFile(dst string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), platform.DirPerm); err != nil {
		return fmt.Errorf("creating directory for %s: %w", dst, err)
	}
	if err := os.WriteFile(dst, content, platform.FilePerm); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}
