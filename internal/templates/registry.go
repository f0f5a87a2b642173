package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/dustin/go-humanize"
	"go.yaml.in/yaml/v3"
)

//go:embed all:catalog all:modules
var content embed.FS

const (
	catalogDir = "catalog"
	modulesDir = "modules"
	filesDir   = "files"
)

// Lookup is the read-only view the generation pipeline needs.
type Lookup interface {
	Get(id string) (*Metadata, bool)
	IDs() []string
}

// Registry holds the loaded templates and modules.
type Registry struct {
	fsys      fs.FS
	templates map[string]*Metadata
	modules   map[string]*Module
}

var _ Lookup = (*Registry)(nil)

// Load reads the templates and modules embedded in the binary.
func Load() (*Registry, error) {
	return LoadFS(content)
}

// LoadFS reads catalog/<id>/template.yaml and modules/<id>/module.yaml
// definitions from fsys. Every definition is schema-validated; the first
// invalid one fails the load.
func LoadFS(fsys fs.FS) (*Registry, error) {
	r := &Registry{
		fsys:      fsys,
		templates: make(map[string]*Metadata),
		modules:   make(map[string]*Module),
	}

	templateFiles, err := fs.Glob(fsys, path.Join(catalogDir, "*", "template.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	for _, file := range templateFiles {
		meta, err := parseTemplate(fsys, file)
		if err != nil {
			return nil, err
		}
		r.templates[meta.ID] = meta
	}

	moduleFiles, err := fs.Glob(fsys, path.Join(modulesDir, "*", "module.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	for _, file := range moduleFiles {
		mod, err := parseModule(fsys, file)
		if err != nil {
			return nil, err
		}
		r.modules[mod.ID] = mod
	}

	return r, nil
}

func parseTemplate(fsys fs.FS, file string) (*Metadata, error) {
	data, err := readValidated(fsys, file, TemplateSchema)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", file, err)
	}
	if dir := path.Base(path.Dir(file)); meta.ID != dir {
		return nil, fmt.Errorf("template %s: id %q does not match directory %q", file, meta.ID, dir)
	}

	if meta.MinDiskSpace != "" {
		n, err := humanize.ParseBytes(meta.MinDiskSpace)
		if err != nil {
			return nil, fmt.Errorf("template %s: invalid minDiskSpace %q: %w", file, meta.MinDiskSpace, err)
		}
		meta.minDiskBytes = n
	}
	if meta.MinToolVersion != "" {
		c, err := semver.NewConstraint(meta.MinToolVersion)
		if err != nil {
			return nil, fmt.Errorf("template %s: invalid minToolVersion %q: %w", file, meta.MinToolVersion, err)
		}
		meta.toolConstraint = c
	}
	return &meta, nil
}

func parseModule(fsys fs.FS, file string) (*Module, error) {
	data, err := readValidated(fsys, file, ModuleSchema)
	if err != nil {
		return nil, err
	}

	var mod Module
	if err := yaml.Unmarshal(data, &mod); err != nil {
		return nil, fmt.Errorf("parsing module %s: %w", file, err)
	}
	if dir := path.Base(path.Dir(file)); mod.ID != dir {
		return nil, fmt.Errorf("module %s: id %q does not match directory %q", file, mod.ID, dir)
	}
	return &mod, nil
}

func readValidated(fsys fs.FS, file, schema string) ([]byte, error) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	result, err := Validate(schema, data)
	if err != nil {
		return nil, fmt.Errorf("validating %s: %w", file, err)
	}
	if !result.Valid {
		return nil, fmt.Errorf("invalid %s: %s", file, result)
	}
	return data, nil
}

// Get returns the template with the given id.
func (r *Registry) Get(id string) (*Metadata, bool) {
	meta, ok := r.templates[id]
	return meta, ok
}

// IDs returns all template ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns templates sorted by id. A non-empty framework filters the
// result to that framework.
func (r *Registry) List(framework string) []*Metadata {
	var out []*Metadata
	for _, id := range r.IDs() {
		meta := r.templates[id]
		if framework != "" && meta.Framework != framework {
			continue
		}
		out = append(out, meta)
	}
	return out
}

// Frameworks returns the distinct frameworks of all templates, sorted.
func (r *Registry) Frameworks() []string {
	seen := make(map[string]bool)
	var out []string
	for _, meta := range r.templates {
		if !seen[meta.Framework] {
			seen[meta.Framework] = true
			out = append(out, meta.Framework)
		}
	}
	sort.Strings(out)
	return out
}

// Module returns the module with the given id.
func (r *Registry) Module(id string) (*Module, bool) {
	mod, ok := r.modules[id]
	return mod, ok
}

// ModuleIDs returns all module ids, sorted.
func (r *Registry) ModuleIDs() []string {
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TemplateFiles returns the file tree of template id.
func (r *Registry) TemplateFiles(id string) (fs.FS, error) {
	if _, ok := r.templates[id]; !ok {
		return nil, fmt.Errorf("template %q not found", id)
	}
	return subDir(r.fsys, path.Join(catalogDir, id, filesDir))
}

// ModuleFiles returns the file tree module id ships for framework.
func (r *Registry) ModuleFiles(id, framework string) (fs.FS, error) {
	mod, ok := r.modules[id]
	if !ok {
		return nil, fmt.Errorf("module %q not found", id)
	}
	if !mod.SupportsFramework(framework) {
		return nil, fmt.Errorf("module %q does not support framework %q", id, framework)
	}
	return subDir(r.fsys, path.Join(modulesDir, id, filesDir, framework))
}

func subDir(fsys fs.FS, dir string) (fs.FS, error) {
	info, err := fs.Stat(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("missing file tree %s: %w", dir, err)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return fs.Sub(fsys, dir)
}
