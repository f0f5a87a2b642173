package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/dna-labs/dna/internal/dnaerr"
)

// MaxNameLength matches the npm package name limit.
const MaxNameLength = 214

var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// ProjectConfig is the resolved description of what to generate. The
// pipeline never mutates it.
type ProjectConfig struct {
	Name           string            `validate:"required,max=214,dnaname"`
	OutputPath     string            `validate:"required,abspath,notraversal"`
	TemplateID     string            `validate:"required"`
	FrameworkID    string            `validate:"required"`
	ModuleIDs      []string          `validate:"unique,dive,required"`
	Variables      map[string]string `validate:"dive,keys,required,endkeys"`
	PackageManager PackageManager    `validate:"pkgmanager"`
	SkipInstall    bool
	SkipVCSInit    bool
}

// GenerationOptions control how the stages behave, not what is generated.
type GenerationOptions struct {
	Interactive       bool
	DryRun            bool
	Overwrite         bool
	BackupOnOverwrite bool
	ReportProgress    bool
}

// Clone returns a deep copy so the caller's slices and maps can't change
// underneath a running pipeline.
func (c ProjectConfig) Clone() ProjectConfig {
	out := c
	out.ModuleIDs = append([]string(nil), c.ModuleIDs...)
	if c.Variables != nil {
		out.Variables = make(map[string]string, len(c.Variables))
		for k, v := range c.Variables {
			out.Variables[k] = v
		}
	}
	return out
}

// ResolveOutputPath joins dir and name into an absolute, cleaned path. An
// empty dir means the current working directory.
func ResolveOutputPath(dir, name string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("resolving output path: %w", err)
	}
	return abs, nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		mustRegister(v, "dnaname", func(fl validator.FieldLevel) bool {
			return namePattern.MatchString(fl.Field().String())
		})
		mustRegister(v, "abspath", func(fl validator.FieldLevel) bool {
			p := fl.Field().String()
			return filepath.IsAbs(p) && filepath.Clean(p) == p
		})
		mustRegister(v, "notraversal", func(fl validator.FieldLevel) bool {
			return !hasTraversal(fl.Field().String())
		})
		mustRegister(v, "pkgmanager", func(fl validator.FieldLevel) bool {
			return PackageManager(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("registering %s validation: %v", tag, err))
	}
}

func hasTraversal(p string) bool {
	for _, part := range strings.FieldsFunc(filepath.ToSlash(p), func(r rune) bool { return r == '/' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

// Validate checks c and returns a *dnaerr.Error describing the first
// violation, or nil.
func (c ProjectConfig) Validate() error {
	err := configValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return dnaerr.Validation(dnaerr.CodeInvalidConfig, "invalid project configuration").WithCause(err)
	}
	return fieldError(c, fieldErrs[0])
}

func fieldError(c ProjectConfig, fe validator.FieldError) *dnaerr.Error {
	switch {
	case fe.Field() == "Name":
		msg := fmt.Sprintf("invalid project name %q", c.Name)
		switch fe.Tag() {
		case "required":
			msg = "project name is required"
		case "max":
			msg = fmt.Sprintf("project name is longer than %d characters", MaxNameLength)
		}
		return dnaerr.Validation(dnaerr.CodeInvalidProjectName, msg).
			WithSuggestion("Use a name that starts with a letter and contains only letters, digits, '-' and '_'").
			WithDetail("name", c.Name)

	case fe.Field() == "OutputPath":
		msg := fmt.Sprintf("output path %q must be absolute and clean", c.OutputPath)
		if fe.Tag() == "notraversal" {
			msg = fmt.Sprintf("output path %q contains a parent directory reference", c.OutputPath)
		}
		return dnaerr.Validation(dnaerr.CodeInvalidOutputPath, msg).
			WithSuggestion("Pass an absolute --output-dir without '..' elements").
			WithDetail("path", c.OutputPath)

	case fe.Field() == "ModuleIDs" && fe.Tag() == "unique":
		return dnaerr.Validation(dnaerr.CodeDuplicateModule, "module list contains duplicates").
			WithSuggestion("List each --module only once").
			WithDetail("modules", strings.Join(c.ModuleIDs, ","))

	case fe.Field() == "PackageManager":
		return dnaerr.Validation(dnaerr.CodeInvalidConfig, fmt.Sprintf("unknown package manager %q", c.PackageManager)).
			WithSuggestion("Use one of npm, yarn, pnpm or none")
	}

	return dnaerr.Validation(dnaerr.CodeInvalidConfig,
		fmt.Sprintf("invalid value for %s (%s)", fe.Namespace(), fe.Tag()))
}
