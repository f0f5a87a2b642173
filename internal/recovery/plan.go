package recovery

import "github.com/dna-labs/dna/internal/dnaerr"

// RiskLevel describes how risky it is to attempt a recovery.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Plan is a derived description of how an error can be resolved. It is
// never stored.
type Plan struct {
	CanRecover            bool
	AutoFixAvailable      bool
	ManualSteps           []string
	RiskLevel             RiskLevel
	AlternativeApproaches []string
}

var manualSteps = map[dnaerr.Category][]string{
	dnaerr.CategoryValidation: {
		"Review the project name, output path and module list",
		"Run again with --debug to see which field failed validation",
	},
	dnaerr.CategoryTemplate: {
		"Run `dna templates` to list the available templates",
		"Check that every variable the template requires is passed with --var",
		"Verify the selected modules are compatible with the template",
	},
	dnaerr.CategoryFilesystem: {
		"Check that the output location exists and is writable",
		"Remove or rename the existing directory, or pass --overwrite",
		"Make sure the disk has enough free space",
	},
	dnaerr.CategoryNetwork: {
		"Check your internet connection",
		"Configure the proxy or registry settings of your package manager",
		"Retry once the network is available",
	},
	dnaerr.CategoryDependency: {
		"Run the package manager's install command inside the project directory",
		"Clear the package manager cache",
		"Check that the package manager version is supported",
	},
	dnaerr.CategorySystem: {
		"Run again with --debug and inspect the log output",
		"Verify that git and the selected package manager are installed and on PATH",
	},
	dnaerr.CategoryConfiguration: {
		"Check ~/.dna/config.yaml for invalid values",
		"Verify the output directory is writable so the manifest can be saved",
	},
	dnaerr.CategoryRollback: {
		"Inspect the output directory; it may contain partially generated files",
		"Restore the original tree from the <path>.backup.<timestamp> directory if one exists",
		"Delete any leftover generated files before running again",
	},
	dnaerr.CategorySecurity: {
		"Review the template source for paths that escape the project directory",
		"Report the problem to the template author",
	},
}

var alternatives = map[dnaerr.Category][]string{
	dnaerr.CategoryValidation: {
		"Run `dna doctor` to check the templates and settings",
	},
	dnaerr.CategoryTemplate: {
		"Choose a different template",
		"Generate without optional modules",
	},
	dnaerr.CategoryFilesystem: {
		"Choose a different output directory with --output-dir",
		"Use --overwrite --backup to keep a copy of the existing directory",
	},
	dnaerr.CategoryNetwork: {
		"Use --skip-install and install dependencies later",
		"Point the package manager at an offline mirror",
	},
	dnaerr.CategoryDependency: {
		"Use --skip-install and install dependencies later",
		"Switch package manager with --package-manager",
	},
	dnaerr.CategorySystem: {
		"Use --skip-git to skip version control initialization",
	},
	dnaerr.CategoryConfiguration: {
		"Use --dry-run to preview the generation without writing files",
	},
	dnaerr.CategoryRollback: {
		"Generate into a fresh directory",
	},
}

// BuildPlan derives a recovery plan from the error's category and severity.
// It performs no I/O.
func BuildPlan(e *dnaerr.Error) Plan {
	if e == nil {
		return Plan{RiskLevel: RiskLow}
	}

	canRecover := recoverableCategory(e.Category) && e.Severity != dnaerr.SeverityCritical

	return Plan{
		CanRecover:            canRecover,
		AutoFixAvailable:      canRecover && e.AutoFixable(),
		ManualSteps:           append([]string(nil), manualSteps[e.Category]...),
		RiskLevel:             riskLevel(e.Category, e.Severity),
		AlternativeApproaches: append([]string(nil), alternatives[e.Category]...),
	}
}

// recoverableCategory excludes categories whose failures must surface to
// the operator.
func recoverableCategory(c dnaerr.Category) bool {
	switch c {
	case dnaerr.CategoryRollback, dnaerr.CategorySystem, dnaerr.CategorySecurity:
		return false
	}
	return true
}

func riskLevel(c dnaerr.Category, s dnaerr.Severity) RiskLevel {
	if c == dnaerr.CategoryRollback || c == dnaerr.CategorySecurity {
		return RiskHigh
	}
	switch s {
	case dnaerr.SeverityCritical, dnaerr.SeverityHigh:
		return RiskHigh
	case dnaerr.SeverityMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// degradable reports whether the caller may continue without the failed
// step.
func degradable(e *dnaerr.Error) bool {
	switch e.Category {
	case dnaerr.CategoryNetwork, dnaerr.CategoryDependency:
		return true
	}
	return e.Severity == dnaerr.SeverityLow
}
