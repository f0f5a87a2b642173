package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dna-labs/dna/internal/config"
	"github.com/dna-labs/dna/internal/pipeline"
	"github.com/dna-labs/dna/internal/templates"
)

var (
	checkTools     bool
	checkTemplates bool
	checkConfig    bool
	checkManifest  string
)

func init() {
	doctorCmd.Flags().BoolVar(&checkTools, "check-tools", false, "Verify git and the package managers are on PATH")
	doctorCmd.Flags().BoolVar(&checkTemplates, "check-templates", false, "Validate the built-in templates")
	doctorCmd.Flags().BoolVar(&checkConfig, "check-config", false, "Verify the config file and free disk space")
	doctorCmd.Flags().StringVar(&checkManifest, "check-manifest", "", "Validate the manifest of a generated project directory")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Health check for the DNA installation",
	Long:  `Run diagnostic checks on the tools, templates and settings project generation depends on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		anyFlag := checkTools || checkTemplates || checkConfig || checkManifest != ""

		// If no specific flag, run all checks.
		if !anyFlag {
			runToolsCheck(w)
			runConfigCheck(w)
			return runTemplatesCheck(w)
		}

		if checkTools {
			runToolsCheck(w)
		}
		if checkTemplates {
			if err := runTemplatesCheck(w); err != nil {
				return err
			}
		}
		if checkConfig {
			runConfigCheck(w)
		}
		if checkManifest != "" {
			if err := runManifestCheck(w, checkManifest); err != nil {
				return err
			}
		}
		return nil
	},
}

func runToolsCheck(w io.Writer) {
	fmt.Fprintln(w, "Tools check:")
	checkBinary(w, "git")
	for _, name := range []string{"npm", "yarn", "pnpm"} {
		checkBinary(w, name)
	}
}

func checkBinary(w io.Writer, name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Fprintf(w, "  [MISS] %s not found\n", name)
		return
	}
	fmt.Fprintf(w, "  [ OK ] %s found at %s\n", name, path)
}

func runTemplatesCheck(w io.Writer) error {
	fmt.Fprintln(w, "Templates check:")
	reg, err := templates.Load()
	if err != nil {
		fmt.Fprintf(w, "  [FAIL] %v\n", err)
		return fmt.Errorf("template validation failed: %w", err)
	}
	for _, meta := range reg.List("") {
		if !meta.ToolVersionAllowed(buildVersion) {
			fmt.Fprintf(w, "  [WARN] %s requires dna %s\n", meta.ID, meta.MinToolVersion)
			continue
		}
		fmt.Fprintf(w, "  [ OK ] %s (%s, v%s)\n", meta.ID, meta.Framework, meta.Version)
	}
	fmt.Fprintf(w, "  [ OK ] %d modules\n", len(reg.ModuleIDs()))
	return nil
}

func runConfigCheck(w io.Writer) {
	fmt.Fprintln(w, "Config check:")
	if _, err := os.Stat(config.FilePath()); err != nil {
		fmt.Fprintf(w, "  [INFO] %s not found, using defaults\n", config.FilePath())
	} else {
		fmt.Fprintf(w, "  [ OK ] %s\n", config.FilePath())
	}

	required, err := settings.MinDiskBytes()
	if err != nil {
		fmt.Fprintf(w, "  [FAIL] %v\n", err)
		return
	}
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(w, "  [WARN] Cannot determine working directory: %v\n", err)
		return
	}
	free, err := pipeline.FreeSpace(cwd)
	switch {
	case err != nil:
		fmt.Fprintf(w, "  [WARN] Cannot check free disk space: %v\n", err)
	case free < required:
		fmt.Fprintf(w, "  [FAIL] %s free in %s, %s required\n", humanize.Bytes(free), cwd, humanize.Bytes(required))
	default:
		fmt.Fprintf(w, "  [ OK ] %s free in %s\n", humanize.Bytes(free), cwd)
	}
}

func runManifestCheck(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Manifest validation: %s\n", pipeline.ManifestPath(dir))

	m, err := pipeline.ReadManifest(dir)
	if err != nil {
		fmt.Fprintf(w, "  [FAIL] %v\n", err)
		return fmt.Errorf("manifest validation failed: %w", err)
	}

	reg, err := templates.Load()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}
	var issues []string
	meta, ok := reg.Get(m.Template)
	switch {
	case !ok:
		issues = append(issues, fmt.Sprintf("unknown template %q", m.Template))
	case meta.Framework != m.Framework:
		issues = append(issues, fmt.Sprintf("template %q targets %s, manifest says %s", m.Template, meta.Framework, m.Framework))
	}
	for _, id := range m.Modules {
		if _, ok := reg.Module(id); !ok {
			issues = append(issues, fmt.Sprintf("unknown module %q", id))
		}
	}

	if len(issues) == 0 {
		fmt.Fprintf(w, "  [ OK ] %s project generated %s by dna %s\n", m.Template, m.Generated, m.Version)
		return nil
	}
	fmt.Fprintf(w, "  [FAIL] %d validation issue(s):\n", len(issues))
	for _, issue := range issues {
		fmt.Fprintf(w, "    - %s\n", issue)
	}
	return fmt.Errorf("manifest in %s has %d validation issue(s)", dir, len(issues))
}
