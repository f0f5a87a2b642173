package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dna-labs/dna/internal/templates"
)

var (
	templatesFramework string
	templatesJSON      bool
	templatesModules   bool
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List available templates",
	Long:  `List the templates built into this binary, optionally filtered by framework.`,
	Args:  cobra.NoArgs,
	RunE:  runTemplates,
}

func init() {
	templatesCmd.Flags().StringVar(&templatesFramework, "framework", "", "Only list templates for this framework")
	templatesCmd.Flags().BoolVar(&templatesJSON, "json", false, "Output in JSON format")
	templatesCmd.Flags().BoolVar(&templatesModules, "modules", false, "List modules instead of templates")
	rootCmd.AddCommand(templatesCmd)
}

func runTemplates(cmd *cobra.Command, args []string) error {
	reg, err := templates.Load()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	if templatesModules {
		return printModules(cmd, reg)
	}

	list := reg.List(templatesFramework)
	if len(list) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No templates for framework %q. Known frameworks: %s\n",
			templatesFramework, strings.Join(reg.Frameworks(), ", "))
		return nil
	}

	if templatesJSON {
		return printJSON(cmd, list)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tFRAMEWORK\tVERSION\tMODULES\tDESCRIPTION")
	for _, t := range list {
		modules := strings.Join(t.CompatibleModules, ",")
		if modules == "" {
			modules = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Framework, t.Version, modules, t.Description)
	}
	return w.Flush()
}

func printModules(cmd *cobra.Command, reg *templates.Registry) error {
	var mods []*templates.Module
	for _, id := range reg.ModuleIDs() {
		mod, _ := reg.Module(id)
		if templatesFramework != "" && !mod.SupportsFramework(templatesFramework) {
			continue
		}
		mods = append(mods, mod)
	}

	if templatesJSON {
		return printJSON(cmd, mods)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tFRAMEWORKS\tDESCRIPTION")
	for _, m := range mods {
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, strings.Join(m.Frameworks, ","), m.Description)
	}
	return w.Flush()
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
