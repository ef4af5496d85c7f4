package internal

import (
	"fmt"

	"github.com/goplus/gotap/internal/audit"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit [name[@version]]...",
	Short: "Check recipes for common problems",
	Long: `Audit checks the source pin, dependencies, go build flags and smoke test
of the given formulas, or of every formula in the tap. Install and test
bodies are inspected without running anything.`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openTap(ctx)
	if err != nil {
		return err
	}
	args, err = formulaArgs(store, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var total int
	for _, arg := range args {
		f, err := loadFormula(cmd, store, arg)
		if err != nil {
			return err
		}
		problems := audit.Audit(ctx, f.Recipe)
		if len(problems) == 0 {
			fmt.Fprintf(out, "%s %s\n", okStyle.Render("ok"), nameStyle.Render(f.ID()))
			continue
		}
		total += len(problems)
		fmt.Fprintf(out, "%s %s (%s)\n", errStyle.Render("problems"), nameStyle.Render(f.ID()), f.Source)
		for _, p := range problems {
			fmt.Fprintf(out, "  * %s\n", p)
		}
	}
	if total > 0 {
		return fmt.Errorf("%d problems found", total)
	}
	return nil
}
