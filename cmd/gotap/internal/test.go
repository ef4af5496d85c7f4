package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test <name[@version]>...",
	Short: "Run the smoke test of installed formulas",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openTap(ctx)
	if err != nil {
		return err
	}
	builder := newBuilder(cmd, false, false)
	for _, arg := range args {
		f, err := loadFormula(cmd, store, arg)
		if err != nil {
			return err
		}
		if err := builder.Test(ctx, f.Recipe); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", okStyle.Render("passed"),
			nameStyle.Render(f.Name), versionStyle.Render(f.Version))
	}
	return nil
}
