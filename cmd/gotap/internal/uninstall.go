package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:     "uninstall <name>...",
	Aliases: []string{"remove", "rm"},
	Short:   "Remove every installed version of formulas",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	builder := newBuilder(cmd, false, false)
	for _, name := range args {
		receipts, err := builder.Uninstall(name)
		if err != nil {
			return err
		}
		for _, r := range receipts {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", okStyle.Render("uninstalled"),
				nameStyle.Render(r.Name), versionStyle.Render(r.Version))
		}
	}
	return nil
}
