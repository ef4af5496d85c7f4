package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	installForce       bool
	installKeepStaging bool
)

var installCmd = &cobra.Command{
	Use:   "install <name[@version]>...",
	Short: "Build and install formulas",
	Long: `Install fetches the pinned source archive of each formula, verifies its
checksum, builds it, checks the embedded version, runs the smoke test and
links the binaries into <prefix>/bin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVarP(&installForce, "force", "f", false, "reinstall even if already installed")
	installCmd.Flags().BoolVar(&installKeepStaging, "keep-staging", false, "keep the staging directory of a failed install")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openTap(ctx)
	if err != nil {
		return err
	}
	builder := newBuilder(cmd, installForce, installKeepStaging)

	out := cmd.OutOrStdout()
	for _, arg := range args {
		f, err := loadFormula(cmd, store, arg)
		if err != nil {
			return err
		}
		receipt, err := builder.Install(ctx, f.Recipe)
		if err != nil {
			return err
		}
		if receipt.Cached {
			fmt.Fprintf(out, "%s %s is already installed\n", nameStyle.Render(receipt.Name), versionStyle.Render(receipt.Version))
			continue
		}
		fmt.Fprintf(out, "%s %s %s → %s\n", okStyle.Render("installed"),
			nameStyle.Render(receipt.Name), versionStyle.Render(receipt.Version), receipt.Keg)
	}
	return nil
}
