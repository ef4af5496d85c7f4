package internal

import (
	"fmt"
	"strconv"
	"strings"

	loader "github.com/goplus/gotap/internal/formula"
	"github.com/spf13/cobra"
)

var listAvailable bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed formulas",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listAvailable, "available", "a", false, "list the formulas of the tap instead")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if listAvailable {
		return listTap(cmd)
	}
	installed, err := newBuilder(cmd, false, false).Installed()
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(installed))
	for _, r := range installed {
		rows = append(rows, []string{nameStyle.Render(r.Name), versionStyle.Render(r.Version),
			"r" + strconv.Itoa(r.Revision), strings.Join(r.Binaries, " ")})
	}
	table(cmd.OutOrStdout(), rows)
	return nil
}

// listTap lists each formula of the tap with the version it would install.
func listTap(cmd *cobra.Command) error {
	store, err := openTap(cmd.Context())
	if err != nil {
		return err
	}
	names, err := store.Names()
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		file, hdr, err := store.Select(name, "")
		if err != nil {
			rows = append(rows, []string{nameStyle.Render(name), errStyle.Render(err.Error())})
			continue
		}
		desc := ""
		if f, err := loader.Load(store.FS(), file); err == nil {
			desc = f.Desc
		}
		rows = append(rows, []string{nameStyle.Render(name), versionStyle.Render(hdr.Version),
			"r" + strconv.Itoa(hdr.Revision), desc})
	}
	table(cmd.OutOrStdout(), rows)
	if len(rows) == 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "tap %s has no formulas\n", store.Dir())
	}
	return nil
}
