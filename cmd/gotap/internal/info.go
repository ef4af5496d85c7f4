package internal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goplus/gotap/internal/build"
	loader "github.com/goplus/gotap/internal/formula"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <name[@version]>",
	Short: "Show a formula",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openTap(ctx)
	if err != nil {
		return err
	}
	f, err := loadFormula(cmd, store, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s (revision %d)\n", nameStyle.Render(f.Name), versionStyle.Render(f.Version), f.Revision)
	field(out, "desc", f.Desc)
	field(out, "homepage", f.Homepage)
	field(out, "url", f.URL)
	field(out, "sha256", f.SHA256)
	var deps []string
	for _, d := range f.Deps {
		deps = append(deps, d.String())
	}
	field(out, "deps", strings.Join(deps, ", "))
	field(out, "recipe", f.Source)

	// every recipe the tap carries for this formula
	files, err := store.Candidates(f.Name)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(files))
	for _, file := range files {
		hdr, err := loader.HeaderOf(store.FS(), file)
		if err != nil {
			rows = append(rows, []string{"  " + file, errStyle.Render(err.Error())})
			continue
		}
		mark := " "
		if file == f.Source {
			mark = "*"
		}
		rows = append(rows, []string{mark + " " + file, versionStyle.Render(hdr.Version), "revision " + strconv.Itoa(hdr.Revision)})
	}
	fmt.Fprintln(out, labelStyle.Render("recipes:"))
	table(out, rows)

	installed, err := newBuilder(cmd, false, false).Installed()
	if err != nil {
		return err
	}
	var kegs []*build.Receipt
	for _, r := range installed {
		if r.Name == f.Name {
			kegs = append(kegs, r)
		}
	}
	if len(kegs) == 0 {
		field(out, "installed", "no")
		return nil
	}
	fmt.Fprintln(out, labelStyle.Render("installed:"))
	rows = rows[:0]
	for _, r := range kegs {
		rows = append(rows, []string{"  " + r.Keg, versionStyle.Render(r.Version), strings.Join(r.Binaries, " "),
			r.InstallTime.Format("2006-01-02 15:04")})
	}
	table(out, rows)
	return nil
}
