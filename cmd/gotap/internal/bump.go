package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goplus/gotap/internal/audit"
	"github.com/goplus/gotap/internal/vcs"
	"github.com/spf13/cobra"
)

var bumpDryRun bool

var bumpCmd = &cobra.Command{
	Use:   "bump <name>",
	Short: "Pin a formula to its latest upstream release",
	Long: `Bump resolves the newest upstream commit (or release tag, for tag pinned
recipes), downloads its archive to compute the checksum and writes a new
recipe file at the next revision. The current recipe is left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runBump,
}

func init() {
	bumpCmd.Flags().BoolVarP(&bumpDryRun, "dry-run", "n", false, "print the new recipe instead of writing it")
	rootCmd.AddCommand(bumpCmd)
}

func runBump(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openTap(ctx)
	if err != nil {
		return err
	}
	name, version := parseFormulaArg(args[0])
	if version != "" {
		return fmt.Errorf("bump takes a formula name, not %s", args[0])
	}
	f, err := loadFormula(cmd, store, name)
	if err != nil {
		return err
	}

	u, err := audit.Next(ctx, vcs.NewGitVCS(), f.Recipe)
	if errors.Is(err, audit.ErrUpToDate) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is up to date\n", nameStyle.Render(f.Name), versionStyle.Render(f.Version))
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("downloading", "url", u.URL)
	_, u.SHA256, err = newFetcher().Download(ctx, u.URL)
	if err != nil {
		return err
	}

	content, err := fs.ReadFile(store.FS(), f.Source)
	if err != nil {
		return err
	}
	bumped, err := audit.Rewrite(f.Source, content, u)
	if err != nil {
		return err
	}
	if bumpDryRun {
		_, err := cmd.OutOrStdout().Write(bumped)
		return err
	}

	file := audit.BumpedName(f.Source, u.Revision)
	if err := writeNew(filepath.Join(store.Dir(), filepath.FromSlash(file)), bumped); err != nil {
		return err
	}
	// the new recipe must now be the one selected
	next, err := loadFormula(cmd, store, name)
	if err != nil {
		return err
	}
	if next.Source != file {
		return fmt.Errorf("wrote %s but %s is still selected", file, next.Source)
	}
	for _, p := range audit.Audit(ctx, next.Recipe) {
		logger.Warn("audit", "recipe", file, "problem", p.String())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s → %s (revision %d) in %s\n", okStyle.Render("bumped"),
		nameStyle.Render(f.Name), f.Version, versionStyle.Render(u.Version), u.Revision, file)
	return nil
}

// writeNew creates file with content, failing if it already exists.
func writeNew(file string, content []byte) error {
	w, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		os.Remove(file)
		return err
	}
	return w.Close()
}
