package internal

import (
	"errors"
	"fmt"

	"github.com/goplus/gotap/internal/fetch"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [name[@version]]...",
	Short: "Download and verify source archives",
	Long:  `Fetch downloads the source archives of the given formulas, or of every formula in the tap, into the cache and verifies their checksums.`,
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openTap(ctx)
	if err != nil {
		return err
	}
	args, err = formulaArgs(store, args)
	if err != nil {
		return err
	}

	jobs := make([]fetch.Job, 0, len(args))
	for _, arg := range args {
		f, err := loadFormula(cmd, store, arg)
		if err != nil {
			return err
		}
		jobs = append(jobs, fetch.Job{Name: f.ID(), URL: f.URL, SHA256: f.SHA256})
	}

	out := cmd.OutOrStdout()
	var failed int
	for _, r := range newFetcher().FetchAll(ctx, jobs, cfg.Jobs) {
		if r.Error != nil {
			failed++
			var ce *fetch.ChecksumError
			if errors.As(r.Error, &ce) {
				logger.Error("checksum mismatch", "formula", r.Job.Name, "want", ce.Want, "got", ce.Got)
			}
			fmt.Fprintf(out, "%s %s: %v\n", errStyle.Render("failed"), nameStyle.Render(r.Job.Name), r.Error)
			continue
		}
		fmt.Fprintf(out, "%s %s %s\n", okStyle.Render("fetched"), nameStyle.Render(r.Job.Name), r.Path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(jobs))
	}
	return nil
}
