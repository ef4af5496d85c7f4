package internal

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/goplus/gotap/internal/build"
	"github.com/goplus/gotap/internal/env"
	"github.com/goplus/gotap/internal/fetch"
	loader "github.com/goplus/gotap/internal/formula"
	"github.com/goplus/gotap/internal/formula/repo"
	"github.com/goplus/gotap/internal/vcs"
	"github.com/spf13/cobra"
)

var (
	configFile string
	prefixFlag string
	tapFlag    string
	logLevel   string
	verbose    bool
)

// cfg and logger are set up before any subcommand runs.
var (
	cfg    *env.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gotap",
	Short: "gotap installs Go tools from verified-source recipes",
	Long: `gotap installs Go command line tools from recipes pinned to an exact
source archive. Every install checks the archive checksum, builds with the
recipe's go build flags, verifies the embedded version and runs a smoke test.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configFile, "config", "", "config file (default $GOTAP_CONFIG or <config dir>/gotap/config.yaml)")
	f.StringVar(&prefixFlag, "prefix", "", "install prefix")
	f.StringVar(&tapFlag, "tap", "", "tap directory or git URL")
	f.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.BoolVarP(&verbose, "verbose", "v", false, "show build and test output")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal(err)
	}
}

// setup layers flags over the config file and the environment.
func setup(cmd *cobra.Command, args []string) error {
	c, err := env.Load(configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("prefix") {
		c.Prefix = prefixFlag
	}
	if flags.Changed("tap") {
		c.Tap = tapFlag
	}
	if flags.Changed("log-level") {
		if err := c.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	} else if verbose && c.LogLevel > slog.LevelDebug {
		c.LogLevel = slog.LevelDebug
	}
	cfg = c
	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel}))
	return nil
}

// parseFormulaArg parses "name@version" or "name".
func parseFormulaArg(arg string) (name, version string) {
	if i := strings.LastIndexByte(arg, '@'); i >= 0 {
		return arg[:i], arg[i+1:]
	}
	return arg, ""
}

// outputs returns the writers for build and test output.
func outputs(cmd *cobra.Command) (stdout, stderr io.Writer) {
	if !verbose {
		return io.Discard, io.Discard
	}
	return cmd.OutOrStdout(), cmd.ErrOrStderr()
}

func newFetcher() *fetch.Fetcher {
	return fetch.New(cfg.CacheDir, fetch.WithTimeout(cfg.HTTPTimeout))
}

func newBuilder(cmd *cobra.Command, force, keepStaging bool) *build.Builder {
	stdout, stderr := outputs(cmd)
	return build.NewBuilder(build.Options{
		Prefix:      cfg.Prefix,
		Fetcher:     newFetcher(),
		Stdout:      stdout,
		Stderr:      stderr,
		Logger:      logger,
		Force:       force,
		KeepStaging: keepStaging,
	})
}

// openTap returns the configured tap. A remote tap is synced first; if
// that fails, an existing checkout is used as is.
func openTap(ctx context.Context) (*repo.Store, error) {
	dir := cfg.TapDir()
	if !env.IsRemoteTap(cfg.Tap) {
		return repo.New(dir, "", nil), nil
	}
	store := repo.New(dir, cfg.Tap, vcs.NewGitVCS())
	logger.Debug("syncing tap", "remote", cfg.Tap, "dir", dir)
	if err := store.Sync(ctx); err != nil {
		if _, serr := os.Stat(dir); serr != nil {
			return nil, fmt.Errorf("syncing tap %s: %w", cfg.Tap, err)
		}
		logger.Warn("tap sync failed, using local checkout", "remote", cfg.Tap, "error", err)
	}
	return store, nil
}

// loadFormula loads "name[@version]" from the tap, with the classfile
// output routed like build output.
func loadFormula(cmd *cobra.Command, store *repo.Store, arg string) (*loader.Formula, error) {
	name, version := parseFormulaArg(arg)
	f, err := store.Load(name, version)
	if err != nil {
		return nil, err
	}
	stdout, stderr := outputs(cmd)
	f.SetStdout(stdout)
	f.SetStderr(stderr)
	return f, nil
}

// formulaArgs returns args, or every formula of the tap if args is empty.
func formulaArgs(store *repo.Store, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	names, err := store.Names()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("tap %s has no formulas", store.Dir())
	}
	return names, nil
}
