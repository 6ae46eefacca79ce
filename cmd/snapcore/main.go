package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/snapcore/internal/config"
	"github.com/bamsammich/snapcore/internal/elem"
	"github.com/bamsammich/snapcore/internal/filter"
	"github.com/bamsammich/snapcore/internal/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// ruleFlag is a pflag.Value that records --exclude and --include in
// command line order so they can be appended to the configured chain.
type ruleFlag struct {
	rules     *[]cliRule
	direction filter.Direction
}

var _ pflag.Value = (*ruleFlag)(nil)

type cliRule struct {
	direction filter.Direction
	pattern   string
}

func (*ruleFlag) String() string { return "" }
func (*ruleFlag) Type() string   { return "string" }

func (f *ruleFlag) Set(val string) error {
	*f.rules = append(*f.rules, cliRule{direction: f.direction, pattern: val})
	return nil
}

// app carries the global flags and the state shared by subcommands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    bool
	debug      bool
	logFile    string
	extra      []cliRule

	logCloser io.Closer
}

func (a *app) config() (config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(a.configPath)
	}
	return config.Load()
}

// chain builds the configured chain followed by the command line rules.
func (a *app) chain(cfg config.Config) (*filter.Chain, error) {
	chain, err := cfg.BuildChain()
	if err != nil {
		return nil, err
	}
	for _, r := range a.extra {
		if err := chain.AddRule(r.direction, r.pattern); err != nil {
			return nil, err
		}
	}
	return chain, nil
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "snapcore",
		Short:         "Inspect the filter rules and block layout of parity-protected disks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			logger, closer, err := logging.New(a.stderr, logging.Options{
				Verbose: a.verbose,
				Debug:   a.debug,
				LogFile: a.logFile,
			})
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			a.logCloser = closer
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: "+config.Path()+")")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&a.debug, "debug", false, "debug output")
	flags.StringVar(&a.logFile, "log", "", "write structured JSON log to FILE")
	flags.Var(&ruleFlag{rules: &a.extra, direction: filter.Exclude}, "exclude",
		"exclude entries matching PATTERN after the configured rules (repeatable)")
	flags.Var(&ruleFlag{rules: &a.extra, direction: filter.Include}, "include",
		"include entries matching PATTERN after the configured rules (repeatable)")

	rootCmd.AddCommand(newInitCmd(a))
	rootCmd.AddCommand(newRulesCmd(a))
	rootCmd.AddCommand(newFilterCmd(a))
	rootCmd.AddCommand(newScanCmd(a))
	rootCmd.AddCommand(newDocsCmd())
	return rootCmd
}

func newInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example configuration file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			path := a.configPath
			if path == "" {
				path = config.Path()
			}
			if err := config.Save(path, config.Example(), force); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func newRulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the filter rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			chain, err := a.chain(cfg)
			if err != nil {
				return err
			}
			for _, r := range chain.Rules() {
				fmt.Fprintln(a.stdout, r.String())
			}
			return nil
		},
	}
}

func newFilterCmd(a *app) *cobra.Command {
	var missing bool
	cmd := &cobra.Command{
		Use:   "filter DISK PATH...",
		Short: "Show whether paths on a disk are included",
		Long: `Evaluate each PATH, relative to the disk root, against the filter rules.
A trailing slash evaluates the path as a directory.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			chain, err := a.chain(cfg)
			if err != nil {
				return err
			}
			return runFilter(a.stdout, cfg, chain, args[0], args[1:], missing)
		},
	}
	cmd.Flags().BoolVar(&missing, "missing", false, "also skip files that are present on the disk")
	return cmd
}

func runFilter(w io.Writer, cfg config.Config, chain *filter.Chain, diskName string, paths []string, missing bool) error {
	if !chain.MatchDisk(diskName) {
		fmt.Fprintf(w, "disk %s excluded\n", diskName)
	}

	var existence *filter.Existence
	var dir string
	if missing {
		dc, ok := cfg.Disk(diskName)
		if !ok {
			return fmt.Errorf("disk %q not configured", diskName)
		}
		existence = filter.NewExistence(fsysOS)
		dir = strings.TrimSuffix(dc.Dir, "/") + "/"
	}

	for _, p := range paths {
		sub := strings.TrimPrefix(p, "/")

		var included bool
		var reason *filter.Rule
		isDir := strings.HasSuffix(sub, "/")
		if isDir {
			included, reason = chain.MatchDir(diskName, sub)
		} else {
			included, reason = chain.MatchPath(diskName, sub)
		}

		switch {
		case !included && reason != nil:
			fmt.Fprintf(w, "exclude\t%s\t%s\n", p, reason)
		case !included:
			fmt.Fprintf(w, "exclude\t%s\n", p)
		case missing && !isDir:
			present, err := existence.Veto(true, dir, sub)
			if err != nil {
				return err
			}
			if present {
				fmt.Fprintf(w, "present\t%s\n", p)
			} else {
				fmt.Fprintf(w, "include\t%s\n", p)
			}
		default:
			fmt.Fprintf(w, "include\t%s\n", p)
		}
	}
	return nil
}

// run executes the CLI and maps errors to exit codes: 3 for inconsistent
// state, 1 for partial failure, 2 for anything else.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if a.logCloser != nil {
		defer a.logCloser.Close()
	}
	if err == nil {
		return 0
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	if elem.IsFatal(err) {
		slog.Error("internal inconsistency", "error", err)
		return 3
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 2
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
