package main

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/bamsammich/snapcore/internal/config"
	"github.com/bamsammich/snapcore/internal/fsys"
	"github.com/bamsammich/snapcore/internal/scan"
)

var fsysOS = fsys.NewOS()

func newScanCmd(a *app) *cobra.Command {
	var hash bool
	cmd := &cobra.Command{
		Use:   "scan [DISK...]",
		Short: "Walk the configured disks and lay out their blocks in parity space",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			for _, name := range args {
				if _, ok := cfg.Disk(name); !ok {
					return fmt.Errorf("disk %q not configured", name)
				}
			}
			return runScan(cmd, a, cfg, args, hash)
		},
	}
	cmd.Flags().BoolVar(&hash, "hash", false, "hash block contents")
	return cmd
}

func runScan(cmd *cobra.Command, a *app, cfg config.Config, only []string, hash bool) error {
	blockSize, err := cfg.BlockSizeBytes()
	if err != nil {
		return err
	}
	chain, err := a.chain(cfg)
	if err != nil {
		return err
	}
	contents, err := cfg.Contents(fsysOS)
	if err != nil {
		return err
	}
	disks, err := cfg.BuildDisks(fsysOS)
	if err != nil {
		return err
	}

	partial := false
	for _, d := range disks {
		if len(only) > 0 && !slices.Contains(only, d.Name) {
			continue
		}
		if !chain.MatchDisk(d.Name) {
			slog.Info("disk excluded", "disk", d.Name)
			continue
		}

		res, err := scan.Disk(cmd.Context(), d, scan.Options{
			BlockSize: blockSize,
			Chain:     chain,
			Contents:  contents,
			Hash:      hash,
			Logger:    slog.Default(),
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", d.Name, err)
		}
		printResult(a.stdout, d.Name, res)
		if res.Errors > 0 {
			partial = true
		}
	}

	if partial {
		return &exitError{code: 1}
	}
	return nil
}

func printResult(w io.Writer, name string, res scan.Result) {
	fmt.Fprintf(w, "%s: %d files, %d links, %d dirs, %d skipped, %d errors, %d blocks\n",
		name, res.Files, res.Links, res.Dirs, res.Skipped, res.Errors, res.Blocks)
}
