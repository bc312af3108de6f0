package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/lyallcooper/reclaim/internal/app"
	"github.com/lyallcooper/reclaim/internal/config"
	"github.com/lyallcooper/reclaim/internal/logging"
	"github.com/lyallcooper/reclaim/internal/scanner"
	"github.com/lyallcooper/reclaim/internal/types"
)

var scanOpts struct {
	target  string
	depth   int
	jsonOut bool
	verbose bool
}

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "Scan a directory from the terminal",
	Long: `Scan a directory and print every entry judged safe to delete.

The scan uses the saved oracle settings and is recorded in history.
Nothing is deleted. Press Ctrl-C to stop early and keep the partial result.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanOpts.target, "target", "t", "", `space to find, e.g. "10GB" (default from settings)`)
	scanCmd.Flags().IntVarP(&scanOpts.depth, "depth", "d", 0, "maximum depth (default from settings)")
	scanCmd.Flags().BoolVar(&scanOpts.jsonOut, "json", false, "print the final result as JSON")
	scanCmd.Flags().BoolVarP(&scanOpts.verbose, "verbose", "v", false, "show oracle calls and debug logs")
}

func runScan(ctx context.Context, out io.Writer, dir string) error {
	path, err := filepath.Abs(config.ExpandPath(dir))
	if err != nil {
		return err
	}

	core, err := app.NewCore("")
	if err != nil {
		return err
	}
	defer core.Close()

	if scanOpts.verbose {
		logging.SetLevel("debug")
	} else {
		logging.SetLevel("warn")
	}

	if !core.Config.IsPathAllowed(path) {
		return fmt.Errorf("path not allowed: %s", path)
	}

	s, err := core.Settings.Load()
	if err != nil {
		return err
	}
	cfg := scanner.Config{
		TargetPath: path,
		TargetSize: int64(s.TargetSizeGB * (1 << 30)),
		MaxDepth:   s.MaxDepth,
	}
	if scanOpts.target != "" {
		if cfg.TargetSize, err = units.RAMInBytes(scanOpts.target); err != nil {
			return fmt.Errorf("invalid --target: %w", err)
		}
	}
	if scanOpts.depth > 0 {
		cfg.MaxDepth = scanOpts.depth
	}

	task, err := core.Registry.Start(cfg, nil)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	context.AfterFunc(ctx, task.Stop)

	final := follow(task, out, !scanOpts.jsonOut, scanOpts.verbose)

	if scanOpts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSummary(final))
	return nil
}

// follow prints task events until the task finishes and returns its final
// snapshot. A dropped subscription is renewed.
func follow(task *scanner.Task, out io.Writer, live, verbose bool) types.Snapshot {
	lastDir := ""
	for {
		events, detach := task.Subscribe()
		for ev := range events {
			if !live {
				continue
			}
			switch ev.Type {
			case scanner.EventProgress:
				if s := ev.Snapshot; s != nil && s.CurrentPath != "" && s.CurrentPath != lastDir {
					lastDir = s.CurrentPath
					fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("depth %d  %s", s.CurrentDepth, s.CurrentPath)))
				}
			case scanner.EventFound:
				fmt.Fprintln(out, renderItem(*ev.Item))
			case scanner.EventAgentCall:
				if verbose {
					fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("  %s %s (%d entries)", ev.Call.Kind, ev.Call.DirPath, ev.Call.BatchSize)))
				}
			case scanner.EventAgentResponse:
				if verbose {
					r := ev.Response
					line := fmt.Sprintf("  %s done in %dms, %d tokens", r.Kind, r.ElapsedMS, r.TokenUsage.Total)
					if r.Error != "" {
						line += ", error: " + r.Error
					}
					fmt.Fprintln(out, mutedStyle.Render(line))
				}
			}
		}
		detach()

		select {
		case <-task.Done():
			return task.Snapshot()
		default:
		}
	}
}
