package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/clokep/homeserver-spec-versions/internal/config"
	"github.com/clokep/homeserver-spec-versions/internal/report"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run whenever the local server list changes",
	Long: "Watch monitors a local servers.toml and regenerates the report whenever it\n" +
		"changes. Requires server_list to point at a local file.",
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("server-list", "", "local servers.toml to watch")
	watchCmd.Flags().String("output", "", "override report output path")
	watchCmd.Flags().Duration("debounce", 2*time.Second, "settle time before re-running")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyRunOverrides(cmd, &cfg)
	if cfg.ServerList == "" {
		return fmt.Errorf("watch needs server_list to point at a local file")
	}
	settle, _ := cmd.Flags().GetDuration("debounce")

	ctx, cancel := setupSignalContext()
	defer cancel()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(cfg.ServerList); err != nil {
		return fmt.Errorf("watch %s: %w", cfg.ServerList, err)
	}

	rerun := func() {
		data, err := executeRun(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
			return
		}
		if err := report.Write(cfg.Output, data); err != nil {
			fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			return
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%d projects)\n", cfg.Output, len(data.HomeserverVersions))
	}

	rerun()
	return watchLoop(ctx, watcher, settle, rerun)
}

// watchLoop coalesces bursts of filesystem events: a rewrite typically fires
// several events, and editors replace files with rename+create. The action
// runs once per burst, after the file has settled.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, settle time.Duration, action func()) error {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settle)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(settle)
			}
		case <-fire:
			timer = nil
			fire = nil
			action()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}
