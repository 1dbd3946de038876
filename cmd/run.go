package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clokep/homeserver-spec-versions/internal/catalog"
	"github.com/clokep/homeserver-spec-versions/internal/config"
	"github.com/clokep/homeserver-spec-versions/internal/engine"
	"github.com/clokep/homeserver-spec-versions/internal/refspec"
	"github.com/clokep/homeserver-spec-versions/internal/report"
	"github.com/clokep/homeserver-spec-versions/internal/store"
	"github.com/clokep/homeserver-spec-versions/internal/vcs"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Mine every configured project and write the report",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("output", "", "override report output path")
	runCmd.Flags().String("server-list", "", "local servers.toml instead of the published list")
	runCmd.Flags().Int("concurrency", 0, "override worker count")
	runCmd.Flags().Bool("force-updates", false, "re-evaluate projects even when cached")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyRunOverrides(cmd, &cfg)

	ctx, cancel := setupSignalContext()
	defer cancel()

	data, err := executeRun(ctx, cfg)
	if err != nil {
		return err
	}
	if err := report.Write(cfg.Output, data); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d projects)\n", cfg.Output, len(data.HomeserverVersions))
	return nil
}

// applyRunOverrides applies CLI flag values to the loaded config.
func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Output = v
	}
	if v, _ := cmd.Flags().GetString("server-list"); v != "" {
		cfg.ServerList = v
	}
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.Concurrency = v
	}
	if v, _ := cmd.Flags().GetBool("force-updates"); v {
		cfg.ForceUpdates = true
	}
	if v, _ := rootCmd.PersistentFlags().GetBool("verbose"); v {
		cfg.Verbose = true
	}
}

// setupSignalContext returns a context that is canceled on SIGINT or SIGTERM.
func setupSignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "shutting down...")
		cancel()
	}()
	return ctx, cancel
}

// executeRun performs one full batch: load the server catalog, compute the
// reference timeline from the spec repository, evaluate every project, and
// assemble the output document. Per-project failures are reported and
// skipped; they never abort the batch.
func executeRun(ctx context.Context, cfg config.Config) (*report.Data, error) {
	servers, err := loadServers(cfg)
	if err != nil {
		return nil, err
	}
	cat := catalog.Default(servers)

	ref, err := computeReference(cfg)
	if err != nil {
		return nil, err
	}

	var st *store.Store
	if cfg.StorePath != "" {
		st, err = store.Open(ctx, cfg.StorePath)
		if err != nil {
			return nil, err
		}
		defer st.Close()
	}

	eng := engine.New(filepath.Join(cfg.CacheDir, "clones"))
	if cfg.Verbose {
		eng.Logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}

	results := evaluateAll(ctx, cfg, eng, st, cat, ref)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	for name, data := range cat.Manual {
		results[name] = data
	}

	return &report.Data{
		SpecVersions: report.SpecVersions{
			Lag:          ref.SpecVersionLag,
			VersionDates: ref.SpecVersions,
		},
		RoomVersions:        ref.RoomVersions,
		DefaultRoomVersions: ref.DefaultRoomVersions,
		HomeserverVersions:  results,
	}, nil
}

// loadServers reads the published server list, or a local copy of it when
// one is configured.
func loadServers(cfg config.Config) ([]catalog.ServerMeta, error) {
	if cfg.ServerList == "" {
		return catalog.FetchServers(catalog.ServerMetadataURL)
	}
	f, err := os.Open(cfg.ServerList)
	if err != nil {
		return nil, fmt.Errorf("open server list: %w", err)
	}
	defer f.Close()
	return catalog.LoadServers(f)
}

// computeReference clones the spec repository and derives the reference
// timeline every project is compared against.
func computeReference(cfg config.Config) (*refspec.Reference, error) {
	remote := cfg.SpecRemote
	if remote == "" {
		remote = refspec.RemoteURL
	}
	repo, err := vcs.NewGitRepository(filepath.Join(cfg.CacheDir, "matrix-spec"), remote, nil)
	if err != nil {
		return nil, err
	}
	return refspec.Compute(repo, cfg.SpecBranch)
}

// evaluateAll runs a bounded worker pool over the catalog. Each worker owns
// the repositories it opens, so no working tree is ever shared.
func evaluateAll(ctx context.Context, cfg config.Config, eng *engine.Engine, st *store.Store, cat catalog.Catalog, ref *refspec.Reference) map[string]*report.ProjectData {
	var (
		mu      sync.Mutex
		results = map[string]*report.ProjectData{}
	)

	workers := cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan catalog.Project)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				if ctx.Err() != nil {
					return
				}
				data, err := evaluateOne(ctx, cfg, eng, st, p, ref)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", p.Key(), err)
					continue
				}
				if data == nil {
					continue
				}
				mu.Lock()
				results[p.Key()] = data
				mu.Unlock()
			}
		}()
	}

feed:
	for _, p := range cat.Projects {
		select {
		case jobs <- p:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

// evaluateOne evaluates a single project, consulting the store first. A nil
// result with a nil error means the project was skipped.
func evaluateOne(ctx context.Context, cfg config.Config, eng *engine.Engine, st *store.Store, p catalog.Project, ref *refspec.Reference) (*report.ProjectData, error) {
	if p.Repo.Proxy != catalog.ProxyNone {
		fmt.Fprintf(os.Stderr, "%s: skipping, remote requires a %s tunnel\n", p.Key(), p.Repo.Proxy)
		return nil, nil
	}

	// Frozen projects reuse whatever the previous run produced.
	if st != nil && !p.ProcessUpdates && !cfg.ForceUpdates {
		if data, ok, err := st.Latest(ctx, p.Key()); err != nil {
			return nil, err
		} else if ok {
			return data, nil
		}
	}

	repo, err := eng.OpenProject(p)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head(p.Branch)
	if err != nil {
		return nil, err
	}

	hash := configHash(p)
	if st != nil && !cfg.ForceUpdates {
		if data, ok, err := st.Cached(ctx, p.Key(), head.ID, hash); err != nil {
			return nil, err
		} else if ok {
			fmt.Fprintf(os.Stderr, "%s: unchanged since last run\n", p.Key())
			return data, nil
		}
	}

	data, err := eng.Evaluate(repo, p, ref)
	if err != nil {
		return nil, err
	}
	if st != nil {
		if err := st.Put(ctx, p.Key(), head.ID, hash, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// configHash fingerprints a project's merged configuration so cached results
// are invalidated when the configuration changes.
func configHash(p catalog.Project) string {
	payload, _ := json.Marshal(p)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
