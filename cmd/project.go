package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clokep/homeserver-spec-versions/internal/catalog"
	"github.com/clokep/homeserver-spec-versions/internal/config"
	"github.com/clokep/homeserver-spec-versions/internal/engine"
)

var projectCmd = &cobra.Command{
	Use:   "project <name>",
	Short: "Mine a single project and print its data to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runProject,
}

func init() {
	projectCmd.Flags().String("server-list", "", "local servers.toml instead of the published list")

	rootCmd.AddCommand(projectCmd)
}

func runProject(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if v, _ := cmd.Flags().GetString("server-list"); v != "" {
		cfg.ServerList = v
	}
	if v, _ := rootCmd.PersistentFlags().GetBool("verbose"); v {
		cfg.Verbose = true
	}

	servers, err := loadServers(cfg)
	if err != nil {
		return err
	}
	cat := catalog.Default(servers)

	key := strings.ToLower(args[0])
	var project *catalog.Project
	for i := range cat.Projects {
		if cat.Projects[i].Key() == key {
			project = &cat.Projects[i]
			break
		}
	}
	if project == nil {
		if data, ok := cat.Manual[key]; ok {
			return printJSON(data)
		}
		return fmt.Errorf("unknown project %q", key)
	}

	ref, err := computeReference(cfg)
	if err != nil {
		return err
	}

	eng := engine.New(filepath.Join(cfg.CacheDir, "clones"))
	if cfg.Verbose {
		eng.Logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	data, err := eng.EvaluateProject(*project, ref)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func printJSON(v any) error {
	payload, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	return nil
}
