package cmd

import (
	"github.com/spf13/cobra"

	"github.com/clokep/homeserver-spec-versions/internal/config"
	"github.com/clokep/homeserver-spec-versions/internal/report"
)

var specDatesCmd = &cobra.Command{
	Use:   "specdates",
	Short: "Print the reference spec timeline to stdout",
	Long: "Specdates computes the reference timeline from the spec repository alone:\n" +
		"when each spec version was released, when each room version was specified,\n" +
		"and when each room version became the recommended default.",
	RunE: runSpecDates,
}

func init() {
	rootCmd.AddCommand(specDatesCmd)
}

func runSpecDates(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ref, err := computeReference(cfg)
	if err != nil {
		return err
	}
	return printJSON(&report.Data{
		SpecVersions: report.SpecVersions{
			Lag:          ref.SpecVersionLag,
			VersionDates: ref.SpecVersions,
		},
		RoomVersions:        ref.RoomVersions,
		DefaultRoomVersions: ref.DefaultRoomVersions,
		HomeserverVersions:  map[string]*report.ProjectData{},
	})
}
