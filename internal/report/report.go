// Package report defines the output data model published as data.json and
// its serialization. The dashboard consuming the file is a separate
// project; this package only guarantees a deterministic, stable shape.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/clokep/homeserver-spec-versions/internal/timeline"
)

// ProjectData is everything published for one homeserver project.
type ProjectData struct {
	InitialReleaseDate *time.Time `json:"initial_release_date"`
	InitialCommitDate  time.Time  `json:"initial_commit_date"`
	ForkedDate         *time.Time `json:"forked_date"`
	ForkedFrom         string     `json:"forked_from,omitempty"`
	LastCommitDate     time.Time  `json:"last_commit_date"`
	Maturity           string     `json:"maturity"`

	SpecVersionDatesByCommit        timeline.Timeline `json:"spec_version_dates_by_commit"`
	SpecVersionDatesByTag           timeline.Timeline `json:"spec_version_dates_by_tag"`
	RoomVersionDatesByCommit        timeline.Timeline `json:"room_version_dates_by_commit"`
	RoomVersionDatesByTag           timeline.Timeline `json:"room_version_dates_by_tag"`
	DefaultRoomVersionDatesByCommit timeline.Timeline `json:"default_room_version_dates_by_commit"`
	DefaultRoomVersionDatesByTag    timeline.Timeline `json:"default_room_version_dates_by_tag"`

	LagAllByCommit          map[string]int `json:"lag_all_by_commit"`
	LagAllByTag             map[string]int `json:"lag_all_by_tag"`
	LagAfterCommitByCommit  map[string]int `json:"lag_after_commit_by_commit"`
	LagAfterCommitByTag     map[string]int `json:"lag_after_commit_by_tag"`
	LagAfterReleaseByCommit map[string]int `json:"lag_after_release_by_commit"`
	LagAfterReleaseByTag    map[string]int `json:"lag_after_release_by_tag"`
}

// SpecVersions describes the reference timeline itself: when each spec
// version was published and how many days separated consecutive releases.
type SpecVersions struct {
	Lag          map[string]int       `json:"lag"`
	VersionDates map[string]time.Time `json:"version_dates"`
}

// Data is the complete output document.
type Data struct {
	SpecVersions        SpecVersions            `json:"spec_versions"`
	RoomVersions        map[string]time.Time    `json:"room_versions"`
	DefaultRoomVersions map[string]time.Time    `json:"default_room_versions"`
	HomeserverVersions  map[string]*ProjectData `json:"homeserver_versions"`
}

// Encode renders d as indented JSON with a trailing newline. Map keys are
// emitted sorted, so identical inputs produce byte-identical output.
func Encode(d *Data) ([]byte, error) {
	payload, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("report: marshal: %w", err)
	}
	return append(payload, '\n'), nil
}

// Write atomically replaces path with the encoded document.
func Write(path string, d *Data) error {
	payload, err := Encode(d)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("report: replace %s: %w", path, err)
	}
	return nil
}
