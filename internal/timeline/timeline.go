package timeline

import (
	"time"

	"github.com/clokep/homeserver-spec-versions/internal/vcs"
)

// Snapshot is the set of version identifiers observed at one commit. In the
// by-tag flavor ID names a tag and When is the tag's datetime.
type Snapshot struct {
	ID       string
	When     time.Time
	Versions map[string]bool
}

// Interval is one contiguous period during which a version identifier was
// detected. An empty LastCommit (and nil EndDate) means the interval is
// still open as of the last processed snapshot.
type Interval struct {
	FirstCommit string     `json:"first_commit"`
	StartDate   time.Time  `json:"start_date"`
	LastCommit  string     `json:"last_commit,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// Timeline maps each version identifier to its ordered, disjoint support
// intervals.
type Timeline map[string][]*Interval

// AppendSnapshot appends s unless its version set equals the previous
// retained snapshot's set. This run-length compression never changes the
// intervals Build produces; it only drops no-op transitions.
func AppendSnapshot(snaps []Snapshot, s Snapshot) []Snapshot {
	if len(snaps) > 0 && setsEqual(snaps[len(snaps)-1].Versions, s.Versions) {
		return snaps
	}
	return append(snaps, s)
}

// Build folds an ordered snapshot sequence into a Timeline. Per version the
// transitions form a two-state machine: a version appearing opens a new
// interval, a version disappearing closes the most recent one. A version
// may cycle arbitrarily many times, producing multiple disjoint intervals.
func Build(snaps []Snapshot) Timeline {
	tl := Timeline{}
	var prev map[string]bool
	for _, s := range snaps {
		for v := range s.Versions {
			if !prev[v] {
				tl[v] = append(tl[v], &Interval{FirstCommit: s.ID, StartDate: s.When})
			}
		}
		for v := range prev {
			if !s.Versions[v] {
				open := tl[v][len(tl[v])-1]
				open.LastCommit = s.ID
				end := s.When
				open.EndDate = &end
			}
		}
		prev = s.Versions
	}
	return tl
}

// RemapToTags rewrites each snapshot's commit to the first tag reaching it,
// dating support by when it shipped rather than when it landed. Snapshots
// whose commit no tag reaches yet contribute nothing. The result is
// re-compressed since distinct commits can collapse onto one tag.
func RemapToTags(snaps []Snapshot, repo vcs.Repository) ([]Snapshot, error) {
	var out []Snapshot
	for _, s := range snaps {
		tag, err := repo.TagContaining(s.ID)
		if err != nil {
			return nil, err
		}
		if tag == "" {
			continue
		}
		when, err := repo.TagDatetime(tag)
		if err != nil {
			return nil, err
		}
		out = AppendSnapshot(out, Snapshot{ID: tag, When: when, Versions: s.Versions})
	}
	return out, nil
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}
