// Package refspec computes the reference timeline from the Matrix spec
// repository: when each spec version was tagged, when each room version's
// specification page first appeared, and when each room version became the
// recommended default.
package refspec

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/clokep/homeserver-spec-versions/internal/finder"
	"github.com/clokep/homeserver-spec-versions/internal/vcs"
)

// RemoteURL is the canonical spec repository.
const RemoteURL = "https://github.com/matrix-org/matrix-spec.git"

// specTagPrefixes select release tags. The repository went through several
// tag naming schemes; the version identifier is always the last path
// segment.
var specTagPrefixes = []string{"v", "r", "client_server/r", "client-server/r"}

// roomVersionPaths holds the room version specification pages across the
// pre- and post-migration repository layouts. Fragments are shared
// includes, not versions.
var roomVersionPaths = []string{
	"specification/rooms/",
	"content/rooms/",
	"!content/rooms/fragments",
}

var roomVersionFile = regexp.MustCompile(`.+/v(\d+)\.(?:md|rst)$`)

// defaultRoomVersionPaths are the index pages declaring the recommended
// default room version across layouts.
var defaultRoomVersionPaths = []string{
	"specification/index.rst",
	"content/_index.md",
	"content/rooms/_index.md",
}

var defaultRoomVersionPattern = regexp.MustCompile(
	`Servers MUST have Room Version (\d+)|Servers SHOULD use (?:\*\*)?room version (\d+)(?:\*\*)?`)

// Reference is the immutable reference timeline for one run.
type Reference struct {
	// SpecVersions maps each published spec version to its tag datetime,
	// and SpecVersionLag to the days elapsed since the previous release
	// (zero for the first).
	SpecVersions   map[string]time.Time
	SpecVersionLag map[string]int

	// RoomVersions maps each room version to the date its specification
	// page first appeared.
	RoomVersions map[string]time.Time

	// DefaultRoomVersions maps each room version to the date it first
	// became the recommended default.
	DefaultRoomVersions map[string]time.Time
}

// Compute derives the full reference timeline from a clone of the spec
// repository. The repository's working tree is mutated while scanning for
// default room versions.
func Compute(repo *vcs.GitRepository, branch string) (*Reference, error) {
	ref := &Reference{}
	var err error
	if ref.SpecVersions, ref.SpecVersionLag, err = specVersions(repo); err != nil {
		return nil, err
	}
	if ref.RoomVersions, err = roomVersions(repo, branch); err != nil {
		return nil, err
	}
	if ref.DefaultRoomVersions, err = defaultRoomVersions(repo, branch); err != nil {
		return nil, err
	}
	return ref, nil
}

func specVersions(repo *vcs.GitRepository) (map[string]time.Time, map[string]int, error) {
	tags, err := repo.Tags()
	if err != nil {
		return nil, nil, err
	}
	versions := map[string]time.Time{}
	for _, tag := range tags {
		if !isSpecTag(tag.Name) {
			continue
		}
		segments := strings.Split(tag.Name, "/")
		versions[segments[len(segments)-1]] = tag.When
	}

	// Day lag between consecutive releases, in publication order.
	ordered := make([]string, 0, len(versions))
	for v := range versions {
		ordered = append(ordered, v)
	}
	sortByDate(ordered, versions)
	lag := make(map[string]int, len(ordered))
	for i, v := range ordered {
		if i == 0 {
			lag[v] = 0
			continue
		}
		lag[v] = daysBetween(versions[ordered[i-1]], versions[v])
	}
	return versions, lag, nil
}

func isSpecTag(name string) bool {
	for _, prefix := range specTagPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func roomVersions(repo *vcs.GitRepository, branch string) (map[string]time.Time, error) {
	additions, err := repo.FilesAdded(roomVersionPaths, branch)
	if err != nil {
		return nil, err
	}
	versions := map[string]time.Time{}
	for _, add := range additions {
		match := roomVersionFile.FindStringSubmatch(add.Path)
		if match == nil {
			continue
		}
		if _, ok := versions[match[1]]; !ok {
			versions[match[1]] = add.Commit.When
		}
	}
	return versions, nil
}

func defaultRoomVersions(repo *vcs.GitRepository, branch string) (map[string]time.Time, error) {
	commits, err := repo.CommitsTouching(defaultRoomVersionPaths, "", branch)
	if err != nil {
		return nil, err
	}
	scan := finder.PatternFinder{Paths: defaultRoomVersionPaths, Pattern: defaultRoomVersionPattern}

	versions := map[string]time.Time{}
	for _, c := range commits {
		if err := repo.Checkout(c.ID); err != nil {
			return nil, err
		}
		current, err := finder.Extract(scan, repo)
		if err != nil {
			return nil, err
		}
		if len(current) > 1 {
			return nil, fmt.Errorf("refspec: multiple default room versions at %s", c.ID)
		}
		for v := range current {
			if _, ok := versions[v]; !ok {
				versions[v] = c.When
			}
		}
	}
	return versions, nil
}

func sortByDate(versions []string, dates map[string]time.Time) {
	sort.Slice(versions, func(i, j int) bool {
		if !dates[versions[i]].Equal(dates[versions[j]]) {
			return dates[versions[i]].Before(dates[versions[j]])
		}
		return versions[i] < versions[j]
	})
}

func daysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}
