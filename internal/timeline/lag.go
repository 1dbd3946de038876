package timeline

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnknownVersion is returned when a project supports a version the
// reference timeline has no publication date for. The reference is assumed
// complete; a miss is a configuration error, never silently skipped.
var ErrUnknownVersion = errors.New("version missing from reference timeline")

// Lag holds per-version adoption lag in days under the three windowing
// policies. AfterCommit and AfterRelease are always key-subsets of All.
type Lag struct {
	// All covers every version in the timeline. Negative values mean the
	// project advertised the version before the reference formally
	// published it.
	All map[string]int

	// AfterCommit only covers versions published after the project's
	// initial commit: versions that predate the project say nothing about
	// how quickly it adopts new ones.
	AfterCommit map[string]int

	// AfterRelease applies the same filter against the project's first
	// release. Empty when the project never released.
	AfterRelease map[string]int
}

// ComputeLag computes, for each version present in tl, the days between the
// reference publication date and the start of the version's first support
// interval.
func ComputeLag(tl Timeline, reference map[string]time.Time, initialCommit time.Time, initialRelease *time.Time) (Lag, error) {
	lag := Lag{
		All:          map[string]int{},
		AfterCommit:  map[string]int{},
		AfterRelease: map[string]int{},
	}
	for version, intervals := range tl {
		published, ok := reference[version]
		if !ok {
			return Lag{}, fmt.Errorf("timeline: %w: %q", ErrUnknownVersion, version)
		}
		days := daysBetween(published, intervals[0].StartDate)
		lag.All[version] = days
		if !published.Before(initialCommit) {
			lag.AfterCommit[version] = days
		}
		if initialRelease != nil && !published.Before(*initialRelease) {
			lag.AfterRelease[version] = days
		}
	}
	return lag, nil
}

// daysBetween returns whole days from a to b, rounding toward negative
// infinity so that supporting a version 12 hours early counts as -1 day.
func daysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}
