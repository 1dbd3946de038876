package timeline

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestComputeLag(t *testing.T) {
	t.Parallel()

	reference := map[string]time.Time{
		"r0.1.0": at(0),
		"r0.2.0": at(100),
		"r0.3.0": at(200),
	}

	t.Run("WindowingPolicies", func(t *testing.T) {
		t.Parallel()
		// The project's first commit predates r0.2.0, and its first release
		// predates r0.3.0 only.
		tl := Timeline{
			"r0.1.0": {{StartDate: at(60)}},
			"r0.2.0": {{StartDate: at(110)}},
			"r0.3.0": {{StartDate: at(205)}},
		}
		initialCommit := at(50)
		initialRelease := at(150)

		lag, err := ComputeLag(tl, reference, initialCommit, &initialRelease)
		if err != nil {
			t.Fatalf("ComputeLag: %v", err)
		}
		wantAll := map[string]int{"r0.1.0": 60, "r0.2.0": 10, "r0.3.0": 5}
		if !reflect.DeepEqual(lag.All, wantAll) {
			t.Errorf("All = %v, want %v", lag.All, wantAll)
		}
		wantAfterCommit := map[string]int{"r0.2.0": 10, "r0.3.0": 5}
		if !reflect.DeepEqual(lag.AfterCommit, wantAfterCommit) {
			t.Errorf("AfterCommit = %v, want %v", lag.AfterCommit, wantAfterCommit)
		}
		wantAfterRelease := map[string]int{"r0.3.0": 5}
		if !reflect.DeepEqual(lag.AfterRelease, wantAfterRelease) {
			t.Errorf("AfterRelease = %v, want %v", lag.AfterRelease, wantAfterRelease)
		}
	})

	t.Run("NoReleaseMeansEmptyAfterRelease", func(t *testing.T) {
		t.Parallel()
		tl := Timeline{"r0.1.0": {{StartDate: at(10)}}}
		lag, err := ComputeLag(tl, reference, at(0), nil)
		if err != nil {
			t.Fatalf("ComputeLag: %v", err)
		}
		if len(lag.AfterRelease) != 0 {
			t.Errorf("AfterRelease = %v, want empty", lag.AfterRelease)
		}
	})

	t.Run("EarlyAdoptionIsNegative", func(t *testing.T) {
		t.Parallel()
		// Supported 12 hours before publication: -1 day, not 0.
		early := at(100).Add(-12 * time.Hour)
		tl := Timeline{"r0.2.0": {{StartDate: early}}}
		lag, err := ComputeLag(tl, reference, at(0), nil)
		if err != nil {
			t.Fatalf("ComputeLag: %v", err)
		}
		if lag.All["r0.2.0"] != -1 {
			t.Errorf("All[r0.2.0] = %d, want -1", lag.All["r0.2.0"])
		}
	})

	t.Run("UnknownVersionFails", func(t *testing.T) {
		t.Parallel()
		tl := Timeline{"v99": {{StartDate: at(10)}}}
		_, err := ComputeLag(tl, reference, at(0), nil)
		if !errors.Is(err, ErrUnknownVersion) {
			t.Fatalf("error = %v, want ErrUnknownVersion", err)
		}
	})

	t.Run("SubsetInvariant", func(t *testing.T) {
		t.Parallel()
		tl := Timeline{
			"r0.1.0": {{StartDate: at(1)}},
			"r0.2.0": {{StartDate: at(101)}},
			"r0.3.0": {{StartDate: at(201)}},
		}
		release := at(100)
		lag, err := ComputeLag(tl, reference, at(50), &release)
		if err != nil {
			t.Fatalf("ComputeLag: %v", err)
		}
		for v, d := range lag.AfterCommit {
			if all, ok := lag.All[v]; !ok || all != d {
				t.Errorf("AfterCommit[%s]=%d not mirrored in All", v, d)
			}
		}
		for v, d := range lag.AfterRelease {
			if got, ok := lag.AfterCommit[v]; !ok || got != d {
				t.Errorf("AfterRelease[%s]=%d missing from AfterCommit", v, d)
			}
		}
	})
}
