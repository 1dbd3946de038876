// Package timeline turns ordered (commit, version-set) snapshots into
// per-version support intervals and computes adoption lag against a
// reference timeline.
package timeline

import (
	"fmt"
	"sort"

	"github.com/clokep/homeserver-spec-versions/internal/vcs"
)

// MergeCommits combines per-finder commit sequences for one project into a
// single sequence suitable for snapshot evaluation: deduplicated by commit
// identity and ordered oldest first by (timestamp, identifier).
//
// Ancestry is deliberately not the sort key. The is-ancestor relation is
// only a partial order; commits from divergent merge lineages are
// incomparable under it, and a comparator built on it is not a valid total
// order. Timestamp plus identifier is total and repeatable, and callers can
// check the result against ancestry with ValidateAncestry.
func MergeCommits(streams ...[]vcs.Commit) []vcs.Commit {
	seen := map[string]bool{}
	var merged []vcs.Commit
	for _, stream := range streams {
		for _, c := range stream {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			merged = append(merged, c)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].When.Equal(merged[j].When) {
			return merged[i].When.Before(merged[j].When)
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

// ValidateAncestry reports every adjacent pair in commits whose order
// contradicts ancestry: the later commit is an ancestor of the earlier one.
// Violations indicate history rewrites or clock skew worth surfacing; the
// merge order itself is never adjusted.
func ValidateAncestry(commits []vcs.Commit, isAncestor func(a, b string) (bool, error)) ([]string, error) {
	var violations []string
	for i := 1; i < len(commits); i++ {
		earlier, later := commits[i-1], commits[i]
		reversed, err := isAncestor(later.ID, earlier.ID)
		if err != nil {
			return nil, err
		}
		if reversed && later.ID != earlier.ID {
			violations = append(violations,
				fmt.Sprintf("%s sorts before its descendant %s", earlier.ID, later.ID))
		}
	}
	return violations, nil
}
