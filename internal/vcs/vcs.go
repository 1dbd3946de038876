// Package vcs provides a uniform capability surface over version-control
// backends. The reconstruction engine only needs a handful of operations:
// ordered path-filtered commit traversal, checkout, tag resolution, and
// submodule commit resolution. Two backends are provided: git (go-git) and
// Mercurial (shelling out to hg).
//
// A Repository owns a single on-disk working tree. Checkout is a destructive
// mutation of that tree, so a Repository instance must be used from one
// goroutine at a time and commit evaluation against it must be fully ordered.
// That contract is documented here rather than enforced with locks; callers
// that want parallelism use one Repository per project.
package vcs

import (
	"errors"
	"time"
)

// ErrUnknownRef is returned when a ref, branch, or tag cannot be resolved.
var ErrUnknownRef = errors.New("unknown ref")

// Commit is a read-only view of one commit in repository history: an opaque
// stable identifier plus its timestamp. Ancestry queries go through
// Repository.IsAncestor rather than being materialized here.
type Commit struct {
	ID   string
	When time.Time
}

// ProjectDates are the anchor dates derived from a repository's history.
type ProjectDates struct {
	// InitialCommit is the timestamp of the earliest commit considered part
	// of the project (the configured earliest commit, or the root of the
	// tracked branch's mainline).
	InitialCommit time.Time

	// LastCommit is the timestamp of the tracked branch's head.
	LastCommit time.Time

	// Forked is the timestamp of the parent of the configured earliest
	// commit. Nil unless an earliest commit was configured and has a parent.
	Forked *time.Time

	// InitialRelease is the timestamp of the project's first release tag.
	// Nil when the repository has no usable tags.
	InitialRelease *time.Time
}

// Repository is the adapter contract implemented per backend.
//
// All methods are blocking. Errors are fatal for the caller's evaluation of
// the project; nothing is retried here.
type Repository interface {
	// Root returns the path of the working tree that Checkout mutates and
	// finders read from.
	Root() string

	// Checkout resets the working tree to match ref exactly, discarding any
	// local modifications. Safe to call repeatedly.
	Checkout(ref string) error

	// Head resolves the head commit of branch.
	Head(branch string) (Commit, error)

	// CommitsTouching returns the commits on branch's history that modified
	// any of paths, oldest first. Only the mainline (first-parent) edge is
	// traversed through merges, so a change is dated by when it landed on
	// the branch rather than when it was authored. Entries in paths that
	// start with "!" are exclusions.
	//
	// A non-empty from excludes everything before it, and from itself is
	// always the first element of the result even when it did not touch
	// paths, preserving a known starting point for snapshot evaluation.
	CommitsTouching(paths []string, from, branch string) ([]Commit, error)

	// IsAncestor reports whether commit a is an ancestor of (or equal to)
	// commit b.
	IsAncestor(a, b string) (bool, error)

	// TagDatetime returns the tag's own timestamp: the tagged date for
	// annotated tags, the commit's committer date for lightweight tags.
	TagDatetime(tag string) (time.Time, error)

	// TagContaining returns the earliest-created tag (by tag creation date,
	// not name) whose history reaches commit, skipping tags matched by the
	// adapter's denylist. Returns "" when no tag contains the commit.
	TagContaining(commit string) (string, error)

	// SubmoduleCommit resolves the commit a submodule at path is pinned to
	// in the currently checked-out tree. Returns "" when there is no
	// submodule at path.
	SubmoduleCommit(path string) (string, error)

	// ProjectDates derives the project's anchor dates. A configured
	// earliestCommit marks where the project's own history starts (its
	// parent's date is the forked-from date); a configured earliestTag
	// overrides release detection.
	ProjectDates(earliestCommit, earliestTag, branch string) (ProjectDates, error)
}

// matchesAny reports whether name matches any of the denylist prefixes.
// Denylist entries are plain prefixes, not regular expressions; that is all
// the known non-release tag schemes need.
func matchesAny(name string, denylist []string) bool {
	for _, prefix := range denylist {
		if prefix != "" && len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// pathsSplit separates include entries from "!"-prefixed exclude entries.
func pathsSplit(paths []string) (includes, excludes []string) {
	for _, p := range paths {
		if len(p) > 0 && p[0] == '!' {
			excludes = append(excludes, p[1:])
		} else {
			includes = append(includes, p)
		}
	}
	return includes, excludes
}
