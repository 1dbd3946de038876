// Package finder turns a checked-out working tree into a set of
// version-identifier strings. The three variants form a closed sum: Pattern
// (regex over files), SubModule (commit resolution via a VCS submodule
// pointer, only usable inside a SubRepo finder), and SubRepo (resolve a
// pinned commit in the primary tree, then recurse into a secondary
// repository).
package finder

import (
	"errors"
	"fmt"

	"github.com/clokep/homeserver-spec-versions/internal/vcs"
)

// ErrAmbiguous is returned when a SubRepo finder's commit-resolution step
// matches more than one candidate commit at a single primary commit. The
// pattern is assumed unambiguous per commit; multiple matches are a
// configuration defect, not a recoverable condition.
var ErrAmbiguous = errors.New("ambiguous sub-repository commit")

// Finder is the sealed union of the three variants. Evaluation dispatches
// explicitly in Extract rather than through per-variant methods because
// each variant has a materially different algorithm and the set is closed.
type Finder interface {
	isFinder()
}

func (PatternFinder) isFinder()   {}
func (SubModuleFinder) isFinder() {}
func (SubRepoFinder) isFinder()   {}

// SubModuleFinder resolves a pinned secondary-repository commit through the
// submodule checked out at Path. It is not independently invocable; it only
// serves as the commit-resolution half of a SubRepoFinder.
type SubModuleFinder struct {
	Path string
}

// SubRepoFinder composes a commit-resolution step against the primary
// repository with an inner pattern scan of a secondary repository.
type SubRepoFinder struct {
	// CommitFinder locates the pinned secondary commit in the primary tree:
	// a PatternFinder whose matches are commit identifiers, or a
	// SubModuleFinder.
	CommitFinder Finder

	// Secondary is the repository the pinned commit is checked out in.
	Secondary vcs.Repository

	// Inner extracts versions from the secondary working tree.
	Inner PatternFinder
}

// Extract evaluates f against the primary repository's current working tree
// and returns the detected version identifiers.
func Extract(f Finder, primary vcs.Repository) (map[string]bool, error) {
	switch f := f.(type) {
	case PatternFinder:
		return f.scan(primary.Root())
	case SubRepoFinder:
		return f.extract(primary)
	case SubModuleFinder:
		return nil, fmt.Errorf("finder: submodule finder is not independently invocable")
	default:
		return nil, fmt.Errorf("finder: unsupported finder %T", f)
	}
}

// CommitPaths returns the primary-repository paths whose changes can alter
// f's extraction result. SubRepo finders report the paths of their
// commit-resolution step: the secondary repository's own history is never
// merged into the primary causal frame.
func CommitPaths(f Finder) ([]string, error) {
	switch f := f.(type) {
	case PatternFinder:
		return f.Paths, nil
	case SubRepoFinder:
		switch cf := f.CommitFinder.(type) {
		case PatternFinder:
			return cf.Paths, nil
		case SubModuleFinder:
			return []string{cf.Path}, nil
		default:
			return nil, fmt.Errorf("finder: unsupported commit finder %T", cf)
		}
	case SubModuleFinder:
		return []string{f.Path}, nil
	default:
		return nil, fmt.Errorf("finder: unsupported finder %T", f)
	}
}

// extract resolves the pinned secondary commit, checks it out in the
// secondary repository, and runs the inner pattern there. No resolvable
// commit means the secondary repository has no corresponding state yet and
// yields the empty set.
func (f SubRepoFinder) extract(primary vcs.Repository) (map[string]bool, error) {
	var commit string

	switch cf := f.CommitFinder.(type) {
	case PatternFinder:
		matches, err := cf.scan(primary.Root())
		if err != nil {
			return nil, err
		}
		if len(matches) > 1 {
			return nil, fmt.Errorf("finder: %w: %v", ErrAmbiguous, sorted(matches))
		}
		for m := range matches {
			commit = m
		}
	case SubModuleFinder:
		var err error
		commit, err = primary.SubmoduleCommit(cf.Path)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("finder: unsupported commit finder %T", cf)
	}

	if commit == "" {
		return map[string]bool{}, nil
	}
	if err := f.Secondary.Checkout(commit); err != nil {
		return nil, err
	}
	return f.Inner.scan(f.Secondary.Root())
}
