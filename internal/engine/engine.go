// Package engine reconstructs version-support timelines for one project at
// a time: it merges the commit streams of the project's finders, evaluates
// every merged commit into a snapshot, folds snapshots into interval
// timelines, and computes adoption lag against the reference timeline.
package engine

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/clokep/homeserver-spec-versions/internal/catalog"
	"github.com/clokep/homeserver-spec-versions/internal/finder"
	"github.com/clokep/homeserver-spec-versions/internal/refspec"
	"github.com/clokep/homeserver-spec-versions/internal/report"
	"github.com/clokep/homeserver-spec-versions/internal/timeline"
	"github.com/clokep/homeserver-spec-versions/internal/vcs"
)

// OpenFunc resolves a repository descriptor to an adapter whose working
// tree lives under the given directory.
type OpenFunc func(dir string, meta catalog.RepositoryMeta, tagDenylist []string) (vcs.Repository, error)

// Engine evaluates projects. Instances are safe for concurrent use across
// different projects because every project gets its own adapters and clone
// directories; evaluation within one project is strictly sequential.
type Engine struct {
	// CloneDir is the base directory holding one clone per project plus a
	// shared subrepos directory for secondary repositories.
	CloneDir string

	// Open creates repository adapters; replaceable for tests.
	Open OpenFunc

	// Logf receives progress lines. Nil disables logging.
	Logf func(format string, args ...any)
}

// New returns an Engine cloning under dir with network-backed adapters.
func New(dir string) *Engine {
	return &Engine{CloneDir: dir, Open: openRepository}
}

func openRepository(dir string, meta catalog.RepositoryMeta, tagDenylist []string) (vcs.Repository, error) {
	switch meta.Type {
	case catalog.RepoHg:
		return vcs.NewHgRepository(dir, meta.URL, tagDenylist)
	default:
		return vcs.NewGitRepository(dir, meta.URL, tagDenylist)
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}

// OpenProject opens the project's repository adapter under the engine's
// clone directory, cloning or updating it as needed.
func (e *Engine) OpenProject(p catalog.Project) (vcs.Repository, error) {
	repo, err := e.Open(filepath.Join(e.CloneDir, p.Key()), p.Repo, p.TagDenylist)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return repo, nil
}

// EvaluateProject reconstructs the full report entry for one project.
func (e *Engine) EvaluateProject(p catalog.Project, ref *refspec.Reference) (*report.ProjectData, error) {
	repo, err := e.OpenProject(p)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(repo, p, ref)
}

// Evaluate reconstructs the report entry for one project against an already
// opened repository.
func (e *Engine) Evaluate(repo vcs.Repository, p catalog.Project, ref *refspec.Reference) (*report.ProjectData, error) {
	dates, err := repo.ProjectDates(p.EarliestCommit, p.EarliestTag, p.Branch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}

	data := &report.ProjectData{
		InitialReleaseDate: dates.InitialRelease,
		InitialCommitDate:  dates.InitialCommit,
		ForkedDate:         dates.Forked,
		ForkedFrom:         p.ForkedFrom,
		LastCommitDate:     dates.LastCommit,
		Maturity:           strings.ToLower(p.Maturity),
	}

	quantities := []struct {
		specs     []catalog.FinderSpec
		singleton bool
		byCommit  *timeline.Timeline
		byTag     *timeline.Timeline
	}{
		{specs: specFinderSpecs(p), byCommit: &data.SpecVersionDatesByCommit, byTag: &data.SpecVersionDatesByTag},
		{specs: p.RoomVersionFinders, byCommit: &data.RoomVersionDatesByCommit, byTag: &data.RoomVersionDatesByTag},
		{specs: p.DefaultRoomVersionFinders, singleton: true, byCommit: &data.DefaultRoomVersionDatesByCommit, byTag: &data.DefaultRoomVersionDatesByTag},
	}
	for _, q := range quantities {
		finders, err := e.compileFinders(q.specs)
		if err != nil {
			return nil, err
		}
		byCommit, byTag, err := e.buildTimelines(repo, p, finders, q.singleton)
		if err != nil {
			return nil, err
		}
		*q.byCommit, *q.byTag = byCommit, byTag
	}

	if err := e.computeLag(data, ref, dates); err != nil {
		return nil, err
	}
	return data, nil
}

// specFinderSpecs wraps the project's spec version paths in the shared
// pattern finder. Projects that never declared spec versions yield none.
func specFinderSpecs(p catalog.Project) []catalog.FinderSpec {
	if len(p.SpecVersionPaths) == 0 {
		return nil
	}
	return []catalog.FinderSpec{catalog.SpecVersionFinder(p.SpecVersionPaths, p.SpecVersionIgnore)}
}

// buildTimelines runs the full snapshot pipeline for one tracked quantity
// and folds it into the by-commit and by-tag flavors.
func (e *Engine) buildTimelines(repo vcs.Repository, p catalog.Project, finders []finder.Finder, singleton bool) (timeline.Timeline, timeline.Timeline, error) {
	if len(finders) == 0 {
		return timeline.Timeline{}, timeline.Timeline{}, nil
	}
	snaps, err := e.snapshots(repo, p, finders, singleton)
	if err != nil {
		return nil, nil, err
	}
	tagSnaps, err := timeline.RemapToTags(snaps, repo)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return timeline.Build(snaps), timeline.Build(tagSnaps), nil
}

// snapshots merges the finders' commit streams and evaluates every merged
// commit, retaining a snapshot whenever the observed version set changes.
func (e *Engine) snapshots(repo vcs.Repository, p catalog.Project, finders []finder.Finder, singleton bool) ([]timeline.Snapshot, error) {
	streams := make([][]vcs.Commit, 0, len(finders))
	for _, f := range finders {
		paths, err := finder.CommitPaths(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		commits, err := repo.CommitsTouching(paths, p.EarliestCommit, p.Branch)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRepository, err)
		}
		streams = append(streams, commits)
	}
	merged := timeline.MergeCommits(streams...)

	violations, err := timeline.ValidateAncestry(merged, repo.IsAncestor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	for _, v := range violations {
		e.logf("%s: merge order contradicts ancestry: %s", p.Key(), v)
	}

	var snaps []timeline.Snapshot
	for _, c := range merged {
		if err := repo.Checkout(c.ID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRepository, err)
		}
		versions := map[string]bool{}
		for _, f := range finders {
			found, err := finder.Extract(f, repo)
			if err != nil {
				if errors.Is(err, finder.ErrAmbiguous) {
					return nil, fmt.Errorf("%w: commit %s: %w", ErrAmbiguity, c.ID, err)
				}
				return nil, fmt.Errorf("%w: commit %s: %w", ErrRepository, c.ID, err)
			}
			for v := range found {
				versions[v] = true
			}
		}
		if singleton && len(versions) > 1 {
			return nil, fmt.Errorf("%w: %d default versions at commit %s", ErrInvariant, len(versions), c.ID)
		}
		snaps = timeline.AppendSnapshot(snaps, timeline.Snapshot{ID: c.ID, When: c.When, Versions: versions})
	}
	return snaps, nil
}

// compileFinders turns finder specifications into runtime finders, opening
// secondary repository adapters for sub-repo finders.
func (e *Engine) compileFinders(specs []catalog.FinderSpec) ([]finder.Finder, error) {
	finders := make([]finder.Finder, 0, len(specs))
	for _, spec := range specs {
		f, err := e.compileFinder(spec)
		if err != nil {
			return nil, err
		}
		finders = append(finders, f)
	}
	return finders, nil
}

func (e *Engine) compileFinder(spec catalog.FinderSpec) (finder.Finder, error) {
	switch spec.Kind {
	case catalog.FinderPattern:
		return e.compilePattern(spec)
	case catalog.FinderSubModule:
		return finder.SubModuleFinder{Path: spec.Path}, nil
	case catalog.FinderSubRepo:
		return e.compileSubRepo(spec)
	default:
		return nil, fmt.Errorf("%w: unrecognized finder kind %q", ErrConfiguration, spec.Kind)
	}
}

func (e *Engine) compilePattern(spec catalog.FinderSpec) (finder.PatternFinder, error) {
	pattern, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return finder.PatternFinder{}, fmt.Errorf("%w: pattern %q: %w", ErrConfiguration, spec.Pattern, err)
	}
	var parser finder.Parser
	if spec.Parser != "" {
		parser = finder.Parsers[spec.Parser]
		if parser == nil {
			return finder.PatternFinder{}, fmt.Errorf("%w: unrecognized parser %q", ErrConfiguration, spec.Parser)
		}
	}
	return finder.PatternFinder{
		Paths:   spec.Paths,
		Pattern: pattern,
		Parser:  parser,
		Ignore:  spec.Ignore,
	}, nil
}

func (e *Engine) compileSubRepo(spec catalog.FinderSpec) (finder.Finder, error) {
	if spec.Repository == nil || spec.CommitFinder == nil || spec.Finder == nil {
		return nil, fmt.Errorf("%w: sub-repo finder needs repository, commit_finder and finder", ErrConfiguration)
	}
	var commitFinder finder.Finder
	switch spec.CommitFinder.Kind {
	case catalog.FinderPattern:
		f, err := e.compilePattern(*spec.CommitFinder)
		if err != nil {
			return nil, err
		}
		commitFinder = f
	case catalog.FinderSubModule:
		commitFinder = finder.SubModuleFinder{Path: spec.CommitFinder.Path}
	default:
		return nil, fmt.Errorf("%w: unrecognized commit finder kind %q", ErrConfiguration, spec.CommitFinder.Kind)
	}
	inner, err := e.compilePattern(*spec.Finder)
	if err != nil {
		return nil, err
	}
	secondary, err := e.Open(filepath.Join(e.CloneDir, "subrepos", repoDirName(spec.Repository.URL)), *spec.Repository, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}
	return finder.SubRepoFinder{CommitFinder: commitFinder, Secondary: secondary, Inner: inner}, nil
}

// repoDirName derives a stable clone directory name from a repository URL.
func repoDirName(url string) string {
	name := strings.TrimSuffix(path.Base(strings.TrimSuffix(url, "/")), ".git")
	return strings.ToLower(name)
}

// computeLag fills in the six lag maps from the spec version timelines.
// Lag is only meaningful for spec versions; room versions are dated but not
// lagged.
func (e *Engine) computeLag(data *report.ProjectData, ref *refspec.Reference, dates vcs.ProjectDates) error {
	byCommit, err := timeline.ComputeLag(data.SpecVersionDatesByCommit, ref.SpecVersions, dates.InitialCommit, dates.InitialRelease)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	byTag, err := timeline.ComputeLag(data.SpecVersionDatesByTag, ref.SpecVersions, dates.InitialCommit, dates.InitialRelease)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	data.LagAllByCommit = byCommit.All
	data.LagAfterCommitByCommit = byCommit.AfterCommit
	data.LagAfterReleaseByCommit = byCommit.AfterRelease
	data.LagAllByTag = byTag.All
	data.LagAfterCommitByTag = byTag.AfterCommit
	data.LagAfterReleaseByTag = byTag.AfterRelease
	return nil
}
