package vcs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// pullRefspec fetches pull request heads. Some sub-repository pins target
// commits that only exist as pull requests of the upstream repository.
const pullRefspec = "+refs/pull/*:refs/remotes/origin/pull/*"

// GitRepository adapts a local git clone. One instance owns one working
// tree; see the package comment for the ordering contract.
type GitRepository struct {
	dir         string
	repo        *git.Repository
	tagDenylist []string
}

// NewGitRepository opens the clone at dir, creating it from remote when the
// directory does not hold a repository yet and fetching updates when it
// does. An empty remote opens an existing repository without touching the
// network. tagDenylist lists tag name prefixes that are never considered
// release tags (CI and helper tags).
func NewGitRepository(dir, remote string, tagDenylist []string) (*GitRepository, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) && remote != "" {
		repo, err = git.PlainClone(dir, false, &git.CloneOptions{URL: remote, Tags: git.AllTags})
	}
	if err != nil {
		return nil, fmt.Errorf("vcs: open git repository %s: %w", dir, err)
	}

	r := &GitRepository{dir: dir, repo: repo, tagDenylist: tagDenylist}
	if remote != "" {
		if err := r.fetch(remote); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *GitRepository) fetch(remote string) error {
	added, err := r.ensurePullRefspec(remote)
	if err != nil {
		return err
	}
	err = r.repo.Fetch(&git.FetchOptions{Tags: git.AllTags, Force: true})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("vcs: fetch %s: %w", remote, err)
	}
	// The refspec was just added, so the pull refs are not local yet.
	if added {
		err = r.repo.Fetch(&git.FetchOptions{Tags: git.AllTags, Force: true})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("vcs: fetch pull refs %s: %w", remote, err)
		}
	}
	return nil
}

// ensurePullRefspec adds the pull request refspec to origin for GitHub
// remotes. Reports whether the refspec was newly added.
func (r *GitRepository) ensurePullRefspec(remote string) (bool, error) {
	if !strings.Contains(remote, "github.com") {
		return false, nil
	}
	cfg, err := r.repo.Config()
	if err != nil {
		return false, fmt.Errorf("vcs: read git config: %w", err)
	}
	origin, ok := cfg.Remotes["origin"]
	if !ok || len(origin.Fetch) >= 2 {
		return false, nil
	}
	origin.Fetch = append(origin.Fetch, gitconfig.RefSpec(pullRefspec))
	if err := r.repo.Storer.SetConfig(cfg); err != nil {
		return false, fmt.Errorf("vcs: write git config: %w", err)
	}
	return true, nil
}

func (r *GitRepository) Root() string {
	return r.dir
}

// resolve turns a ref (hash, tag, branch, or remote branch) into a hash.
func (r *GitRepository) resolve(ref string) (plumbing.Hash, error) {
	if plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}
	for _, candidate := range []string{"refs/remotes/origin/" + ref, ref} {
		h, err := r.repo.ResolveRevision(plumbing.Revision(candidate))
		if err == nil {
			return *h, nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("vcs: resolve %q: %w", ref, ErrUnknownRef)
}

func (r *GitRepository) Checkout(ref string) error {
	hash, err := r.resolve(ref)
	if err != nil {
		return err
	}
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("vcs: open worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return fmt.Errorf("vcs: checkout %s: %w", ref, err)
	}
	return nil
}

func (r *GitRepository) Head(branch string) (Commit, error) {
	hash, err := r.resolve(branch)
	if err != nil {
		return Commit{}, err
	}
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("vcs: load head of %s: %w", branch, err)
	}
	return toCommit(commit), nil
}

func (r *GitRepository) CommitsTouching(paths []string, from, branch string) ([]Commit, error) {
	includes, excludes := pathsSplit(paths)

	head, err := r.resolve(branch)
	if err != nil {
		return nil, err
	}
	commit, err := r.repo.CommitObject(head)
	if err != nil {
		return nil, fmt.Errorf("vcs: load head of %s: %w", branch, err)
	}

	// Walk the first-parent edge only. A change merged from a side branch is
	// dated by its merge commit, which is when it actually landed on the
	// tracked branch.
	var newestFirst []Commit
	for {
		var parent *object.Commit
		if commit.NumParents() > 0 {
			parent, err = commit.Parent(0)
			if err != nil {
				return nil, fmt.Errorf("vcs: load parent of %s: %w", commit.Hash, err)
			}
		}
		touched, err := r.touches(commit, parent, includes, excludes)
		if err != nil {
			return nil, err
		}
		if touched {
			newestFirst = append(newestFirst, toCommit(commit))
		}
		if from != "" && commit.Hash.String() == from {
			break
		}
		if parent == nil {
			break
		}
		commit = parent
	}

	commits := make([]Commit, 0, len(newestFirst)+1)
	for i := len(newestFirst) - 1; i >= 0; i-- {
		commits = append(commits, newestFirst[i])
	}

	// The exclusive bound is always the first element so that snapshot
	// evaluation starts from a known state, even when the bound commit did
	// not itself touch the tracked paths.
	if from != "" && (len(commits) == 0 || commits[0].ID != from) {
		bound, err := r.repo.CommitObject(plumbing.NewHash(from))
		if err != nil {
			return nil, fmt.Errorf("vcs: load earliest commit %s: %w", from, err)
		}
		commits = append([]Commit{toCommit(bound)}, commits...)
	}
	return commits, nil
}

// touches reports whether commit changed any of includes relative to its
// first parent, ignoring changes under excludes.
func (r *GitRepository) touches(commit, parent *object.Commit, includes, excludes []string) (bool, error) {
	if len(includes) == 0 {
		return false, nil
	}
	tree, err := commit.Tree()
	if err != nil {
		return false, fmt.Errorf("vcs: load tree of %s: %w", commit.Hash, err)
	}
	var parentTree *object.Tree
	if parent != nil {
		parentTree, err = parent.Tree()
		if err != nil {
			return false, fmt.Errorf("vcs: load tree of %s: %w", parent.Hash, err)
		}
	}

	if len(excludes) == 0 {
		// Cheap path: compare the object hash at each tracked path.
		for _, p := range includes {
			if entryHash(tree, p) != entryHash(parentTree, p) {
				return true, nil
			}
		}
		return false, nil
	}

	// Excludes require looking at individual changed files.
	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return false, fmt.Errorf("vcs: diff %s: %w", commit.Hash, err)
	}
	for _, change := range changes {
		for _, name := range []string{change.From.Name, change.To.Name} {
			if name == "" {
				continue
			}
			if underAny(name, includes) && !underAny(name, excludes) {
				return true, nil
			}
		}
	}
	return false, nil
}

// entryHash returns the object hash at path within tree, or the zero hash
// when the path (or the tree itself) does not exist.
func entryHash(tree *object.Tree, path string) plumbing.Hash {
	if tree == nil {
		return plumbing.ZeroHash
	}
	entry, err := tree.FindEntry(strings.TrimSuffix(path, "/"))
	if err != nil {
		return plumbing.ZeroHash
	}
	return entry.Hash
}

// underAny reports whether path equals one of the prefixes or sits inside
// one of them (prefixes denote directories when they end with "/" or when
// the path extends past them).
func underAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		trimmed := strings.TrimSuffix(prefix, "/")
		if path == trimmed || strings.HasPrefix(path, trimmed+"/") {
			return true
		}
	}
	return false
}

func (r *GitRepository) IsAncestor(a, b string) (bool, error) {
	if a == b {
		return true, nil
	}
	ancestor, err := r.repo.CommitObject(plumbing.NewHash(a))
	if err != nil {
		return false, fmt.Errorf("vcs: load commit %s: %w", a, err)
	}
	descendant, err := r.repo.CommitObject(plumbing.NewHash(b))
	if err != nil {
		return false, fmt.Errorf("vcs: load commit %s: %w", b, err)
	}
	ok, err := ancestor.IsAncestor(descendant)
	if err != nil {
		return false, fmt.Errorf("vcs: ancestry %s..%s: %w", a, b, err)
	}
	return ok, nil
}

// tagInfo is one tag with its creation date and target commit.
type tagInfo struct {
	name    string
	created time.Time
	target  plumbing.Hash
}

// tags lists all tags not matched by the denylist.
func (r *GitRepository) tags() ([]tagInfo, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("vcs: list tags: %w", err)
	}
	defer iter.Close()

	var infos []tagInfo
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if matchesAny(name, r.tagDenylist) {
			return nil
		}
		created, target, err := r.tagDate(ref.Hash())
		if err != nil {
			return err
		}
		infos = append(infos, tagInfo{name: name, created: created, target: target})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// tagDate resolves a tag ref hash to its creation date and target commit.
// Annotated tags carry their own tagged date; lightweight tags fall back to
// the commit's committer date.
func (r *GitRepository) tagDate(hash plumbing.Hash) (time.Time, plumbing.Hash, error) {
	if tag, err := r.repo.TagObject(hash); err == nil {
		return tag.Tagger.When, tag.Target, nil
	}
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return time.Time{}, plumbing.ZeroHash, fmt.Errorf("vcs: resolve tag object %s: %w", hash, err)
	}
	return commit.Committer.When, commit.Hash, nil
}

func (r *GitRepository) TagDatetime(tag string) (time.Time, error) {
	ref, err := r.repo.Tag(tag)
	if err != nil {
		return time.Time{}, fmt.Errorf("vcs: tag %q: %w", tag, ErrUnknownRef)
	}
	when, _, err := r.tagDate(ref.Hash())
	return when, err
}

func (r *GitRepository) TagContaining(commit string) (string, error) {
	base, err := r.repo.CommitObject(plumbing.NewHash(commit))
	if err != nil {
		return "", fmt.Errorf("vcs: load commit %s: %w", commit, err)
	}
	infos, err := r.tags()
	if err != nil {
		return "", err
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].created.Equal(infos[j].created) {
			return infos[i].created.Before(infos[j].created)
		}
		return infos[i].name < infos[j].name
	})
	for _, info := range infos {
		target, err := r.repo.CommitObject(info.target)
		if err != nil {
			return "", fmt.Errorf("vcs: load tag target %s: %w", info.target, err)
		}
		if target.Hash == base.Hash {
			return info.name, nil
		}
		ok, err := base.IsAncestor(target)
		if err != nil {
			return "", fmt.Errorf("vcs: ancestry for tag %s: %w", info.name, err)
		}
		if ok {
			return info.name, nil
		}
	}
	return "", nil
}

func (r *GitRepository) SubmoduleCommit(path string) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("vcs: resolve HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("vcs: load HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("vcs: load HEAD tree: %w", err)
	}
	entry, err := tree.FindEntry(strings.TrimSuffix(path, "/"))
	if err != nil {
		return "", nil
	}
	if entry.Mode != filemode.Submodule {
		return "", nil
	}
	return entry.Hash.String(), nil
}

func (r *GitRepository) ProjectDates(earliestCommit, earliestTag, branch string) (ProjectDates, error) {
	head, err := r.Head(branch)
	if err != nil {
		return ProjectDates{}, err
	}
	dates := ProjectDates{LastCommit: head.When}

	initialID := earliestCommit
	if earliestCommit != "" {
		commit, err := r.repo.CommitObject(plumbing.NewHash(earliestCommit))
		if err != nil {
			return ProjectDates{}, fmt.Errorf("vcs: load earliest commit %s: %w", earliestCommit, err)
		}
		dates.InitialCommit = commit.Committer.When
		if commit.NumParents() > 0 {
			parent, err := commit.Parent(0)
			if err != nil {
				return ProjectDates{}, fmt.Errorf("vcs: load parent of %s: %w", earliestCommit, err)
			}
			forked := parent.Committer.When
			dates.Forked = &forked
		}
	} else {
		root, err := r.mainlineRoot(head.ID)
		if err != nil {
			return ProjectDates{}, err
		}
		dates.InitialCommit = root.When
		initialID = root.ID
	}

	release, err := r.initialRelease(earliestTag, initialID)
	if err != nil {
		return ProjectDates{}, err
	}
	dates.InitialRelease = release
	return dates, nil
}

// mainlineRoot walks first-parent edges from id down to the root commit.
func (r *GitRepository) mainlineRoot(id string) (Commit, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(id))
	if err != nil {
		return Commit{}, fmt.Errorf("vcs: load commit %s: %w", id, err)
	}
	for commit.NumParents() > 0 {
		commit, err = commit.Parent(0)
		if err != nil {
			return Commit{}, fmt.Errorf("vcs: load parent: %w", err)
		}
	}
	return toCommit(commit), nil
}

// initialRelease finds the date of the project's first release: the
// configured earliest tag if any, otherwise the first tag reaching the
// initial commit, otherwise the earliest tag in the repository.
func (r *GitRepository) initialRelease(earliestTag, initialCommit string) (*time.Time, error) {
	if earliestTag != "" {
		when, err := r.TagDatetime(earliestTag)
		if err != nil {
			return nil, err
		}
		return &when, nil
	}
	if initialCommit != "" {
		tag, err := r.TagContaining(initialCommit)
		if err != nil {
			return nil, err
		}
		if tag != "" {
			when, err := r.TagDatetime(tag)
			if err != nil {
				return nil, err
			}
			return &when, nil
		}
	}
	infos, err := r.tags()
	if err != nil || len(infos) == 0 {
		return nil, err
	}
	earliest := infos[0]
	for _, info := range infos[1:] {
		if info.created.Before(earliest.created) {
			earliest = info
		}
	}
	return &earliest.created, nil
}

// Tag is a named tag with its creation date.
type Tag struct {
	Name string
	When time.Time
}

// Tags lists the repository's tags (minus the denylist) with their creation
// dates, in no particular order.
func (r *GitRepository) Tags() ([]Tag, error) {
	infos, err := r.tags()
	if err != nil {
		return nil, err
	}
	out := make([]Tag, 0, len(infos))
	for _, info := range infos {
		out = append(out, Tag{Name: info.name, When: info.created})
	}
	return out, nil
}

// FileAddition records a file first appearing in a commit.
type FileAddition struct {
	Path   string
	Commit Commit
}

// FilesAdded returns the files added under paths on branch's mainline,
// oldest first. A file deleted and re-added appears once per addition.
func (r *GitRepository) FilesAdded(paths []string, branch string) ([]FileAddition, error) {
	includes, excludes := pathsSplit(paths)
	commits, err := r.CommitsTouching(paths, "", branch)
	if err != nil {
		return nil, err
	}

	var additions []FileAddition
	for _, c := range commits {
		commit, err := r.repo.CommitObject(plumbing.NewHash(c.ID))
		if err != nil {
			return nil, fmt.Errorf("vcs: load commit %s: %w", c.ID, err)
		}
		tree, err := commit.Tree()
		if err != nil {
			return nil, fmt.Errorf("vcs: load tree of %s: %w", c.ID, err)
		}
		var parentTree *object.Tree
		if commit.NumParents() > 0 {
			parent, err := commit.Parent(0)
			if err != nil {
				return nil, fmt.Errorf("vcs: load parent of %s: %w", c.ID, err)
			}
			parentTree, err = parent.Tree()
			if err != nil {
				return nil, fmt.Errorf("vcs: load parent tree of %s: %w", c.ID, err)
			}
		}
		changes, err := object.DiffTree(parentTree, tree)
		if err != nil {
			return nil, fmt.Errorf("vcs: diff %s: %w", c.ID, err)
		}
		for _, change := range changes {
			action, err := change.Action()
			if err != nil {
				return nil, fmt.Errorf("vcs: diff action in %s: %w", c.ID, err)
			}
			if action != merkletrie.Insert {
				continue
			}
			name := change.To.Name
			if underAny(name, includes) && !underAny(name, excludes) {
				additions = append(additions, FileAddition{Path: name, Commit: c})
			}
		}
	}
	return additions, nil
}

func toCommit(c *object.Commit) Commit {
	return Commit{ID: c.Hash.String(), When: c.Committer.When}
}
