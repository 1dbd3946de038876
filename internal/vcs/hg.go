package vcs

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// HgRepository adapts a Mercurial working directory by shelling out to the
// hg binary. Mercurial has no annotated tags, so a tag's datetime is the
// date of the changeset it names.
type HgRepository struct {
	dir         string
	tagDenylist []string
}

// NewHgRepository opens the clone at dir, cloning from remote when dir does
// not exist yet and pulling updates when it does. An empty remote opens the
// repository without touching the network.
func NewHgRepository(dir, remote string, tagDenylist []string) (*HgRepository, error) {
	r := &HgRepository{dir: dir, tagDenylist: tagDenylist}
	if _, err := os.Stat(filepath.Join(dir, ".hg")); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("vcs: stat %s: %w", dir, err)
		}
		if remote == "" {
			return nil, fmt.Errorf("vcs: open hg repository %s: %w", dir, ErrUnknownRef)
		}
		cmd := exec.Command("hg", "clone", remote, dir)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("vcs: hg clone %s: %s: %w", remote, strings.TrimSpace(stderr.String()), err)
		}
		return r, nil
	}
	if remote != "" {
		if _, err := r.run("pull"); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// run executes an hg command in the repository directory and returns its
// trimmed stdout.
func (r *HgRepository) run(args ...string) (string, error) {
	cmd := exec.Command("hg", args...)
	cmd.Dir = r.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("vcs: hg %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (r *HgRepository) Root() string {
	return r.dir
}

func (r *HgRepository) Checkout(ref string) error {
	_, err := r.run("update", "--clean", "--rev", ref)
	return err
}

func (r *HgRepository) Head(branch string) (Commit, error) {
	out, err := r.run("log", "--rev", branch, "--limit", "1", "--template", "{node}\t{date|hgdate}")
	if err != nil || out == "" {
		return Commit{}, fmt.Errorf("vcs: head of %q: %w", branch, ErrUnknownRef)
	}
	return parseHgCommit(out)
}

func (r *HgRepository) CommitsTouching(paths []string, from, branch string) ([]Commit, error) {
	includes, excludes := pathsSplit(paths)

	// Full ancestry of the branch with first parents, newest first.
	out, err := r.run("log", "--rev", fmt.Sprintf("reverse(ancestors(%s))", branch),
		"--template", "{node}\t{p1node}\t{date|hgdate}\n")
	if err != nil {
		return nil, err
	}
	type entry struct {
		commit Commit
		parent string
	}
	entries := map[string]entry{}
	var headID string
	for i, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("vcs: malformed hg log line %q", line)
		}
		commit, err := parseHgCommit(parts[0] + "\t" + parts[2])
		if err != nil {
			return nil, err
		}
		entries[commit.ID] = entry{commit: commit, parent: parts[1]}
		if i == 0 {
			headID = commit.ID
		}
	}
	if headID == "" {
		return nil, fmt.Errorf("vcs: head of %q: %w", branch, ErrUnknownRef)
	}

	// Revisions that touched the tracked paths, regardless of mainline.
	touchArgs := []string{"log", "--rev", fmt.Sprintf("ancestors(%s)", branch), "--template", "{node}\n"}
	for _, p := range includes {
		touchArgs = append(touchArgs, "--include", p)
	}
	for _, p := range excludes {
		touchArgs = append(touchArgs, "--exclude", p)
	}
	out, err = r.run(touchArgs...)
	if err != nil {
		return nil, err
	}
	touched := map[string]bool{}
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			touched[line] = true
		}
	}

	// Follow the first-parent chain from the head, collecting touching
	// commits until the exclusive bound.
	const hgNullID = "0000000000000000000000000000000000000000"
	var newestFirst []Commit
	for id := headID; ; {
		e, ok := entries[id]
		if !ok {
			break
		}
		if touched[id] {
			newestFirst = append(newestFirst, e.commit)
		}
		if from != "" && id == from {
			break
		}
		if e.parent == hgNullID || e.parent == "" {
			break
		}
		id = e.parent
	}

	commits := make([]Commit, 0, len(newestFirst)+1)
	for i := len(newestFirst) - 1; i >= 0; i-- {
		commits = append(commits, newestFirst[i])
	}
	if from != "" && (len(commits) == 0 || commits[0].ID != from) {
		e, ok := entries[from]
		if !ok {
			return nil, fmt.Errorf("vcs: earliest commit %q: %w", from, ErrUnknownRef)
		}
		commits = append([]Commit{e.commit}, commits...)
	}
	return commits, nil
}

func (r *HgRepository) IsAncestor(a, b string) (bool, error) {
	if a == b {
		return true, nil
	}
	out, err := r.run("log", "--rev", fmt.Sprintf("first(%s::%s)", a, b), "--template", "{node}")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func (r *HgRepository) TagDatetime(tag string) (time.Time, error) {
	out, err := r.run("log", "--rev", fmt.Sprintf("tag(%q)", tag), "--template", "{date|hgdate}")
	if err != nil || out == "" {
		return time.Time{}, fmt.Errorf("vcs: tag %q: %w", tag, ErrUnknownRef)
	}
	return parseHgDate(out)
}

func (r *HgRepository) TagContaining(commit string) (string, error) {
	out, err := r.run("log", "--rev", fmt.Sprintf("sort(descendants(%s) and tag(), date)", commit),
		"--template", "{tags}\n")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		for _, name := range strings.Fields(line) {
			if name == "tip" || matchesAny(name, r.tagDenylist) {
				continue
			}
			return name, nil
		}
	}
	return "", nil
}

func (r *HgRepository) SubmoduleCommit(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, ".hgsubstate"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("vcs: read .hgsubstate: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == path {
			return fields[0], nil
		}
	}
	return "", nil
}

func (r *HgRepository) ProjectDates(earliestCommit, earliestTag, branch string) (ProjectDates, error) {
	head, err := r.Head(branch)
	if err != nil {
		return ProjectDates{}, err
	}
	dates := ProjectDates{LastCommit: head.When}

	initialID := earliestCommit
	if earliestCommit != "" {
		initial, err := r.Head(earliestCommit)
		if err != nil {
			return ProjectDates{}, err
		}
		dates.InitialCommit = initial.When
		if out, err := r.run("log", "--rev", fmt.Sprintf("p1(%s)", earliestCommit),
			"--template", "{node}\t{date|hgdate}"); err == nil && out != "" {
			parent, err := parseHgCommit(out)
			if err != nil {
				return ProjectDates{}, err
			}
			forked := parent.When
			dates.Forked = &forked
		}
	} else {
		root, err := r.Head(fmt.Sprintf("first(ancestors(%s))", branch))
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

func (r *HgRepository) initialRelease(earliestTag, initialCommit string) (*time.Time, error) {
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
	out, err := r.run("log", "--rev", "first(sort(tag(), date))", "--template", "{date|hgdate}")
	if err != nil || out == "" {
		return nil, err
	}
	when, err := parseHgDate(out)
	if err != nil {
		return nil, err
	}
	return &when, nil
}

// parseHgCommit parses a "{node}\t{date|hgdate}" template line.
func parseHgCommit(line string) (Commit, error) {
	parts := strings.SplitN(line, "\t", 2)
	if len(parts) != 2 {
		return Commit{}, fmt.Errorf("vcs: malformed hg commit %q", line)
	}
	when, err := parseHgDate(parts[1])
	if err != nil {
		return Commit{}, err
	}
	return Commit{ID: parts[0], When: when}, nil
}

// parseHgDate parses hg's "unixtime offset" date format. The offset is in
// seconds west of UTC, the opposite sign convention from time.FixedZone.
func parseHgDate(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("vcs: malformed hg date %q", s)
	}
	secs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("vcs: malformed hg date %q: %w", s, err)
	}
	offset, err := strconv.Atoi(fields[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("vcs: malformed hg date %q: %w", s, err)
	}
	return time.Unix(secs, 0).In(time.FixedZone("", -offset)), nil
}
