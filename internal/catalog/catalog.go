// Package catalog holds the project configuration the engine consumes: the
// server metadata published on matrix.org, the per-project mining
// configuration (branch, finder specifications, history overrides), and
// manually supplied data for projects without a minable repository. The
// engine itself never hard-codes any project-specific path, pattern, or
// ignore list; everything lives here as injected data.
package catalog

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/clokep/homeserver-spec-versions/internal/report"
)

// ServerMetadataURL is where the ecosystem server list is published.
const ServerMetadataURL = "https://raw.githubusercontent.com/matrix-org/matrix.org/main/content/ecosystem/servers/servers.toml"

// RepositoryType selects the version-control backend.
type RepositoryType string

const (
	RepoGit RepositoryType = "git"
	RepoHg  RepositoryType = "hg"
)

// ProxyType records how a repository's remote is reached. Anything other
// than ProxyNone needs a tunnel configured at deployment time.
type ProxyType string

const (
	ProxyNone      ProxyType = "none"
	ProxyYggdrasil ProxyType = "yggdrasil"
)

// RepositoryMeta describes where and how to fetch a repository.
type RepositoryMeta struct {
	URL   string         `toml:"url"`
	Type  RepositoryType `toml:"type"`
	Proxy ProxyType      `toml:"proxy"`
}

// ServerMeta is one entry of the published servers.toml.
type ServerMeta struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Author      string `toml:"author"`
	Maturity    string `toml:"maturity"`
	Language    string `toml:"language"`
	Licence     string `toml:"licence"`
	Repository  string `toml:"repository"`
	Room        string `toml:"room"`
}

// FinderKind discriminates FinderSpec variants.
type FinderKind string

const (
	FinderPattern   FinderKind = "pattern"
	FinderSubModule FinderKind = "submodule"
	FinderSubRepo   FinderKind = "subrepo"
)

// FinderSpec is the data form of a finder. The engine compiles specs into
// runtime finders, opening secondary repositories as needed.
type FinderSpec struct {
	Kind FinderKind `toml:"kind"`

	// Pattern finder fields.
	Paths   []string `toml:"paths"`
	Pattern string   `toml:"pattern"`
	Parser  string   `toml:"parser"`
	Ignore  []string `toml:"ignore"`

	// Submodule finder field.
	Path string `toml:"path"`

	// SubRepo finder fields.
	Repository   *RepositoryMeta `toml:"repository"`
	CommitFinder *FinderSpec     `toml:"commit_finder"`
	Finder       *FinderSpec     `toml:"finder"`
}

// AdditionalMeta is the mining configuration for one project, keyed by the
// lowercased project name.
type AdditionalMeta struct {
	// Branch carrying the latest development history.
	Branch string `toml:"branch"`

	// SpecVersionPaths are the files that ever declared supported spec
	// versions. Empty when the project never implemented any.
	SpecVersionPaths []string `toml:"spec_version_paths"`

	// SpecVersionIgnore drops known-bad self-declarations (versions that
	// never existed, test placeholders).
	SpecVersionIgnore []string `toml:"spec_version_ignore"`

	// RoomVersionFinders and DefaultRoomVersionFinders locate supported
	// room versions and the default room version. Empty when never
	// implemented.
	RoomVersionFinders        []FinderSpec `toml:"room_version_finders"`
	DefaultRoomVersionFinders []FinderSpec `toml:"default_room_version_finders"`

	// EarliestCommit bounds history for forks whose repository carries the
	// parent project's commits. EarliestTag overrides release detection
	// when older tags exist for similar reasons.
	EarliestCommit string `toml:"earliest_commit"`
	EarliestTag    string `toml:"earliest_tag"`

	// TagDenylist lists tag name prefixes that are not releases.
	TagDenylist []string `toml:"tag_denylist"`

	// ForkedFrom names the upstream project, if any.
	ForkedFrom string `toml:"forked_from"`

	// ProcessUpdates is false for projects whose history should be reused
	// from the previous run instead of re-walked.
	ProcessUpdates bool `toml:"process_updates"`

	// Repo overrides the repository derived from servers.toml; required for
	// projects absent from the published list.
	Repo *RepositoryMeta `toml:"repo"`
}

// Project is the merged configuration the engine evaluates.
type Project struct {
	ServerMeta
	AdditionalMeta
	Repo RepositoryMeta
}

// Key is the project's catalog key (lowercased name).
func (p Project) Key() string {
	return strings.ToLower(p.Name)
}

// Catalog is everything a run operates on.
type Catalog struct {
	Projects []Project

	// Manual holds report data supplied verbatim for projects that cannot
	// be mined (proprietary servers, deleted repositories).
	Manual map[string]*report.ProjectData
}

// LoadServers parses a servers.toml document.
func LoadServers(r io.Reader) ([]ServerMeta, error) {
	var doc struct {
		Servers []ServerMeta `toml:"servers"`
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("catalog: read server metadata: %w", err)
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse server metadata: %w", err)
	}
	return doc.Servers, nil
}

// FetchServers downloads and parses the published server list.
func FetchServers(url string) ([]ServerMeta, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch server metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: fetch server metadata: unexpected status %s", resp.Status)
	}
	return LoadServers(resp.Body)
}

// Merge combines the published server list with mining configuration.
// Servers without configuration are skipped (nothing can be mined without a
// branch), as are entries in invalid (projects that are not actually
// homeservers). Configuration entries absent from the server list become
// projects of their own when they carry their own repository metadata.
func Merge(servers []ServerMeta, additional map[string]AdditionalMeta, invalid map[string]bool) []Project {
	projects := make([]Project, 0, len(additional))
	seen := map[string]bool{}
	for _, s := range servers {
		key := strings.ToLower(s.Name)
		if invalid[key] {
			continue
		}
		meta, ok := additional[key]
		if !ok {
			continue
		}
		seen[key] = true
		projects = append(projects, Project{
			ServerMeta:     s,
			AdditionalMeta: meta,
			Repo:           resolveRepo(s.Repository, meta.Repo),
		})
	}
	for key, meta := range additional {
		if seen[key] || invalid[key] || meta.Repo == nil {
			continue
		}
		projects = append(projects, Project{
			ServerMeta:     ServerMeta{Name: key},
			AdditionalMeta: meta,
			Repo:           *withDefaults(meta.Repo),
		})
	}
	return projects
}

func resolveRepo(url string, override *RepositoryMeta) RepositoryMeta {
	if override != nil {
		return *withDefaults(override)
	}
	return RepositoryMeta{URL: url, Type: RepoGit, Proxy: ProxyNone}
}

func withDefaults(r *RepositoryMeta) *RepositoryMeta {
	resolved := *r
	if resolved.Type == "" {
		resolved.Type = RepoGit
	}
	if resolved.Proxy == "" {
		resolved.Proxy = ProxyNone
	}
	return &resolved
}
