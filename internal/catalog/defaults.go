package catalog

import "github.com/clokep/homeserver-spec-versions/internal/report"

// specVersionPattern extracts quoted spec version identifiers ("v1.2",
// "r0.6.1"). Both quote styles get their own capture group since RE2 has no
// backreferences; the fields parser splits space-separated declarations.
const specVersionPattern = `"\s?([vr]\d[^"]*)"|'\s?([vr]\d[^']*)'`

// SpecVersionFinder builds the finder for a project's declared spec
// versions.
func SpecVersionFinder(paths, ignore []string) FinderSpec {
	return FinderSpec{
		Kind:    FinderPattern,
		Paths:   paths,
		Pattern: specVersionPattern,
		Parser:  "fields",
		Ignore:  ignore,
	}
}

// InvalidProjects are server list entries that are not homeservers.
var InvalidProjects = map[string]bool{
	// Dendron is essentially a reverse proxy, not a homeserver.
	"dendron": true,
}

// gomatrixserverlib locates room version support inside Dendrite-family
// servers' protocol library, pinned through go.mod.
var gomatrixserverlib = FinderSpec{
	Kind:       FinderSubRepo,
	Repository: &RepositoryMeta{URL: "https://github.com/matrix-org/gomatrixserverlib"},
	CommitFinder: &FinderSpec{
		Kind:    FinderPattern,
		Paths:   []string{"go.mod"},
		Pattern: `github.com/matrix-org/gomatrixserverlib v0.0.0-\d+-([0-9a-f]+)`,
	},
	Finder: &FinderSpec{
		Kind:    FinderPattern,
		Paths:   []string{"eventversion.go"},
		Pattern: `RoomVersionV(\d+)`,
	},
}

// DefaultAdditionalMeta is the built-in mining configuration, keyed by
// lowercased project name. Entries reflect where each project declared its
// supported versions across its whole history, including historical file
// locations.
var DefaultAdditionalMeta = map[string]AdditionalMeta{
	"synapse": {
		Branch:           "develop",
		SpecVersionPaths: []string{"synapse/rest/client/versions.py"},
		RoomVersionFinders: []FinderSpec{{
			Kind:    FinderPattern,
			Paths:   []string{"synapse/api/constants.py", "synapse/api/room_versions.py"},
			Pattern: `RoomVersions.V(\d+)`,
		}},
		DefaultRoomVersionFinders: []FinderSpec{{
			Kind:    FinderPattern,
			Paths:   []string{"synapse/api/constants.py", "synapse/api/room_versions.py", "synapse/config/server.py"},
			Pattern: `(?:DEFAULT_ROOM_VERSION = RoomVersions.V|DEFAULT_ROOM_VERSION = "|"default_room_version", ")(\d+)`,
		}},
		// First AGPL-licensed commit; earlier commits and tags belong to
		// Apache-licensed Synapse.
		EarliestCommit: "230decd5b8deea78674f92b2c0c11bd41090470a",
		ForkedFrom:     "synapse-legacy",
		ProcessUpdates: true,
	},
	"dendrite": {
		Branch: "main",
		SpecVersionPaths: []string{
			"src/github.com/matrix-org/dendrite/clientapi/routing/routing.go",
			"clientapi/routing/routing.go",
		},
		// v33333 lives in a comment-adjacent test value and v1.0 was
		// declared but never existed.
		SpecVersionIgnore: []string{"v33333", "v1.0"},
		RoomVersionFinders: []FinderSpec{
			{
				Kind:    FinderPattern,
				Paths:   []string{"roomserver/version/version.go"},
				Pattern: `RoomVersionV(\d+)`,
			},
			gomatrixserverlib,
		},
		DefaultRoomVersionFinders: []FinderSpec{{
			Kind:    FinderPattern,
			Paths:   []string{"roomserver/version/version.go", "setup/config/config_roomserver.go"},
			Pattern: `return gomatrixserverlib.RoomVersionV(\d+)|DefaultRoomVersion = gomatrixserverlib.RoomVersionV(\d+)`,
			// Dendrite declared room version 2 as a default, but that was
			// invalid.
			Ignore: []string{"2"},
		}},
		EarliestCommit: "6d1087df8dbd7982e7c7ad2f16b17588562c4048",
		TagDenylist:    []string{"helm-dendrite-"},
		ForkedFrom:     "dendrite-legacy",
		ProcessUpdates: true,
	},
	"conduit": {
		Branch: "next",
		SpecVersionPaths: []string{
			"src/client_server.rs",
			"src/main.rs",
			"src/client_server/unversioned.rs",
			"src/api/client_server/unversioned.rs",
		},
		RoomVersionFinders: []FinderSpec{{
			Kind: FinderPattern,
			Paths: []string{
				"src/client_server.rs",
				"src/client_server/capabilities.rs",
				"src/database/globals.rs",
				"src/server_server.rs",
				"src/service/globals/mod.rs",
			},
			Pattern: `"(\d+)".to_owned\(\)|RoomVersionId::V(?:ersion)?(\d+)(?:,|])`,
		}},
		DefaultRoomVersionFinders: []FinderSpec{{
			Kind: FinderPattern,
			Paths: []string{
				"src/client_server.rs",
				"src/client_server/capabilities.rs",
				"src/database/globals.rs",
				"src/server_server.rs",
				"src/config/mod.rs",
			},
			Pattern: `default: "(\d+)"|default: RoomVersionId::V(?:ersion)?(\d+),|default_room_version = RoomVersionId::V(?:ersion)?(\d+);|^ +RoomVersionId::V(?:ersion)?(\d+)$`,
		}},
		ProcessUpdates: true,
	},
	"construct": {
		Branch:            "master",
		SpecVersionPaths:  []string{"ircd/json.cc", "modules/client/versions.cc"},
		SpecVersionIgnore: []string{"r2.0.0"},
		RoomVersionFinders: []FinderSpec{{
			Kind:    FinderPattern,
			Paths:   []string{"modules/client/capabilities.cc"},
			Pattern: `"(\d+)"`,
		}},
		DefaultRoomVersionFinders: []FinderSpec{{
			Kind:    FinderPattern,
			Paths:   []string{"modules/m_room_create.cc", "modules/client/createroom.cc", "matrix/room_create.cc"},
			Pattern: `(?:"default",|"room_version", json::value {) +"(\d+)`,
		}},
		// Earlier commits and tags are from charybdis.
		EarliestCommit: "b592b69b8670413340c297e5a41caf153d832e57",
		ProcessUpdates: true,
	},
	"radio_beam": {
		Branch:           "main",
		SpecVersionPaths: []string{"config/config.exs"},
		RoomVersionFinders: []FinderSpec{{
			Kind:    FinderPattern,
			Paths:   []string{"config/config.exs"},
			Pattern: `Map\.new\((\d+\.\.\d+),|"(\d+)" => "stable"`,
			Parser:  "elixir_range",
		}},
		DefaultRoomVersionFinders: []FinderSpec{{
			Kind:    FinderPattern,
			Paths:   []string{"config/config.exs"},
			Pattern: `default: "(\d+)"`,
		}},
		Repo:           &RepositoryMeta{URL: "https://github.com/Bentheburrito/radio_beam"},
		ProcessUpdates: true,
	},
	"hghs": {
		Branch: "main",
		RoomVersionFinders: []FinderSpec{{
			Kind:         FinderSubRepo,
			Repository:   &RepositoryMeta{URL: "https://github.com/heusalagroup/fi.hg.matrix"},
			CommitFinder: &FinderSpec{Kind: FinderSubModule, Path: "src/fi/hg/matrix"},
			Finder: &FinderSpec{
				Kind:    FinderPattern,
				Paths:   []string{"types/MatrixRoomVersion.ts"},
				Pattern: `MatrixRoomVersion\.V(\d+)`,
			},
		}},
		DefaultRoomVersionFinders: []FinderSpec{{
			Kind:         FinderSubRepo,
			Repository:   &RepositoryMeta{URL: "https://github.com/heusalagroup/fi.hg.matrix"},
			CommitFinder: &FinderSpec{Kind: FinderSubModule, Path: "src/fi/hg/matrix"},
			Finder: &FinderSpec{
				Kind:    FinderPattern,
				Paths:   []string{"server/MatrixServerService.ts"},
				Pattern: `defaultRoomVersion : MatrixRoomVersion = MatrixRoomVersion\.V(\d+)`,
			},
		}},
		Repo:           &RepositoryMeta{URL: "https://github.com/heusalagroup/hghs"},
		ProcessUpdates: true,
	},
	"vona": {
		Branch:           "default",
		SpecVersionPaths: []string{"src/c2s.py"},
		RoomVersionFinders: []FinderSpec{{
			Kind:    FinderPattern,
			Paths:   []string{"src/c2s.py"},
			Pattern: `"(\d+)":"stable"`,
			Ignore:  []string{"1337"},
		}},
		DefaultRoomVersionFinders: []FinderSpec{{
			Kind:    FinderPattern,
			Paths:   []string{"src/c2s.py"},
			Pattern: `"default":"(\d+)"`,
			Ignore:  []string{"1337"},
		}},
		Repo: &RepositoryMeta{
			URL:   "http://[302:a6cd:5030:bb11::3000]/matrix/vona/",
			Type:  RepoHg,
			Proxy: ProxyYggdrasil,
		},
		ProcessUpdates: true,
	},
}

// ManualProjects holds data dumped verbatim into the report for projects
// without minable repositories. Populated per deployment.
var ManualProjects = map[string]*report.ProjectData{}

// Default assembles the built-in catalog from a parsed server list.
func Default(servers []ServerMeta) Catalog {
	return Catalog{
		Projects: Merge(servers, DefaultAdditionalMeta, InvalidProjects),
		Manual:   ManualProjects,
	}
}
