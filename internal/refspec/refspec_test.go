package refspec

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/clokep/homeserver-spec-versions/internal/vcs"
)

func day(n int) time.Time {
	return time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func sig(n int) *object.Signature {
	return &object.Signature{Name: "Spec", Email: "spec@example.com", When: day(n)}
}

// specRepo builds a miniature spec repository spanning the pre- and
// post-migration layouts: one room version per layout, a moved default
// declaration, and two tag naming schemes.
func specRepo(t *testing.T) *vcs.GitRepository {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	write := func(path, content string) {
		t.Helper()
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add(path); err != nil {
			t.Fatal(err)
		}
	}
	commit := func(msg string, n int) plumbing.Hash {
		t.Helper()
		hash, err := wt.Commit(msg, &git.CommitOptions{Author: sig(n), Committer: sig(n)})
		if err != nil {
			t.Fatal(err)
		}
		return hash
	}
	tag := func(name string, target plumbing.Hash, n int) {
		t.Helper()
		if _, err := repo.CreateTag(name, target, &git.CreateTagOptions{Tagger: sig(n), Message: name}); err != nil {
			t.Fatal(err)
		}
	}

	write("specification/rooms/v1.rst", "room version 1\n")
	write("specification/index.rst", "Servers MUST have Room Version 1\n")
	c1 := commit("initial spec", 0)
	tag("r0.1.0", c1, 5)

	// Repository layout migration: the index moves and the default advances.
	if _, err := wt.Remove("specification/index.rst"); err != nil {
		t.Fatal(err)
	}
	write("content/rooms/v2.md", "room version 2\n")
	write("content/rooms/fragments/shared.md", "not a version\n")
	write("content/_index.md", "Servers SHOULD use **room version 2**\n")
	c2 := commit("migrate layout", 30)
	tag("client_server/r0.2.0", c2, 35)

	out, err := vcs.NewGitRepository(dir, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestCompute(t *testing.T) {
	t.Parallel()

	ref, err := Compute(specRepo(t), "master")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	t.Run("SpecVersions", func(t *testing.T) {
		if len(ref.SpecVersions) != 2 {
			t.Fatalf("SpecVersions = %v", ref.SpecVersions)
		}
		if !ref.SpecVersions["r0.1.0"].Equal(day(5)) {
			t.Errorf("r0.1.0 dated %v, want %v", ref.SpecVersions["r0.1.0"], day(5))
		}
		// The scheme prefix is stripped; only the version identifier remains.
		if !ref.SpecVersions["r0.2.0"].Equal(day(35)) {
			t.Errorf("r0.2.0 dated %v, want %v", ref.SpecVersions["r0.2.0"], day(35))
		}
	})

	t.Run("SpecVersionLag", func(t *testing.T) {
		if got := ref.SpecVersionLag["r0.1.0"]; got != 0 {
			t.Errorf("first release lag = %d, want 0", got)
		}
		if got := ref.SpecVersionLag["r0.2.0"]; got != 30 {
			t.Errorf("r0.2.0 lag = %d, want 30", got)
		}
	})

	t.Run("RoomVersions", func(t *testing.T) {
		if len(ref.RoomVersions) != 2 {
			t.Fatalf("RoomVersions = %v", ref.RoomVersions)
		}
		if !ref.RoomVersions["1"].Equal(day(0)) {
			t.Errorf("room version 1 dated %v", ref.RoomVersions["1"])
		}
		if !ref.RoomVersions["2"].Equal(day(30)) {
			t.Errorf("room version 2 dated %v", ref.RoomVersions["2"])
		}
	})

	t.Run("DefaultRoomVersions", func(t *testing.T) {
		if len(ref.DefaultRoomVersions) != 2 {
			t.Fatalf("DefaultRoomVersions = %v", ref.DefaultRoomVersions)
		}
		if !ref.DefaultRoomVersions["1"].Equal(day(0)) {
			t.Errorf("default 1 dated %v", ref.DefaultRoomVersions["1"])
		}
		if !ref.DefaultRoomVersions["2"].Equal(day(30)) {
			t.Errorf("default 2 dated %v", ref.DefaultRoomVersions["2"])
		}
	})
}
