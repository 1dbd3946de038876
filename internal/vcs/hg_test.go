package vcs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestParseHgDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "1600000000 0", want: time.Unix(1600000000, 0).UTC()},
		// Offset is seconds west of UTC: -7200 means UTC+2.
		{in: "1600000000 -7200", want: time.Unix(1600000000, 0).In(time.FixedZone("", 7200))},
		{in: "1600000000 18000", want: time.Unix(1600000000, 0).In(time.FixedZone("", -18000))},
		{in: "garbage", wantErr: true},
		{in: "1600000000", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseHgDate(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseHgDate(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHgDate(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseHgDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
		_, gotOffset := got.Zone()
		_, wantOffset := tt.want.Zone()
		if gotOffset != wantOffset {
			t.Errorf("parseHgDate(%q) offset = %d, want %d", tt.in, gotOffset, wantOffset)
		}
	}
}

func TestParseHgCommit(t *testing.T) {
	t.Parallel()

	c, err := parseHgCommit("abc123\t1600000000 0")
	if err != nil {
		t.Fatalf("parseHgCommit: %v", err)
	}
	if c.ID != "abc123" || !c.When.Equal(time.Unix(1600000000, 0)) {
		t.Errorf("commit = %+v", c)
	}

	if _, err := parseHgCommit("no-tab-here"); err == nil {
		t.Fatal("expected error for malformed line")
	}
}

// hgTestRepo drives a real hg binary; tests are skipped when it is absent.
type hgTestRepo struct {
	t   *testing.T
	dir string
}

func newHgTestRepo(t *testing.T) *hgTestRepo {
	t.Helper()
	if _, err := exec.LookPath("hg"); err != nil {
		t.Skip("hg not installed")
	}
	dir := t.TempDir()
	r := &hgTestRepo{t: t, dir: dir}
	r.hg("init")
	return r
}

func (r *hgTestRepo) hg(args ...string) {
	r.t.Helper()
	full := append([]string{"--config", "ui.username=test"}, args...)
	cmd := exec.Command("hg", full...)
	cmd.Dir = r.dir
	if out, err := cmd.CombinedOutput(); err != nil {
		r.t.Fatalf("hg %v: %v\n%s", args, err, out)
	}
}

func (r *hgTestRepo) write(path, content string) {
	r.t.Helper()
	full := filepath.Join(r.dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		r.t.Fatal(err)
	}
}

func (r *hgTestRepo) commit(msg string, unixtime int64) {
	r.t.Helper()
	r.hg("commit", "--addremove", "-m", msg, "--date", fmt.Sprintf("%d 0", unixtime))
}

func (r *hgTestRepo) open() *HgRepository {
	r.t.Helper()
	repo, err := NewHgRepository(r.dir, "", nil)
	if err != nil {
		r.t.Fatal(err)
	}
	return repo
}

func TestHgRepository(t *testing.T) {
	t.Parallel()

	base := int64(1600000000)
	hr := newHgTestRepo(t)
	hr.write("tracked.txt", "one\n")
	hr.commit("add tracked", base)
	hr.write("other.txt", "noise\n")
	hr.commit("unrelated", base+1000)
	hr.write("tracked.txt", "two\n")
	hr.commit("update tracked", base+2000)
	hr.hg("tag", "v1.0", "--date", fmt.Sprintf("%d 0", base+3000))

	repo := hr.open()

	t.Run("Head", func(t *testing.T) {
		// The tag commit itself is the newest changeset.
		head, err := repo.Head("default")
		if err != nil {
			t.Fatalf("Head: %v", err)
		}
		if !head.When.Equal(time.Unix(base+3000, 0)) {
			t.Errorf("head dated %v", head.When)
		}
	})

	t.Run("CommitsTouching", func(t *testing.T) {
		got, err := repo.CommitsTouching([]string{"tracked.txt"}, "", "default")
		if err != nil {
			t.Fatalf("CommitsTouching: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("commits = %v, want 2", ids(got))
		}
		if !got[0].When.Equal(time.Unix(base, 0)) || !got[1].When.Equal(time.Unix(base+2000, 0)) {
			t.Errorf("dates = %v, %v", got[0].When, got[1].When)
		}
	})

	t.Run("FromBoundIsReinserted", func(t *testing.T) {
		all, err := repo.CommitsTouching([]string{"tracked.txt", "other.txt"}, "", "default")
		if err != nil {
			t.Fatalf("CommitsTouching: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("commits = %v, want 3", ids(all))
		}
		noise := all[1].ID

		got, err := repo.CommitsTouching([]string{"tracked.txt"}, noise, "default")
		if err != nil {
			t.Fatalf("CommitsTouching: %v", err)
		}
		if len(got) != 2 || got[0].ID != noise {
			t.Errorf("commits = %v, want [%s <update>]", ids(got), noise)
		}
	})

	t.Run("IsAncestor", func(t *testing.T) {
		all, err := repo.CommitsTouching([]string{"tracked.txt"}, "", "default")
		if err != nil {
			t.Fatalf("CommitsTouching: %v", err)
		}
		ok, err := repo.IsAncestor(all[0].ID, all[1].ID)
		if err != nil {
			t.Fatalf("IsAncestor: %v", err)
		}
		if !ok {
			t.Error("first commit should be an ancestor of the last")
		}
		ok, err = repo.IsAncestor(all[1].ID, all[0].ID)
		if err != nil {
			t.Fatalf("IsAncestor: %v", err)
		}
		if ok {
			t.Error("last commit should not be an ancestor of the first")
		}
	})

	t.Run("TagDatetime", func(t *testing.T) {
		// A Mercurial tag is dated by the changeset it names, not the tag
		// commit.
		when, err := repo.TagDatetime("v1.0")
		if err != nil {
			t.Fatalf("TagDatetime: %v", err)
		}
		if !when.Equal(time.Unix(base+2000, 0)) {
			t.Errorf("tag dated %v, want %v", when, time.Unix(base+2000, 0))
		}
		if _, err := repo.TagDatetime("absent"); err == nil {
			t.Fatal("expected error for unknown tag")
		}
	})

	t.Run("TagContaining", func(t *testing.T) {
		all, err := repo.CommitsTouching([]string{"tracked.txt"}, "", "default")
		if err != nil {
			t.Fatalf("CommitsTouching: %v", err)
		}
		tag, err := repo.TagContaining(all[0].ID)
		if err != nil {
			t.Fatalf("TagContaining: %v", err)
		}
		if tag != "v1.0" {
			t.Errorf("TagContaining = %q, want v1.0", tag)
		}
	})

	t.Run("ProjectDates", func(t *testing.T) {
		dates, err := repo.ProjectDates("", "", "default")
		if err != nil {
			t.Fatalf("ProjectDates: %v", err)
		}
		if !dates.InitialCommit.Equal(time.Unix(base, 0)) {
			t.Errorf("InitialCommit = %v", dates.InitialCommit)
		}
		if dates.InitialRelease == nil || !dates.InitialRelease.Equal(time.Unix(base+2000, 0)) {
			t.Errorf("InitialRelease = %v", dates.InitialRelease)
		}
	})

	t.Run("SubmoduleCommit", func(t *testing.T) {
		hr.write(".hgsubstate", "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef sub/lib\n")
		got, err := repo.SubmoduleCommit("sub/lib")
		if err != nil {
			t.Fatalf("SubmoduleCommit: %v", err)
		}
		if got != "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef" {
			t.Errorf("SubmoduleCommit = %q", got)
		}
		got, err = repo.SubmoduleCommit("absent")
		if err != nil {
			t.Fatalf("SubmoduleCommit: %v", err)
		}
		if got != "" {
			t.Errorf("missing path resolved to %q", got)
		}
	})
}
