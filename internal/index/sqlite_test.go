package index_test

import (
	"path/filepath"
	"testing"

	"github.com/skhoury/notereader/internal/index"
)

func openTestDB(t *testing.T) *index.DB {
	t.Helper()
	d, err := index.Open(filepath.Join(t.TempDir(), "headers.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { index.Close(d) })
	if err := index.Migrate(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func TestPutGetRoundTrip(t *testing.T) {
	d := openTestDB(t)

	row := index.Row{
		Path:        "/notebook/ab12.md",
		MTimeNS:     1700000000000000000,
		Size:        512,
		ItemID:      "ab12",
		ItemType:    1,
		Encrypted:   true,
		UpdatedTime: "2021-03-01T10:00:00.000Z",
	}
	if err := index.Put(d, row); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := index.Get(d, row.Path, row.MTimeNS, row.Size)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != row {
		t.Fatalf("got %+v, want %+v", got, row)
	}
}

func TestGetMissOnChangedFile(t *testing.T) {
	d := openTestDB(t)

	row := index.Row{Path: "/notebook/ab12.md", MTimeNS: 100, Size: 512, ItemID: "ab12", ItemType: 1}
	if err := index.Put(d, row); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, ok, err := index.Get(d, row.Path, 200, row.Size); err != nil || ok {
		t.Fatalf("changed mtime: ok=%v err=%v, want miss", ok, err)
	}
	if _, ok, err := index.Get(d, row.Path, row.MTimeNS, 1024); err != nil || ok {
		t.Fatalf("changed size: ok=%v err=%v, want miss", ok, err)
	}
	if _, ok, err := index.Get(d, "/notebook/other.md", 100, 512); err != nil || ok {
		t.Fatalf("unknown path: ok=%v err=%v, want miss", ok, err)
	}
}

func TestPutReplacesExisting(t *testing.T) {
	d := openTestDB(t)

	row := index.Row{Path: "/notebook/ab12.md", MTimeNS: 100, Size: 512, ItemID: "ab12", ItemType: 1}
	if err := index.Put(d, row); err != nil {
		t.Fatalf("put: %v", err)
	}
	row.MTimeNS = 200
	row.Encrypted = true
	if err := index.Put(d, row); err != nil {
		t.Fatalf("second put: %v", err)
	}

	got, ok, err := index.Get(d, row.Path, 200, row.Size)
	if err != nil || !ok {
		t.Fatalf("get after replace: ok=%v err=%v", ok, err)
	}
	if !got.Encrypted {
		t.Fatal("replacement did not stick")
	}
}

func TestPrune(t *testing.T) {
	d := openTestDB(t)

	for _, p := range []string{"/n/a.md", "/n/b.md", "/n/c.md"} {
		if err := index.Put(d, index.Row{Path: p, ItemID: "x", ItemType: 1}); err != nil {
			t.Fatalf("put %s: %v", p, err)
		}
	}
	if err := index.Prune(d, map[string]bool{"/n/b.md": true}); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, ok, _ := index.Get(d, "/n/a.md", 0, 0); ok {
		t.Fatal("pruned row still present")
	}
	if _, ok, _ := index.Get(d, "/n/b.md", 0, 0); !ok {
		t.Fatal("kept row was pruned")
	}
}
