package artifact_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loom/internal/artifact"
)

func TestEnsureProjectLayoutCreatesSkeleton(t *testing.T) {
	dir := t.TempDir()
	store := artifact.New(dir)
	if err := store.EnsureProjectLayout(); err != nil {
		t.Fatalf("EnsureProjectLayout: %v", err)
	}
	for _, want := range []string{store.RawDir(), store.SplitsDir(), store.AudioDir()} {
		if info, err := os.Stat(want); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist", want)
		}
	}
}

func TestSplitPathsDeriveFileFromSplitID(t *testing.T) {
	store := artifact.New(t.TempDir())
	got := store.SilencesPath("episode-01_003")
	want := filepath.Join(store.FileDir("episode-01"), "episode-01_003_silences.json")
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestWriteJSONIsAtomicAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "splits", "ep", "ep_000_silences.json")

	type payload struct {
		Values []int `json:"values"`
	}
	in := payload{Values: []int{1, 2, 3}}
	if err := artifact.WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}

	var out payload
	if err := artifact.ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if len(out.Values) != 3 {
		t.Fatalf("unexpected round-tripped payload: %+v", out)
	}
}

func TestListRawFilesSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	store := artifact.New(dir)
	if err := store.EnsureProjectLayout(); err != nil {
		t.Fatalf("EnsureProjectLayout: %v", err)
	}
	if err := os.WriteFile(store.RawPath("episode-01"), []byte("raw"), 0o644); err != nil {
		t.Fatalf("write raw file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(store.RawDir(), "stray-dir"), 0o755); err != nil {
		t.Fatalf("mkdir stray dir: %v", err)
	}

	names, err := store.ListRawFiles()
	if err != nil {
		t.Fatalf("ListRawFiles: %v", err)
	}
	if len(names) != 1 || names[0] != "episode-01" {
		t.Fatalf("unexpected raw file list: %v", names)
	}
}

func TestListRawFilesMissingDirIsEmpty(t *testing.T) {
	store := artifact.New(t.TempDir())
	names, err := store.ListRawFiles()
	if err != nil {
		t.Fatalf("ListRawFiles: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no raw files, got %v", names)
	}
}

func TestListSplitIDsFindsSegmentsFiles(t *testing.T) {
	dir := t.TempDir()
	store := artifact.New(dir)
	if err := artifact.WriteJSON(store.SegmentsPath("episode-01_000"), []int{}); err != nil {
		t.Fatalf("write segments: %v", err)
	}
	if err := artifact.WriteJSON(store.SegmentsPath("episode-01_001"), []int{}); err != nil {
		t.Fatalf("write segments: %v", err)
	}
	if err := artifact.WriteJSON(store.SilencesPath("episode-01_001"), []int{}); err != nil {
		t.Fatalf("write silences: %v", err)
	}

	ids, err := store.ListSplitIDs("episode-01")
	if err != nil {
		t.Fatalf("ListSplitIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 split ids, got %v", ids)
	}
}

func TestNewerThanDetectsStaleOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.json")
	output := filepath.Join(dir, "out.json")

	if err := os.WriteFile(output, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}
	oldTime := time.Now().Add(-time.Hour)
	if err := os.Chtimes(output, oldTime, oldTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.WriteFile(input, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	fresh, err := artifact.NewerThan(output, input)
	if err != nil {
		t.Fatalf("NewerThan: %v", err)
	}
	if fresh {
		t.Fatal("expected output to be considered stale relative to newer input")
	}
}
