package logs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func touch(t *testing.T, path string, when time.Time) {
	t.Helper()
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatal(err)
	}
}

func TestFilesSinceSkipsColdSubtrees(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now().Add(-1 * time.Hour)

	oldFile := writeLog(t, root, "idle-project/a.jsonl", "{}\n")
	freshFile := writeLog(t, root, "active-project/b.jsonl", "{}\n")
	staleInFresh := writeLog(t, root, "active-project/c.jsonl", "{}\n")

	touch(t, oldFile, old)
	touch(t, filepath.Dir(oldFile), old)
	touch(t, freshFile, fresh)
	touch(t, staleInFresh, old)
	touch(t, filepath.Dir(freshFile), fresh)

	since := time.Now().Add(-2 * time.Hour)
	files := NewScanner(root).FilesSince(since)

	if len(files) != 1 || files[0] != freshFile {
		t.Fatalf("files = %v, want only %s", files, freshFile)
	}
}

func TestFilesSinceZeroReturnsEverything(t *testing.T) {
	root := t.TempDir()
	a := writeLog(t, root, "p1/a.jsonl", "{}\n")
	b := writeLog(t, root, "p2/b.jsonl", "{}\n")
	writeLog(t, root, "p1/notes.txt", "ignored")

	files := NewScanner(root).FilesSince(time.Time{})
	if len(files) != 2 {
		t.Fatalf("files = %v, want [%s %s]", files, a, b)
	}
}

func TestFilesSinceMissingRoot(t *testing.T) {
	files := NewScanner(filepath.Join(t.TempDir(), "nope")).FilesSince(time.Time{})
	if files != nil {
		t.Fatalf("files = %v, want nil", files)
	}
}

func TestChangedTracksMtimeStrictly(t *testing.T) {
	root := t.TempDir()
	path := writeLog(t, root, "p1/a.jsonl", "{}\n")

	s := NewScanner(root)

	// Never-seen files always count as changed.
	if changed := s.Changed([]string{path}); len(changed) != 1 {
		t.Fatalf("unseen file not reported changed: %v", changed)
	}

	s.MarkSeen([]string{path})
	if changed := s.Changed([]string{path}); len(changed) != 0 {
		t.Fatalf("untouched file reported changed: %v", changed)
	}

	touch(t, path, time.Now().Add(time.Minute))
	if changed := s.Changed([]string{path}); len(changed) != 1 {
		t.Fatalf("touched file not reported changed: %v", changed)
	}
}

func TestResetSeenForgetsEverything(t *testing.T) {
	root := t.TempDir()
	path := writeLog(t, root, "p1/a.jsonl", "{}\n")

	s := NewScanner(root)
	s.MarkSeen([]string{path})
	s.ResetSeen()

	if changed := s.Changed([]string{path}); len(changed) != 1 {
		t.Fatalf("reset table should treat files as unseen: %v", changed)
	}
}
