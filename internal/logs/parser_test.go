package logs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func assistantLine(ts, model string, in, out int) string {
	return `{"type":"assistant","sessionId":"s1","cwd":"/work/demo","timestamp":"` + ts +
		`","message":{"model":"` + model + `","role":"assistant","usage":{"input_tokens":` +
		itoa(in) + `,"output_tokens":` + itoa(out) + `}}}`
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestParseFileSkipsGarbageLines(t *testing.T) {
	dir := t.TempDir()
	content := assistantLine("2026-03-01T10:00:00Z", "claude-opus-4-5", 100, 50) + "\n" +
		"not json at all\n" +
		`{"type":"user","timestamp":"2026-03-01T10:00:01Z"}` + "\n" +
		assistantLine("2026-03-01T10:00:02Z", "claude-sonnet-4", 10, 5) + "\n" +
		`{"type":"assistant","timestamp":"garbage-timestamp","message":{"model":"x","usage":{"input_tokens":1}}}` + "\n" +
		`{"type":"assistant"}` + "\n" +
		`{"truncated mid-appen` + "\n" +
		assistantLine("2026-03-01T10:00:03Z", "claude-3-5-haiku", 1, 1) + "\n"

	path := writeLog(t, dir, "proj/a.jsonl", content)

	records, err := ParseFile(path, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].Project != "/work/demo" {
		t.Fatalf("project = %q", records[0].Project)
	}
}

func TestParseFileWindowIsHalfOpen(t *testing.T) {
	dir := t.TempDir()
	content := assistantLine("2026-03-01T00:00:00Z", "claude-opus-4-5", 1, 1) + "\n" +
		assistantLine("2026-03-01T12:00:00Z", "claude-opus-4-5", 2, 2) + "\n" +
		assistantLine("2026-03-02T00:00:00Z", "claude-opus-4-5", 3, 3) + "\n"
	path := writeLog(t, dir, "proj/a.jsonl", content)

	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	records, err := ParseFile(path, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (start inclusive, end exclusive)", len(records))
	}
}

func TestParseFileRelaxedTimestampFallback(t *testing.T) {
	dir := t.TempDir()
	content := assistantLine("2026-03-01T10:00:00.123Z", "claude-opus-4-5", 1, 1) + "\n" +
		assistantLine("2026-03-01T10:00:01", "claude-opus-4-5", 1, 1) + "\n"
	path := writeLog(t, dir, "proj/a.jsonl", content)

	records, err := ParseFile(path, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if !records[1].Timestamp.Equal(time.Date(2026, time.March, 1, 10, 0, 1, 0, time.UTC)) {
		t.Fatalf("offset-less timestamp parsed as %v", records[1].Timestamp)
	}
}

func TestParseFileMissingFile(t *testing.T) {
	records, err := ParseFile(filepath.Join(t.TempDir(), "missing.jsonl"), time.Time{}, time.Time{})
	if err == nil {
		t.Fatal("expected open error")
	}
	if len(records) != 0 {
		t.Fatalf("got %d records from missing file", len(records))
	}
}

func TestParseFilesAbsorbsPerFileErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeLog(t, dir, "proj/good.jsonl", assistantLine("2026-03-01T10:00:00Z", "claude-opus-4-5", 1, 1)+"\n")

	records := ParseFiles([]string{filepath.Join(dir, "proj/missing.jsonl"), good}, time.Time{}, time.Time{})
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestParseFileProjectFallsBackToDirName(t *testing.T) {
	dir := t.TempDir()
	line := `{"type":"assistant","sessionId":"s1","timestamp":"2026-03-01T10:00:00Z",` +
		`"message":{"model":"claude-opus-4-5","usage":{"input_tokens":1,"output_tokens":1}}}`
	path := writeLog(t, dir, "my-project/a.jsonl", line+"\n")

	records, err := ParseFile(path, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].Project != "my-project" {
		t.Fatalf("records = %+v", records)
	}
}
