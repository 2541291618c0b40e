package logs

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/janekbaraniewski/costwatch/internal/usage"
)

type jsonlEntry struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Timestamp string    `json:"timestamp"`
	CWD       string    `json:"cwd,omitempty"`
	Message   *jsonlMsg `json:"message,omitempty"`
}

type jsonlMsg struct {
	Model string      `json:"model"`
	Role  string      `json:"role"`
	Usage *jsonlUsage `json:"usage,omitempty"`
}

type jsonlUsage struct {
	InputTokens              uint64 `json:"input_tokens"`
	OutputTokens             uint64 `json:"output_tokens"`
	CacheReadInputTokens     uint64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens uint64 `json:"cache_creation_input_tokens"`
}

// relaxedTimestamp is tried after RFC3339 for timestamps that carry no
// offset at all; those are taken as UTC.
const relaxedTimestamp = "2006-01-02T15:04:05"

func parseTimestamp(raw string) (time.Time, bool) {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		ts, err = time.Parse(relaxedTimestamp, raw)
		if err != nil {
			return time.Time{}, false
		}
	}
	return ts, true
}

// ParseFile reads one session log and returns the assistant-usage records
// whose timestamp t satisfies start <= t < end. A zero start or end leaves
// that side of the window open.
//
// Lines that are not valid JSON, are not assistant messages, carry no usage
// block, or have an unparsable timestamp are silently skipped; other record
// kinds coexist in the same file and a line read mid-append is expected to be
// truncated. Only failure to open or read the file is reported, and callers
// treat that as "zero records from this file".
func ParseFile(path string, start, end time.Time) ([]usage.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Project key falls back to the per-project subdirectory name when a
	// record carries no working directory.
	dirProject := filepath.Base(filepath.Dir(path))

	var records []usage.Record
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 256*1024)
	scanner.Buffer(buf, 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry jsonlEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Type != "assistant" || entry.Message == nil || entry.Message.Usage == nil {
			continue
		}
		ts, ok := parseTimestamp(entry.Timestamp)
		if !ok {
			continue
		}
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && !ts.Before(end) {
			continue
		}

		project := entry.CWD
		if project == "" {
			project = dirProject
		}

		u := entry.Message.Usage
		records = append(records, usage.Record{
			Timestamp:        ts,
			Model:            entry.Message.Model,
			Variant:          usage.VariantFor(entry.Message.Model),
			SessionID:        entry.SessionID,
			Project:          project,
			InputTokens:      u.InputTokens,
			OutputTokens:     u.OutputTokens,
			CacheReadTokens:  u.CacheReadInputTokens,
			CacheWriteTokens: u.CacheCreationInputTokens,
		})
	}

	if err := scanner.Err(); err != nil {
		return records, err
	}
	return records, nil
}

// ParseFiles parses every file in paths, absorbing per-file I/O errors: an
// unreadable file contributes zero records and the scan continues.
func ParseFiles(paths []string, start, end time.Time) []usage.Record {
	var all []usage.Record
	for _, path := range paths {
		records, err := ParseFile(path, start, end)
		if err != nil {
			// I/O failure on one file never aborts the scan.
			log.Printf("logs: parsing %s: %v", path, err)
			continue
		}
		all = append(all, records...)
	}
	return all
}
