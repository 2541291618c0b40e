package logs

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Scanner finds session log files under a root directory laid out as one
// subdirectory per project. It is conservative: it may over-include files,
// but never omits a file whose content changed.
type Scanner struct {
	root string

	mu       sync.Mutex
	lastSeen map[string]time.Time // path -> mtime at last read
}

func NewScanner(root string) *Scanner {
	return &Scanner{
		root:     root,
		lastSeen: make(map[string]time.Time),
	}
}

func (s *Scanner) Root() string { return s.root }

// FilesSince returns the log files that may contain records at or after
// since, using a two-level mtime short-circuit: a project subdirectory whose
// own mtime predates since is skipped without listing it (appends inside
// touch the parent directory's mtime), and within surviving subdirectories
// individual files older than since are skipped. A zero since returns every
// log file. Unlistable directories contribute nothing and do not abort the
// scan.
func (s *Scanner) FilesSince(since time.Time) []string {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		log.Printf("logs: listing %s: %v", s.root, err)
		return nil
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(s.root, entry.Name())

		if !since.IsZero() {
			info, err := entry.Info()
			if err == nil && info.ModTime().Before(since) {
				continue
			}
		}

		children, err := os.ReadDir(dirPath)
		if err != nil {
			log.Printf("logs: listing %s: %v", dirPath, err)
			continue
		}
		for _, child := range children {
			if child.IsDir() || !strings.HasSuffix(child.Name(), ".jsonl") {
				continue
			}
			path := filepath.Join(dirPath, child.Name())
			if !since.IsZero() {
				info, err := child.Info()
				if err == nil && info.ModTime().Before(since) {
					continue
				}
			}
			files = append(files, path)
		}
	}

	sort.Strings(files)
	return files
}

// Changed filters paths down to those whose current mtime is strictly newer
// than the mtime recorded by the last MarkSeen, or that were never seen.
// Files that vanished since the last scan are not reported; their absence
// shows up as a directory mtime bump on the next FilesSince pass.
func (s *Scanner) Changed(paths []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		seen, ok := s.lastSeen[path]
		if !ok || info.ModTime().After(seen) {
			changed = append(changed, path)
		}
	}
	return changed
}

// MarkSeen records the current mtimes for files that were just parsed.
func (s *Scanner) MarkSeen(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		s.lastSeen[path] = info.ModTime()
	}
}

// ResetSeen clears the change table. Called on day rollover, when the whole
// cached day-range is invalidated anyway.
func (s *Scanner) ResetSeen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = make(map[string]time.Time)
}
