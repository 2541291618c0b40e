package engine

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher raises a single debounced change signal when session logs are
// written. A burst of writes within the debounce window coalesces into one
// callback: each event restarts the timer, and the callback fires only once
// the timer runs out without being reset again.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	onChange func()

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
}

func NewWatcher(root string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:      fsw,
		root:     root,
		debounce: debounce,
		onChange: onChange,
		done:     make(chan struct{}),
	}, nil
}

// Start registers the log root and its project subdirectories and begins
// delivering debounced signals. New project subdirectories are picked up as
// they appear.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(w.root); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.root)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				// Per-watch failures are non-fatal; the periodic tick covers
				// directories we could not register.
				if err := w.fsw.Add(filepath.Join(w.root, entry.Name())); err != nil {
					log.Printf("engine: watching %s: %v", entry.Name(), err)
				}
			}
		}
	}

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						log.Printf("engine: watching %s: %v", event.Name, err)
					}
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".jsonl") {
				continue
			}
			w.bump()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("engine: watch error: %v", err)
		}
	}
}

// bump (re)starts the debounce timer.
func (w *Watcher) bump() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

// Close releases the OS watch handle and cancels any pending debounce timer.
func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
