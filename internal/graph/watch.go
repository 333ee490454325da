package graph

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Watcher polls the graph files' modification times and calls onChange when
// one is added, removed or rewritten.
type Watcher struct {
	paths    Paths
	interval time.Duration
	onChange func(string)

	stopOnce  sync.Once
	stopCh    chan struct{}
	lastMTime map[string]time.Time
}

// NewWatcher creates a watcher for the graph files under paths.
func NewWatcher(paths Paths, interval time.Duration, onChange func(string)) *Watcher {
	return &Watcher{
		paths:     paths,
		interval:  interval,
		onChange:  onChange,
		stopCh:    make(chan struct{}),
		lastMTime: make(map[string]time.Time),
	}
}

// Start begins polling in a goroutine.
func (w *Watcher) Start() {
	ticker := time.NewTicker(w.interval)
	w.scan(true)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.scan(false)
			case <-w.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Watcher) files() []string {
	out := []string{w.paths.BundlePath()}
	entries, err := os.ReadDir(filepath.Join(w.paths.BaseDir, "graphs"))
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		out = append(out, filepath.Join(w.paths.BaseDir, "graphs", e.Name()))
	}
	return out
}

// scan compares mtimes with the last scan; prime only records them.
func (w *Watcher) scan(prime bool) {
	seen := make(map[string]bool)
	for _, p := range w.files() {
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		seen[p] = true
		mt := fi.ModTime()
		last, ok := w.lastMTime[p]
		w.lastMTime[p] = mt
		if prime {
			continue
		}
		if !ok || mt.After(last) {
			w.notify(p)
		}
	}
	for p := range w.lastMTime {
		if !seen[p] {
			delete(w.lastMTime, p)
			if !prime {
				w.notify(p)
			}
		}
	}
}

func (w *Watcher) notify(path string) {
	if w.onChange != nil {
		w.onChange(path)
	}
}
