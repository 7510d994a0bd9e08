// Package inbox watches a drop directory for task files. Other tools (cron
// jobs, editor plugins, shell aliases) enqueue backlog work by writing a
// *.task.json file into the directory; the watcher picks it up, hands it to
// the configured sink, and removes it.
package inbox

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DroppedTask is the shape of a *.task.json file.
type DroppedTask struct {
	Description string `json:"description"`
	Project     string `json:"project,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

// Sink receives tasks picked up from the drop directory.
type Sink func(task DroppedTask)

// Watcher monitors a drop directory for task files.
type Watcher struct {
	dir     string
	sink    Sink
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher on dir, creating the directory if needed.
// Files already present in the directory are drained before watching starts,
// so tasks dropped while the daemon was down are not lost.
func NewWatcher(dir string, sink Sink) (*Watcher, error) {
	if sink == nil {
		return nil, fmt.Errorf("inbox sink is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create inbox directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create inbox watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch inbox directory: %w", err)
	}

	w := &Watcher{
		dir:     dir,
		sink:    sink,
		watcher: fsw,
		done:    make(chan struct{}),
	}

	w.drain()

	w.wg.Add(1)
	go w.watch()

	return w, nil
}

// Stop shuts the watcher down and waits for the watch loop to exit.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
	w.wg.Wait()
}

// drain ingests task files already sitting in the drop directory.
func (w *Watcher) drain() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("[inbox] warning: cannot read drop directory: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.ingest(filepath.Join(w.dir, entry.Name()))
	}
}

// watch monitors the drop directory for new task files.
func (w *Watcher) watch() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0 {
				w.ingest(event.Name)
			}
		case <-w.watcher.Errors:
			// Keep watching.
		}
	}
}

// ingest parses one task file, delivers it to the sink, and removes it.
// Malformed files are renamed with a .rejected suffix instead of deleted so
// the author can inspect what went wrong.
func (w *Watcher) ingest(path string) {
	if !strings.HasSuffix(path, ".task.json") {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		// Create fires before the writer's content lands; the Write
		// event retries the ingest.
		return
	}

	var task DroppedTask
	if err := json.Unmarshal(data, &task); err != nil {
		w.reject(path, err)
		return
	}
	if strings.TrimSpace(task.Description) == "" {
		w.reject(path, fmt.Errorf("missing description"))
		return
	}

	w.sink(task)
	if err := os.Remove(path); err != nil {
		log.Printf("[inbox] warning: cannot remove ingested file %s: %v", path, err)
	}
	log.Printf("[inbox] ingested task from %s", filepath.Base(path))
}

func (w *Watcher) reject(path string, cause error) {
	rejected := path + ".rejected"
	if err := os.Rename(path, rejected); err != nil {
		log.Printf("[inbox] warning: cannot quarantine malformed file %s: %v", path, err)
		return
	}
	log.Printf("[inbox] rejected malformed task file %s: %v", filepath.Base(path), cause)
}
