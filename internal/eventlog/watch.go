package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Event is one decoded line from events.jsonl.
type Event map[string]interface{}

// Tail streams new lines appended to a run's events.jsonl to out, until done
// is closed. It watches the log directory with fsnotify: each Write or Create
// event on the file triggers an immediate read (no debounce) of whatever is
// new since the last offset, rather than re-reading the whole file.
func Tail(repoPath, runID string, out chan<- Event, done <-chan struct{}) error {
	path := filepath.Join(repoPath, ".swarm", "logs", runID, "events.jsonl")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var offset int64
	readNew := func() {
		f, err := os.Open(path)
		if err != nil {
			return
		}
		defer f.Close()
		if _, err := f.Seek(offset, 0); err != nil {
			return
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var evt Event
			if err := json.Unmarshal(scanner.Bytes(), &evt); err == nil {
				out <- evt
			}
		}
		if pos, err := f.Seek(0, 1); err == nil {
			offset = pos
		}
	}

	readNew()

	for {
		select {
		case <-done:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name == path && (ev.Op&fsnotify.Write == fsnotify.Write || ev.Op&fsnotify.Create == fsnotify.Create) {
				readNew()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
