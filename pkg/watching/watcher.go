// Package watching translates filesystem events under configured watch
// directories into INGEST tasks, the Go-native counterpart of the
// reference implementation's watchfiles-based watcher.
package watching

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/kobold-io/kobold/pkg/logging"
	"github.com/kobold-io/kobold/pkg/model"
	"github.com/kobold-io/kobold/pkg/queue"
)

// supportedExtensions mirrors the set INGEST itself accepts; filtering here
// too avoids flooding the queue with tasks for files that will simply be
// ignored downstream.
var supportedExtensions = map[string]bool{
	".epub":  true,
	".kepub": true,
	".pdf":   true,
	".cbz":   true,
	".cbr":   true,
	".mobi":  true,
	".azw3":  true,
	".fb2":   true,
}

// debounceWindow collapses the create-then-write burst many downloaders and
// editors produce into a single ADD task.
const debounceWindow = 300 * time.Millisecond

// Watcher recursively watches a set of directories and enqueues INGEST
// tasks for ebook files that appear or disappear within them.
type Watcher struct {
	dirs   []string
	queue  *queue.Queue
	logger *logging.Logger
}

// New constructs a Watcher over dirs. The first directory in dirs is also
// the library organizer's root (see pkg/organizer).
func New(dirs []string, q *queue.Queue, logger *logging.Logger) *Watcher {
	return &Watcher{dirs: dirs, queue: q, logger: logger.Sublogger("watcher")}
}

// Run watches until ctx is canceled or an unrecoverable error occurs.
func (w *Watcher) Run(ctx context.Context) error {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "unable to create filesystem watcher")
	}
	defer notifier.Close()

	for _, dir := range w.dirs {
		if err := addRecursive(notifier, dir); err != nil {
			return errors.Wrapf(err, "unable to watch directory %s", dir)
		}
	}
	w.logger.Infof("Watching %d director(ies)", len(w.dirs))

	pending := make(map[string]*time.Timer)
	defer func() {
		for _, timer := range pending {
			timer.Stop()
		}
	}()

	fire := make(chan string)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-notifier.Events:
			if !ok {
				return nil
			}
			w.handleEvent(notifier, event, pending, fire)

		case path := <-fire:
			delete(pending, path)
			w.enqueueAdd(path)

		case err, ok := <-notifier.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("Watcher error: %s", err)
		}
	}
}

func (w *Watcher) handleEvent(notifier *fsnotify.Watcher, event fsnotify.Event, pending map[string]*time.Timer, fire chan<- string) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			addRecursive(notifier, event.Name)
			return
		}
	}

	if !supportedExtensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.debounceAdd(event.Name, pending, fire)

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if timer, ok := pending[event.Name]; ok {
			timer.Stop()
			delete(pending, event.Name)
		}
		w.enqueueDelete(event.Name)
	}
}

// debounceAdd resets a per-path timer on every create/write event, so a
// burst of writes to the same file yields one ADD task once it settles.
func (w *Watcher) debounceAdd(path string, pending map[string]*time.Timer, fire chan<- string) {
	if timer, ok := pending[path]; ok {
		timer.Stop()
	}
	pending[path] = time.AfterFunc(debounceWindow, func() {
		fire <- path
	})
}

func (w *Watcher) enqueueAdd(path string) {
	if _, err := w.queue.Enqueue(model.TaskTypeIngest, model.IngestPayload{Event: model.IngestEventAdd, Path: path}); err != nil {
		w.logger.Errorf("Unable to enqueue ingest for %s: %s", path, err)
	}
}

func (w *Watcher) enqueueDelete(path string) {
	if _, err := w.queue.Enqueue(model.TaskTypeIngest, model.IngestPayload{Event: model.IngestEventDelete, Path: path}); err != nil {
		w.logger.Errorf("Unable to enqueue delete for %s: %s", path, err)
	}
}

// addRecursive registers dir and every subdirectory beneath it with
// notifier, since fsnotify watches are not recursive on their own.
func addRecursive(notifier *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return notifier.Add(path)
		}
		return nil
	})
}
