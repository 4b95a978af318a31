// Package watcher turns file system events under a set of directories into
// batched change notifications.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/core-tools/hsu-rackguard/pkg/errors"
	"github.com/core-tools/hsu-rackguard/pkg/logging"
	"github.com/core-tools/hsu-rackguard/pkg/options"

	"github.com/fsnotify/fsnotify"
)

// Handler receives the sorted, de-duplicated paths that changed during one
// latency window. Paths are slash-separated and relative to their watch root.
type Handler func(ctx context.Context, paths []string)

type Watcher struct {
	roots   []string
	include []*regexp.Regexp
	ignore  []*regexp.Regexp
	latency time.Duration
	handler Handler
	logger  logging.Logger

	fsw *fsnotify.Watcher
}

func New(config options.WatchConfig, handler Handler, logger logging.Logger) (*Watcher, error) {
	if err := options.ValidateWatchConfig(config); err != nil {
		return nil, err
	}

	w := &Watcher{
		include: compile(config.Patterns),
		ignore:  compile(config.Ignore),
		latency: config.Latency,
		handler: handler,
		logger:  logger,
	}

	for _, dir := range config.Directories {
		root, err := filepath.Abs(dir)
		if err != nil {
			return nil, errors.NewIOError("failed to resolve watch directory", err).WithContext("directory", dir)
		}
		if resolved, err := filepath.EvalSymlinks(root); err == nil {
			root = resolved
		}
		w.roots = append(w.roots, root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIOError("failed to create file watcher", err)
	}
	w.fsw = fsw

	for _, root := range w.roots {
		if _, err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return w, nil
}

// compile expects patterns that ValidateWatchConfig already accepted
func compile(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		compiled = append(compiled, regexp.MustCompile(pattern))
	}
	return compiled
}

// Match reports whether a relative, slash-separated path should trigger a
// change: it must match an include pattern and no ignore pattern.
func (w *Watcher) Match(rel string) bool {
	if w.ignored(rel) {
		return false
	}
	for _, re := range w.include {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

func (w *Watcher) ignored(rel string) bool {
	for _, re := range w.ignore {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

// Run delivers changes to the handler until ctx is done. The handler runs on
// the calling goroutine, so calls never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			for _, rel := range w.handleEvent(event) {
				if len(pending) == 0 {
					flush = time.After(w.latency)
				}
				pending[rel] = struct{}{}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnf("File watcher error: %v", err)

		case <-flush:
			flush = nil
			paths := make([]string, 0, len(pending))
			for rel := range pending {
				paths = append(paths, rel)
			}
			pending = make(map[string]struct{})
			sort.Strings(paths)

			w.logger.Debugf("Detected changes: %v", paths)
			w.handler(ctx, paths)
		}
	}
}

// handleEvent returns the matching relative paths an event stands for. A new
// directory is watched and its existing files are reported as well, since
// they may have been written before the watch was in place.
func (w *Watcher) handleEvent(event fsnotify.Event) []string {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return nil
	}

	rel, ok := w.relative(event.Name)
	if !ok {
		return nil
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.ignored(rel + "/") {
				return nil
			}
			files, err := w.addRecursive(event.Name)
			if err != nil {
				w.logger.Warnf("Couldn't watch new directory %s: %v", event.Name, err)
			}
			var changed []string
			for _, file := range files {
				if fileRel, ok := w.relative(file); ok && w.Match(fileRel) {
					changed = append(changed, fileRel)
				}
			}
			return changed
		}
	}

	if !w.Match(rel) {
		return nil
	}
	return []string{rel}
}

func (w *Watcher) relative(name string) (string, bool) {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, name)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.ToSlash(rel), true
	}
	return "", false
}

// addRecursive watches dir and every non-ignored directory below it, and
// returns the regular files it saw on the way.
func (w *Watcher) addRecursive(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			// vanished or unreadable entries are skipped
			return nil
		}

		if !d.IsDir() {
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		}

		if rel, ok := w.relative(path); ok && w.ignored(rel+"/") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return files, errors.NewIOError("failed to watch directory", err).WithContext("directory", dir)
	}
	return files, nil
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}
