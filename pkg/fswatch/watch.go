package fswatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/pkg/errors"
)

var fs = afero.NewOsFs()

// backupDirName matches the directory that synchronization moves replaced
// files into. Changes within it never trigger a notification.
const backupDirName = ".backup"

// Watcher notifies about changes within a set of directory trees.
type Watcher struct {
	watcher   *fsnotify.Watcher
	roots     []string
	isIgnored func(string) bool
	events    chan struct{}
}

// Watch watches for changes to files under `roots`. It sends an event on
// Events whenever a file that isn't ignored is created, written, removed or
// renamed. Bursts of changes are coalesced into a single event.
//
// isIgnored receives file paths in the same form as the synchronization code
// uses: relative to the root, with a leading slash.
func Watch(roots []string, isIgnored func(string) bool) (*Watcher, error) {
	if isIgnored == nil {
		isIgnored = func(string) bool { return false }
	}

	pathsToWatch, err := getPathsToWatch(roots, isIgnored)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, path := range pathsToWatch {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}

	w := &Watcher{
		watcher:   watcher,
		roots:     roots,
		isIgnored: isIgnored,
		events:    make(chan struct{}, 1),
	}
	go w.run()
	return w, nil
}

// Events returns the channel that change notifications are sent on.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) run() {
	errs := w.watcher.Errors
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.WithError(err).Debug("File watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	root, relativePath, ok := w.relativize(event.Name)
	if !ok {
		return
	}

	isDir := false
	if event.Op&fsnotify.Create != 0 {
		if fi, err := fs.Stat(event.Name); err == nil && fi.IsDir() {
			isDir = true
		}
	}

	if isExcluded(relativePath, isDir, w.isIgnored) {
		return
	}

	// fsnotify doesn't watch recursively, so new directories have to be
	// added as they show up.
	if isDir {
		newPaths, err := getChildren(root, event.Name, w.isIgnored)
		if err != nil {
			log.WithError(err).WithField("path", event.Name).Debug("Failed to list new directory")
		}
		for _, path := range append([]string{event.Name}, newPaths...) {
			if err := w.watcher.Add(path); err != nil {
				log.WithError(err).WithField("path", path).Debug("Failed to watch new directory")
			}
		}
	}

	select {
	case w.events <- struct{}{}:
	default:
	}
}

// relativize finds the root that `path` is in.
func (w *Watcher) relativize(path string) (root, relativePath string, ok bool) {
	for _, root := range w.roots {
		relativePath, err := filepath.Rel(root, path)
		if err != nil || relativePath == ".." ||
			strings.HasPrefix(relativePath, ".."+string(filepath.Separator)) {
			continue
		}
		return root, relativePath, true
	}
	return "", "", false
}

// isExcluded returns whether changes to `relativePath` should be ignored.
// Directories are only excluded within backups, since an ignore pattern that
// matches a directory doesn't necessarily match the files in it.
func isExcluded(relativePath string, isDir bool, isIgnored func(string) bool) bool {
	if relativePath == "." {
		return false
	}

	for _, part := range strings.Split(filepath.ToSlash(relativePath), "/") {
		if part == backupDirName {
			return true
		}
	}
	return !isDir && isIgnored("/"+filepath.ToSlash(relativePath))
}

// getPathsToWatch returns every directory within `roots` that changes should
// be watched in, including the roots themselves. Watching a directory covers
// the files directly within it.
func getPathsToWatch(roots []string, isIgnored func(string) bool) (paths []string, err error) {
	for _, root := range roots {
		fi, err := fs.Stat(root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.FileNotFound{Path: root}
			}
			return nil, errors.WithContext(err, "stat")
		}

		if !fi.IsDir() {
			return nil, errors.NewFriendlyError("%q is not a directory.", root)
		}

		paths = append(paths, root)
		children, err := getChildren(root, root, isIgnored)
		if err != nil {
			return nil, errors.WithContext(err, "get subdirs")
		}
		paths = append(paths, children...)
	}
	return paths, nil
}

// getChildren returns the directories below `dir` that aren't excluded.
// `dir` must be within `root`.
func getChildren(root, dir string, isIgnored func(string) bool) (paths []string, err error) {
	err = afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if path == dir || !fi.IsDir() {
			return nil
		}

		relativePath, err := filepath.Rel(root, path)
		if err != nil {
			// This shouldn't happen because `path` is always a child of `root`.
			return errors.WithContext(err, "normalized path")
		}

		if isExcluded(relativePath, true, isIgnored) {
			return filepath.SkipDir
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}
