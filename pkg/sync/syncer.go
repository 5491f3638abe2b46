package sync

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/pkg/errors"
)

// IgnoreFunc reports whether a path should be left out of synchronization.
// It receives the path of a file relative to a synchronization root, using
// forward slashes and a leading slash, e.g. "/src/node_modules/x/index.js".
// Only files are checked. Directories are always walked, so that a pattern
// can't hide a file whose own path it doesn't match.
type IgnoreFunc func(relativePath string) bool

// Syncer runs synchronization passes. It's safe to use a single Syncer for
// multiple groups, as long as the groups don't share directories.
type Syncer struct {
	fs        afero.Fs
	clock     clockwork.Clock
	log       log.FieldLogger
	isIgnored IgnoreFunc
	parallel  bool
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithFs sets the filesystem the Syncer operates on. Defaults to the OS
// filesystem.
func WithFs(fs afero.Fs) Option {
	return func(s *Syncer) {
		s.fs = fs
	}
}

// WithClock sets the clock used to timestamp backup directories.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Syncer) {
		s.clock = clock
	}
}

// WithParallel enables running the passes that target distinct destination
// directories concurrently.
func WithParallel(parallel bool) Option {
	return func(s *Syncer) {
		s.parallel = parallel
	}
}

// New creates a Syncer. A nil isIgnored ignores nothing.
func New(logger log.FieldLogger, isIgnored IgnoreFunc, opts ...Option) *Syncer {
	if isIgnored == nil {
		isIgnored = func(string) bool { return false }
	}

	s := &Syncer{
		fs:        afero.NewOsFs(),
		clock:     clockwork.NewRealClock(),
		log:       logger,
		isIgnored: isIgnored,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarizes the work done by a single Mirror pass.
type Result struct {
	Copied  int
	Deleted int
	Failed  int

	// BackupDir is the directory that files were moved into before being
	// overwritten or deleted. It's empty if nothing was backed up.
	BackupDir string
}

func (r *Result) add(other Result) {
	r.Copied += other.Copied
	r.Deleted += other.Deleted
	r.Failed += other.Failed
}

// truncateModTime drops the sub-second part of a modification time. All
// timestamp comparisons go through it.
func truncateModTime(t time.Time) time.Time {
	return t.Truncate(time.Second)
}

// ignoreKey converts a file path relative to a root into the form passed to
// IgnoreFunc.
func ignoreKey(relativePath string) string {
	return "/" + strings.TrimPrefix(filepath.ToSlash(relativePath), "/")
}

// walkFiles calls fn for every regular file under root that isn't ignored.
// Backup directories aren't descended into.
//
// An error reading the root itself is returned, since it means the whole
// tree is unusable. Errors on anything below the root are logged, and the
// affected entry is skipped.
func (s *Syncer) walkFiles(root string, fn func(path, relativePath string, fi os.FileInfo) error) error {
	return s.walk(root, func(path, relativePath string, fi os.FileInfo) error {
		if fi.IsDir() {
			return nil
		}
		return fn(path, relativePath, fi)
	})
}

// walk is like walkFiles, but also calls fn for directories below root.
func (s *Syncer) walk(root string, fn func(path, relativePath string, fi os.FileInfo) error) error {
	return afero.Walk(s.fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				if os.IsNotExist(err) {
					return errors.FileNotFound{Path: root}
				}
				return err
			}
			s.log.WithError(err).WithField("path", path).Warn("Failed to read path. Skipping it.")
			return nil
		}

		if path == root {
			if !fi.IsDir() {
				return errors.New("not a directory")
			}
			return nil
		}

		// This shouldn't fail because `path` is always a child of `root`.
		relativePath, err := filepath.Rel(root, path)
		if err != nil {
			return errors.WithContext(err, "relative path")
		}

		if fi.IsDir() {
			if fi.Name() == backupDirName {
				return filepath.SkipDir
			}
			return fn(path, relativePath, fi)
		}

		// Symlinks, devices and the like aren't synchronized.
		if !fi.Mode().IsRegular() || s.isIgnored(ignoreKey(relativePath)) {
			return nil
		}
		return fn(path, relativePath, fi)
	})
}
