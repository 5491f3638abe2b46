package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/pkg/errors"
)

// Mirror synchronizes `destination` with `source`.
//
// Every file in `source` that's missing from `destination`, or that's newer
// than its counterpart there, is copied over along with its modification
// time. If `deletable` is true, files in `destination` that don't exist in
// `source` are removed afterwards, followed by any directories that were
// left empty.
//
// Files are never discarded. Anything overwritten or removed in
// `destination` is moved to BackupRoot(destination, <start of the pass>)
// first, keeping its relative path.
//
// A failure on an individual file is logged and counted in the Result, and
// the pass moves on to the next file. An error is only returned if `source`
// can't be read, or if `ctx` is cancelled. Cancellation is checked between
// files, so it never interrupts a copy.
func (s *Syncer) Mirror(ctx context.Context, source, destination string, deletable bool) (Result, error) {
	runTime := s.clock.Now()
	bkp := newBackup(s.fs, destination, runTime)

	var res Result
	mirrored := map[string]struct{}{}
	err := s.walkFiles(source, func(path, relativePath string, fi os.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		mirrored[relativePath] = struct{}{}

		dst := filepath.Join(destination, relativePath)
		copied, err := s.mirrorFile(path, fi, destination, relativePath, bkp)
		if err != nil {
			res.Failed++
			s.log.WithError(err).WithFields(log.Fields{
				"path":        path,
				"destination": dst,
			}).Warn("Failed to copy file")
			return nil
		}

		if copied {
			res.Copied++
		}
		return nil
	})
	if err != nil {
		res.BackupDir = bkp.dir()
		return res, errors.WithContext(err, fmt.Sprintf("mirror %s", source))
	}

	if deletable {
		deleted, failed, err := s.removeUnmirrored(ctx, destination, mirrored, bkp)
		res.Deleted += deleted
		res.Failed += failed
		if err != nil {
			res.BackupDir = bkp.dir()
			return res, errors.WithContext(err, fmt.Sprintf("clean up %s", destination))
		}
	}

	res.BackupDir = bkp.dir()
	return res, nil
}

// mirrorFile copies `src` to `relativePath` within `destination` unless the
// file there is already at least as new. It returns whether a copy happened.
func (s *Syncer) mirrorFile(src string, srcInfo os.FileInfo, destination, relativePath string,
	bkp *backup) (bool, error) {

	if err := s.clearParents(destination, relativePath, bkp); err != nil {
		return false, errors.WithContext(err, "clear parent directories")
	}

	dst := filepath.Join(destination, relativePath)
	dstInfo, err := s.fs.Stat(dst)
	switch {
	case err == nil:
		if dstInfo.IsDir() {
			return false, errors.New("destination is a directory")
		}

		if !truncateModTime(dstInfo.ModTime()).Before(truncateModTime(srcInfo.ModTime())) {
			return false, nil
		}
	case os.IsNotExist(err):
		dstInfo = nil
	default:
		return false, errors.WithContext(err, "stat destination")
	}

	dstDir := filepath.Dir(dst)
	if err := s.fs.MkdirAll(dstDir, 0755); err != nil {
		return false, errors.WithContext(err, "create parent directory")
	}

	// Stage the new contents next to the destination before touching the
	// existing file, so that a failed copy leaves the destination as it was.
	tmp, err := copyToTemp(s.fs, src, srcInfo, dstDir)
	if err != nil {
		return false, errors.WithContext(err, "copy")
	}

	if dstInfo != nil {
		if _, err := bkp.move(dst, relativePath); err != nil {
			s.fs.Remove(tmp)
			return false, errors.WithContext(err, "back up")
		}
	}

	if err := s.fs.Rename(tmp, dst); err != nil {
		s.fs.Remove(tmp)
		return false, errors.WithContext(err, "rename")
	}

	s.log.Infof("Copy: %s -> %s", src, dst)
	return true, nil
}

// clearParents makes room for the parent directories of `relativePath` within
// `destination`. A file that's in the way of one of them is moved into the
// backup tree.
func (s *Syncer) clearParents(destination, relativePath string, bkp *backup) error {
	parent := filepath.Dir(relativePath)
	if parent == "." {
		return nil
	}

	var rel string
	for _, part := range strings.Split(parent, string(filepath.Separator)) {
		rel = filepath.Join(rel, part)
		path := filepath.Join(destination, rel)

		fi, err := s.fs.Stat(path)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return errors.WithContext(err, "stat")
		}
		if fi.IsDir() {
			continue
		}

		if _, err := bkp.move(path, rel); err != nil {
			return errors.WithContext(err, "back up")
		}
		s.log.Infof("Delete: %s", path)
		return nil
	}
	return nil
}

// removeUnmirrored moves every file in `destination` that wasn't mirrored
// into the backup tree, and then removes any directories that were left
// empty.
func (s *Syncer) removeUnmirrored(ctx context.Context, destination string,
	mirrored map[string]struct{}, bkp *backup) (deleted, failed int, err error) {

	if _, err := s.fs.Stat(destination); os.IsNotExist(err) {
		return 0, 0, nil
	}

	var dirs []string
	err = s.walk(destination, func(path, relativePath string, fi os.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if fi.IsDir() {
			dirs = append(dirs, path)
			return nil
		}

		if _, ok := mirrored[relativePath]; ok {
			return nil
		}

		if _, err := bkp.move(path, relativePath); err != nil {
			failed++
			s.log.WithError(err).WithField("path", path).Warn("Failed to delete file")
			return nil
		}

		deleted++
		s.log.Infof("Delete: %s", path)
		return nil
	})
	if err != nil {
		return deleted, failed, err
	}

	// The walk lists parents before their children, so going through it
	// backwards empties children first.
	for i := len(dirs) - 1; i >= 0; i-- {
		s.removeIfEmpty(dirs[i])
	}
	return deleted, failed, nil
}

// removeIfEmpty removes `dir` if it has no entries. Failing to do so is
// expected (e.g. another process just created a file in it), so errors are
// only logged at debug level.
func (s *Syncer) removeIfEmpty(dir string) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		s.log.WithError(err).WithField("path", dir).Debug("Failed to read directory")
		return
	}

	if len(entries) != 0 {
		return
	}

	if err := s.fs.Remove(dir); err != nil {
		s.log.WithError(err).WithField("path", dir).Debug("Failed to remove empty directory")
	}
}

// copyToTemp copies `src` into a new hidden file in `dir`, carrying over its
// permissions and modification time, and returns the new file's path.
func copyToTemp(fs afero.Fs, src string, srcInfo os.FileInfo, dir string) (string, error) {
	in, err := fs.Open(src)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer in.Close()

	out, err := afero.TempFile(fs, dir, ".dirsync-")
	if err != nil {
		return "", errors.WithContext(err, "create")
	}
	tmp := out.Name()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		fs.Remove(tmp)
		return "", errors.WithContext(err, "write")
	}

	if err := out.Close(); err != nil {
		fs.Remove(tmp)
		return "", errors.WithContext(err, "close")
	}

	if err := fs.Chmod(tmp, srcInfo.Mode().Perm()); err != nil {
		fs.Remove(tmp)
		return "", errors.WithContext(err, "set file mode")
	}

	// Change the modification time as the last step so that it doesn't get
	// reset by other file operations.
	if err := fs.Chtimes(tmp, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		fs.Remove(tmp)
		return "", errors.WithContext(err, "set file modtime")
	}
	return tmp, nil
}
