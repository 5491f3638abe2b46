package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/pkg/errors"
)

const (
	// backupDirName is the name of the directory that holds backups. It's
	// created next to the destination, and is never synchronized itself.
	backupDirName = ".backup"

	// backupTimeFormat is the layout of the per-pass directory under
	// backupDirName.
	backupTimeFormat = "2006-01-02_15-04-05"
)

// BackupRoot returns the directory that a Mirror pass started at `runTime`
// moves replaced files of `destination` into.
func BackupRoot(destination string, runTime time.Time) string {
	return filepath.Join(filepath.Dir(destination), backupDirName,
		runTime.Format(backupTimeFormat), filepath.Base(destination))
}

// backup moves files into the backup tree of a single Mirror pass. The root
// is only created once the first file is moved, so passes that don't replace
// anything leave no trace.
type backup struct {
	fs   afero.Fs
	root string
	used bool
}

func newBackup(fs afero.Fs, destination string, runTime time.Time) *backup {
	return &backup{fs: fs, root: BackupRoot(destination, runTime)}
}

// move moves the file at `path` to `relativePath` within the backup tree,
// and returns where it ended up.
func (b *backup) move(path, relativePath string) (string, error) {
	target, err := b.freePath(filepath.Join(b.root, relativePath))
	if err != nil {
		return "", errors.WithContext(err, "find backup path")
	}

	if err := b.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", errors.WithContext(err, "create backup directory")
	}

	if err := moveFile(b.fs, path, target); err != nil {
		return "", errors.WithContext(err, "move to backup")
	}
	b.used = true
	return target, nil
}

// dir returns the backup root if anything was moved into it.
func (b *backup) dir() string {
	if !b.used {
		return ""
	}
	return b.root
}

// freePath returns `path`, or if that's taken, the first of `path.1`,
// `path.2`, ... that isn't. This only happens when two passes that start in
// the same second back up the same file, and the earlier copy must survive.
func (b *backup) freePath(path string) (string, error) {
	candidate := path
	for i := 1; ; i++ {
		_, err := b.fs.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s.%d", path, i)
	}
}

// moveFile renames src to dst. If they're on different devices (e.g. the
// destination root is a mount point), it falls back to copying and removing.
func moveFile(fs afero.Fs, src, dst string) error {
	err := fs.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || linkErr.Err != syscall.EXDEV {
		return err
	}

	fi, err := fs.Stat(src)
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	tmp, err := copyToTemp(fs, src, fi, filepath.Dir(dst))
	if err != nil {
		return errors.WithContext(err, "copy")
	}

	if err := fs.Rename(tmp, dst); err != nil {
		fs.Remove(tmp)
		return errors.WithContext(err, "rename")
	}
	return fs.Remove(src)
}
