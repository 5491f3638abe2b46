package sync

import (
	"fmt"
	"os"
	"time"

	"github.com/sidkik/dirsync/pkg/errors"
)

// DirectoryFreshness is the modification time of the most recently modified
// file within a directory.
type DirectoryFreshness struct {
	Directory string
	ModTime   time.Time
}

// Freshness returns the DirectoryFreshness of each directory, in the same
// order as `directories`. Directories without any files that aren't ignored
// are left out.
func (s *Syncer) Freshness(directories []string) ([]DirectoryFreshness, error) {
	var freshness []DirectoryFreshness
	for _, dir := range directories {
		var latest time.Time
		var found bool
		err := s.walkFiles(dir, func(_, _ string, fi os.FileInfo) error {
			modTime := truncateModTime(fi.ModTime())
			if !found || modTime.After(latest) {
				latest = modTime
				found = true
			}
			return nil
		})
		if err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("scan %s", dir))
		}

		if found {
			freshness = append(freshness, DirectoryFreshness{Directory: dir, ModTime: latest})
		}
	}
	return freshness, nil
}

// SelectFreshest returns the directory containing the most recently modified
// file. If several directories tie, the one listed first wins.
//
// It returns a NoSyncableDirectory error if none of the directories contain
// a file that isn't ignored.
func (s *Syncer) SelectFreshest(directories []string) (string, error) {
	freshness, err := s.Freshness(directories)
	if err != nil {
		return "", err
	}

	if len(freshness) == 0 {
		return "", errors.NoSyncableDirectory{Directories: directories}
	}

	freshest := freshness[0]
	for _, candidate := range freshness[1:] {
		if candidate.ModTime.After(freshest.ModTime) {
			freshest = candidate
		}
	}
	return freshest.Directory, nil
}
