package sync

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// baseTime is the reference point for file modification times in tests.
	baseTime = time.Date(2019, 11, 10, 12, 0, 0, 0, time.UTC)

	// runTime is when every mirror pass in the tests starts.
	runTime = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
)

// at returns the time `seconds` after baseTime.
func at(seconds int) time.Time {
	return baseTime.Add(time.Duration(seconds) * time.Second)
}

type testEnv struct {
	fs      afero.Fs
	syncer  *Syncer
	logHook *logrusTest.Hook
}

func newTestEnv(isIgnored IgnoreFunc, opts ...Option) testEnv {
	fs := afero.NewMemMapFs()
	logger, hook := logrusTest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	opts = append([]Option{WithFs(fs), WithClock(clockwork.NewFakeClockAt(runTime))}, opts...)
	return testEnv{
		fs:      fs,
		syncer:  New(logger, isIgnored, opts...),
		logHook: hook,
	}
}

func (env testEnv) writeFile(t *testing.T, path, contents string, modTime time.Time) {
	t.Helper()
	require.NoError(t, env.fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(env.fs, path, []byte(contents), 0644))
	require.NoError(t, env.fs.Chtimes(path, modTime, modTime))
}

func (env testEnv) mkdir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, env.fs.MkdirAll(path, 0755))
}

func (env testEnv) assertFile(t *testing.T, path, contents string, modTime time.Time) {
	t.Helper()
	actual, err := afero.ReadFile(env.fs, path)
	if assert.NoError(t, err, path) {
		assert.Equal(t, contents, string(actual), path)
	}

	fi, err := env.fs.Stat(path)
	if assert.NoError(t, err, path) {
		assert.True(t, fi.ModTime().Truncate(time.Second).Equal(modTime.Truncate(time.Second)),
			"modtime of %s: expected %s, got %s", path, modTime, fi.ModTime())
	}
}

func (env testEnv) assertNotExist(t *testing.T, path string) {
	t.Helper()
	exists, err := afero.Exists(env.fs, path)
	assert.NoError(t, err)
	assert.False(t, exists, "%s should not exist", path)
}

// files returns the paths of all regular files under root, relative to it.
func (env testEnv) files(t *testing.T, root string) (files []string) {
	t.Helper()
	err := afero.Walk(env.fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.Mode().IsRegular() {
			rel, err := filepath.Rel(root, path)
			require.NoError(t, err)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func (env testEnv) messages() (messages []string) {
	for _, entry := range env.logHook.AllEntries() {
		messages = append(messages, entry.Message)
	}
	return messages
}
