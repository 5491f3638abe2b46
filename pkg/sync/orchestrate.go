package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/dirsync/pkg/errors"
)

// Pass records a single Mirror call made while synchronizing a group.
type Pass struct {
	Source      string
	Destination string
	Deletable   bool
	Result
}

// Report describes everything that happened while synchronizing.
type Report struct {
	// Elected contains the authoritative directory of every group that was
	// synchronized.
	Elected []string
	Passes  []Pass
}

// Totals sums up the results of all passes.
func (r Report) Totals() (total Result) {
	for _, pass := range r.Passes {
		total.add(pass.Result)
	}
	return total
}

func (r *Report) merge(other Report) {
	r.Elected = append(r.Elected, other.Elected...)
	r.Passes = append(r.Passes, other.Passes...)
}

// SyncPair mirrors `source` onto `destination`, deleting anything in
// `destination` that isn't in `source`.
func (s *Syncer) SyncPair(ctx context.Context, source, destination string) (Report, error) {
	res, err := s.Mirror(ctx, source, destination, true)
	report := Report{
		Elected: []string{source},
		Passes:  []Pass{{Source: source, Destination: destination, Deletable: true, Result: res}},
	}
	return report, err
}

// SyncFlat converges `directories` onto whichever of them is the freshest.
//
// The freshest directory is first mirrored onto each of the others with
// deletion enabled. Then each of the others is mirrored back onto the
// freshest one with deletion disabled, so that files that only existed on
// one of them aren't lost.
func (s *Syncer) SyncFlat(ctx context.Context, directories []string) (Report, error) {
	freshest, err := s.SelectFreshest(directories)
	if err != nil {
		return Report{}, errors.WithContext(err, "select freshest directory")
	}
	s.log.WithField("directory", freshest).Debug("Elected freshest directory")

	var followers []string
	for _, dir := range directories {
		if dir != freshest {
			followers = append(followers, dir)
		}
	}

	report := Report{Elected: []string{freshest}}
	converged, err := s.mirrorToFollowers(ctx, freshest, followers)
	report.Passes = append(report.Passes, converged...)
	if err != nil {
		return report, err
	}

	// Every pass in this phase writes into `freshest`, so they must run one
	// at a time.
	for _, follower := range followers {
		res, err := s.Mirror(ctx, follower, freshest, false)
		report.Passes = append(report.Passes, Pass{
			Source:      follower,
			Destination: freshest,
			Deletable:   false,
			Result:      res,
		})
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

// mirrorToFollowers mirrors `source` onto each follower with deletion
// enabled. In parallel mode, the passes run concurrently. Either way, an
// error in one pass doesn't stop the others. Every pass that ran is
// returned, along with the first error.
func (s *Syncer) mirrorToFollowers(ctx context.Context, source string, followers []string) (
	[]Pass, error) {

	passes := make([]Pass, len(followers))
	run := func(i int) error {
		res, err := s.Mirror(ctx, source, followers[i], true)
		passes[i] = Pass{
			Source:      source,
			Destination: followers[i],
			Deletable:   true,
			Result:      res,
		}
		return err
	}

	if !s.parallel {
		var firstErr error
		for i := range followers {
			if err := run(i); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return passes, firstErr
	}

	var group errgroup.Group
	for i := range followers {
		i := i
		group.Go(func() error {
			return run(i)
		})
	}
	return passes, group.Wait()
}

// SyncGrouped synchronizes each project across `bases`. A project is a
// directory directly within the first base. For each project, the directory
// of the same name is created in the other bases if needed, and the project
// directories are then synchronized with SyncFlat.
//
// Projects are synchronized in lexical order. The first project that fails,
// including one without any files to elect a freshest directory from, stops
// the run.
func (s *Syncer) SyncGrouped(ctx context.Context, bases []string) (Report, error) {
	if len(bases) == 0 {
		return Report{}, errors.New("no base directories")
	}

	projects, err := s.listProjects(bases[0])
	if err != nil {
		return Report{}, errors.WithContext(err, "list projects")
	}
	if len(projects) == 0 {
		s.log.WithField("base", bases[0]).Warn("No projects to synchronize")
	}

	var report Report
	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var dirs []string
		for _, base := range bases {
			dir := filepath.Join(base, project)
			if err := s.fs.MkdirAll(dir, 0755); err != nil {
				return report, errors.WithContext(err, fmt.Sprintf("create project directory %s", dir))
			}
			dirs = append(dirs, dir)
		}

		projectReport, err := s.SyncFlat(ctx, dirs)
		report.merge(projectReport)
		if err != nil {
			return report, errors.WithContext(err, fmt.Sprintf("sync project %q", project))
		}
	}
	return report, nil
}

// listProjects returns the names of the directories directly within `base`,
// in lexical order. Backup directories aren't projects.
func (s *Syncer) listProjects(base string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: base}
		}
		return nil, err
	}

	var projects []string
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() != backupDirName {
			projects = append(projects, entry.Name())
		}
	}
	return projects, nil
}

// LogReport logs a one line summary of `report`.
func LogReport(logger log.FieldLogger, report Report) {
	totals := report.Totals()
	entry := logger.WithField("backup", backupDirs(report))
	if totals.Failed != 0 {
		entry.Warnf("Copied %d files, removed %d. %d files failed.",
			totals.Copied, totals.Deleted, totals.Failed)
		return
	}
	entry.Infof("Copied %d files, removed %d.", totals.Copied, totals.Deleted)
}

func backupDirs(report Report) (dirs []string) {
	for _, pass := range report.Passes {
		if pass.BackupDir != "" {
			dirs = append(dirs, pass.BackupDir)
		}
	}
	return dirs
}
