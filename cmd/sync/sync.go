package sync

import (
	"context"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/pkg/config"
	"github.com/sidkik/dirsync/pkg/errors"
	dirsync "github.com/sidkik/dirsync/pkg/sync"
)

// Mocked for unit testing.
var (
	fs    = afero.NewOsFs()
	clock = clockwork.NewRealClock()
)

// New creates a new `sync` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the configured directories once",
		Long: "Synchronize the directories in the config file once.\n\n" +
			"Files that are overwritten or removed are moved into a .backup\n" +
			"directory next to the directory they were removed from.",
		Run: func(_ *cobra.Command, _ []string) {
			cfg, err := config.Parse(configPath)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "read config"))
			}

			if _, err := Run(context.Background(), log.StandardLogger(), cfg); err != nil {
				util.HandleFatalError(err)
			}
			log.Info("Completed.")
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath,
		"The path to the dirsync config file.")
	return cmd
}

// Run synchronizes everything described by `cfg` once, and logs a summary.
func Run(ctx context.Context, logger log.FieldLogger, cfg config.Config) (dirsync.Report, error) {
	syncer := dirsync.New(logger, cfg.Matcher().IsIgnored,
		dirsync.WithFs(fs),
		dirsync.WithClock(clock),
		dirsync.WithParallel(cfg.Parallel))

	var report dirsync.Report
	var err error
	switch cfg.Mode() {
	case config.ModePair:
		report, err = syncer.SyncPair(ctx, cfg.Source, cfg.Destination)
	case config.ModeFlat:
		report, err = syncer.SyncFlat(ctx, cfg.Directories)
	case config.ModeGrouped:
		report, err = syncer.SyncGrouped(ctx, cfg.BaseDirectories)
	default:
		return dirsync.Report{}, errors.New("no synchronization mode configured")
	}

	if len(report.Passes) != 0 {
		dirsync.LogReport(logger, report)
	}
	if err != nil {
		return report, errors.WithContext(err, string(cfg.Mode())+" sync")
	}
	return report, nil
}
