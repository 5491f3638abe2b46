package watch

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	syncCmd "github.com/sidkik/dirsync/cmd/sync"
	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/pkg/config"
	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/fswatch"
)

// Mocked for unit testing.
var (
	clock           = clockwork.NewRealClock()
	watchRoots      = watchFiles
	runSync         = syncCmd.Run
	shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
)

// New creates a new `watch` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the configured directories synchronized",
		Long: "Synchronize the directories in the config file, and then\n" +
			"synchronize again whenever a file in them changes, or when the\n" +
			"config's interval elapses. Runs until interrupted.",
		Run: func(_ *cobra.Command, _ []string) {
			cfg, err := config.Parse(configPath)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "read config"))
			}

			ctx, cancel := signal.NotifyContext(context.Background(), shutdownSignals...)
			defer cancel()

			if err := run(ctx, cfg); err != nil {
				util.HandleFatalError(err)
			}
			log.Info("Completed.")
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath,
		"The path to the dirsync config file.")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	changes, stop, err := watchRoots(cfg)
	if err != nil {
		log.WithError(err).Warn("Failed to watch for file changes. " +
			"Only synchronizing every " + cfg.Interval.String() + ".")
		changes, stop = nil, func() {}
	}
	defer stop()

	return loop(ctx, cfg.Interval.Duration, changes, func(ctx context.Context) error {
		_, err := runSync(ctx, log.StandardLogger(), cfg)
		return err
	})
}

// loop calls syncOnce immediately, and then again whenever `changes` fires or
// `interval` passes, until `ctx` is done.
//
// Errors from syncOnce are logged rather than returned, so that a directory
// that's temporarily unavailable (e.g. an unmounted drive) doesn't stop the
// watcher.
func loop(ctx context.Context, interval time.Duration, changes <-chan struct{},
	syncOnce func(context.Context) error) error {

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := syncOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("Failed to synchronize. Will retry.")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			log.Debug("Files changed")
		case <-ticker.Chan():
			log.Debug("Interval elapsed")
		}
	}
}

func watchFiles(cfg config.Config) (<-chan struct{}, func(), error) {
	watcher, err := fswatch.Watch(cfg.Roots(), cfg.Matcher().IsIgnored)
	if err != nil {
		return nil, nil, err
	}

	return watcher.Events(), func() {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Debug("Failed to close file watcher")
		}
	}, nil
}
