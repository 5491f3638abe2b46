package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/dirsync/cmd/config"
	syncCmd "github.com/sidkik/dirsync/cmd/sync"
	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/cmd/version"
	"github.com/sidkik/dirsync/cmd/watch"
	"github.com/sidkik/dirsync/pkg/errors"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "DIRSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	log.SetFormatter(util.ProgressFormatter{})
	log.SetOutput(os.Stdout)
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	var logFile string
	var closeLogFile func()
	rootCmd := &cobra.Command{
		Use:          "dirsync",
		Short:        "Keep directories in sync, backing up anything replaced",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if logFile == "" {
				return
			}

			var err error
			closeLogFile, err = util.SetupLogFile(logFile)
			if err != nil {
				util.HandleFatalError(errors.WithContext(err, "setup log file"))
			}
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if closeLogFile != nil {
				closeLogFile()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Also append the log to this file.")
	rootCmd.AddCommand(
		configCmd.New(),
		syncCmd.New(),
		version.New(),
		watch.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
