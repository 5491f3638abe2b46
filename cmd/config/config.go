package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/buger/goterm"
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
	stdout              io.Writer = os.Stdout
	stdin               io.Reader = os.Stdin
	fs                            = afero.NewOsFs()
	parseConfig                   = config.Parse
	writeConfig                   = config.Write
	getWorkingDirectory           = os.Getwd
)

// New creates a new `config` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the dirsync configuration",
	}
	cmd.AddCommand(newInitCommand(), newShowCommand())
	return cmd
}

type initOptions struct {
	cfg   config.Config
	out   string
	force bool
}

func newInitCommand() *cobra.Command {
	var opts initOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a new config file",
		Long: "Write a new config file.\n\n" +
			"Pass --source and --destination to mirror one directory onto\n" +
			"another, --directory at least twice to keep several directories\n" +
			"in sync, or --base to keep the projects within several base\n" +
			"directories in sync. Without any of them, `dirsync config init`\n" +
			"interactively prompts for a source and destination.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := runInit(opts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s",
					errors.GetFriendlyMessage(err))
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&opts.cfg.Source, "source", "",
		"The directory to mirror from.")
	cmd.Flags().StringVar(&opts.cfg.Destination, "destination", "",
		"The directory to mirror to.")
	cmd.Flags().StringSliceVar(&opts.cfg.Directories, "directory", nil,
		"A directory to keep in sync with the other directories. May be repeated.")
	cmd.Flags().StringSliceVar(&opts.cfg.BaseDirectories, "base", nil,
		"A directory whose projects are kept in sync with the other bases. May be repeated.")
	cmd.Flags().StringSliceVar(&opts.cfg.IgnorePatterns, "ignore", nil,
		"A regular expression matching paths to leave alone. May be repeated.")
	cmd.Flags().BoolVar(&opts.cfg.Parallel, "parallel", false,
		"Mirror to the directories concurrently.")
	cmd.Flags().DurationVar(&opts.cfg.Interval.Duration, "interval", config.DefaultInterval,
		"How often `dirsync watch` synchronizes when nothing changes.")
	cmd.Flags().StringVarP(&opts.out, "out", "o", config.DefaultPath,
		"Where to write the config.")
	cmd.Flags().BoolVar(&opts.force, "force", false,
		"Overwrite the config file if it already exists.")
	return cmd
}

func runInit(opts initOptions) error {
	cfg := opts.cfg
	if cfg.Source == "" && cfg.Destination == "" &&
		len(cfg.Directories) == 0 && len(cfg.BaseDirectories) == 0 {
		var err error
		cfg, err = promptPair(cfg)
		if err != nil {
			return errors.WithContext(err, "prompt")
		}
	}

	if _, err := config.Resolve(cfg); err != nil {
		return err
	}

	exists, err := afero.Exists(fs, opts.out)
	if err != nil {
		return errors.WithContext(err, "stat")
	}
	if exists && !opts.force {
		return errors.NewFriendlyError("%q already exists. "+
			"Pass --force to overwrite it.", opts.out)
	}

	if err := writeConfig(opts.out, cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", opts.out)
	return nil
}

// promptPair interacts with the user to decide which directory to mirror
// where.
func promptPair(cfg config.Config) (config.Config, error) {
	var defaultSource string
	if wd, err := getWorkingDirectory(); err == nil {
		defaultSource = wd
	} else {
		log.WithError(err).Debug("Failed to get working directory")
	}

	stdinReader := bufio.NewReader(stdin)
	source, err := promptUser(stdinReader,
		"Enter the directory to mirror from.\n"+
			"It defaults to the current directory.",
		"Source directory", defaultSource)
	if err != nil {
		return config.Config{}, err
	}

	destination, err := promptUser(stdinReader,
		"Enter the directory to mirror to.\n"+
			"Anything in it that isn't in the source will be moved to a\n"+
			".backup directory next to it.",
		"Destination directory", "")
	if err != nil {
		return config.Config{}, err
	}

	cfg.Source = source
	cfg.Destination = destination
	return cfg, nil
}

func promptUser(stdinReader *bufio.Reader, helpString, prompt, defaultAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	if defaultAnswer != "" {
		fmt.Fprintln(stdout)
		fmt.Fprintf(stdout, "\t1. %s (recommended)\n", defaultAnswer)
		fmt.Fprintf(stdout, "\t2. (Enter manually)\n")
		fmt.Fprintln(stdout)

		for {
			fmt.Fprint(stdout, "Please choose one [1-2]: ")
			choiceStr, err := stdinReader.ReadString('\n')
			if err != nil {
				return "", err
			}

			choiceStr = strings.TrimRight(choiceStr, "\n")

			// Default to the first choice if user doesn't enter anything.
			if choiceStr == "" {
				return defaultAnswer, nil
			}

			choice, err := strconv.Atoi(choiceStr)
			if err != nil || choice < 1 || choice > 2 {
				// Try again if the input is invalid.
				continue
			}

			if choice == 1 {
				return defaultAnswer, nil
			}
			break
		}
	}

	for {
		fmt.Fprint(stdout, "Please enter manually: ")
		resp, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}

		if resp = strings.TrimRight(resp, "\n"); resp != "" {
			return resp, nil
		}
	}
}

func newShowCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the directories the config synchronizes",
		Long: "Print the directories the config synchronizes. For a list of\n" +
			"directories, the one that would currently be elected as the\n" +
			"freshest is highlighted.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := runShow(configPath); err != nil {
				util.HandleFatalError(errors.WithContext(err, "show config"))
			}
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath,
		"The path to the dirsync config file.")
	return cmd
}

func runShow(configPath string) error {
	cfg, err := parseConfig(configPath)
	if err != nil {
		return errors.WithContext(err, "read config")
	}

	fmt.Fprintf(stdout, "Config:   %s\n", cfg.GetPath())
	fmt.Fprintf(stdout, "Mode:     %s\n", cfg.Mode())
	fmt.Fprintf(stdout, "Interval: %s\n", cfg.Interval)
	if cfg.Parallel {
		fmt.Fprintln(stdout, "Parallel: yes")
	}

	if patterns := cfg.Matcher().Patterns(); len(patterns) != 0 {
		fmt.Fprintln(stdout, "Ignoring:")
		for _, pattern := range patterns {
			fmt.Fprintf(stdout, "\t%s\n", pattern)
		}
	}

	fmt.Fprintln(stdout)
	switch cfg.Mode() {
	case config.ModePair:
		fmt.Fprintf(stdout, "%s\n\t-> %s\n", goterm.Color(cfg.Source, goterm.GREEN), cfg.Destination)
	case config.ModeFlat:
		return showFreshness(cfg)
	case config.ModeGrouped:
		fmt.Fprintln(stdout, "Projects within each of:")
		for _, base := range cfg.BaseDirectories {
			fmt.Fprintf(stdout, "\t%s\n", base)
		}
	}
	return nil
}

// showFreshness prints each directory along with its most recent
// modification, highlighting the one that would be elected.
func showFreshness(cfg config.Config) error {
	syncer := dirsync.New(log.StandardLogger(), cfg.Matcher().IsIgnored, dirsync.WithFs(fs))
	freshness, err := syncer.Freshness(cfg.Directories)
	if err != nil {
		return errors.WithContext(err, "get freshness")
	}

	modTimes := map[string]time.Time{}
	for _, dir := range freshness {
		modTimes[dir.Directory] = dir.ModTime
	}

	freshest, err := syncer.SelectFreshest(cfg.Directories)
	if err != nil {
		var noFiles errors.NoSyncableDirectory
		if !errors.As(err, &noFiles) {
			return errors.WithContext(err, "select freshest")
		}
	}

	for _, dir := range cfg.Directories {
		modTime, ok := modTimes[dir]
		switch {
		case dir == freshest:
			fmt.Fprintf(stdout, "%s\t%s (freshest)\n", goterm.Color(dir, goterm.GREEN),
				modTime.Format(time.RFC3339))
		case !ok:
			fmt.Fprintf(stdout, "%s\t%s\n", dir, goterm.Color("(no files)", goterm.YELLOW))
		default:
			fmt.Fprintf(stdout, "%s\t%s\n", dir, modTime.Format(time.RFC3339))
		}
	}
	return nil
}
