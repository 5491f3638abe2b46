package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/ignore"
)

const (
	// DefaultPath is where the config is read from if no path is given. It's
	// relative to the working directory.
	DefaultPath = "dirsync.yaml"

	// InitialVersion is the version assumed for config files that don't
	// specify one.
	InitialVersion = "1.0"

	// CurrentVersion is the version written by this binary.
	CurrentVersion = "1.0"

	// SupportedVersions is the range of config versions this binary can
	// read.
	SupportedVersions = ">= 1.0, < 2.0"

	// DefaultInterval is how often watch mode synchronizes when nothing
	// changes.
	DefaultInterval = 15 * time.Minute
)

// Mode selects how the configured directories are synchronized.
type Mode string

const (
	// ModePair mirrors a single source onto a single destination.
	ModePair Mode = "pair"

	// ModeFlat converges a list of directories onto the freshest one.
	ModeFlat Mode = "flat"

	// ModeGrouped converges each project directory across a list of base
	// directories.
	ModeGrouped Mode = "grouped"
)

// Config is the dirsync configuration file.
type Config struct {
	Version string `json:"version,omitempty"`

	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`

	Directories     []string `json:"directories,omitempty"`
	BaseDirectories []string `json:"baseDirectories,omitempty"`

	IgnorePatterns []string `json:"ignorePatterns,omitempty"`
	Parallel       bool     `json:"parallel,omitempty"`
	Interval       Duration `json:"interval,omitempty"`

	// Only populated by Parse.
	path    string
	mode    Mode
	matcher ignore.Matcher
}

func (c Config) getVersion() string {
	return c.Version
}

// GetPath returns the path that the config was parsed from.
func (c Config) GetPath() string {
	return c.path
}

// Mode returns which synchronization mode the config selects.
func (c Config) Mode() Mode {
	return c.mode
}

// Matcher returns the compiled IgnorePatterns.
func (c Config) Matcher() ignore.Matcher {
	return c.matcher
}

// Roots returns every directory named by the config, in the order they were
// listed.
func (c Config) Roots() []string {
	switch c.mode {
	case ModePair:
		return []string{c.Source, c.Destination}
	case ModeFlat:
		return c.Directories
	case ModeGrouped:
		return c.BaseDirectories
	}
	return nil
}

// Duration is a time.Duration written as a string such as "15m".
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("interval must be a string, e.g. \"15m\"")
	}

	parsed, err := time.ParseDuration(str)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Parse reads and validates the config at `path`. Directory paths in the
// returned config are absolute if `path` is, have `~` expanded, and are
// cleaned. Relative directory paths are evaluated relative to the config
// file.
func Parse(path string) (Config, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return Config{}, errors.WithContext(err, "expand config path")
	}

	config := Config{Version: InitialVersion}
	if err := parseConfig(path, &config, SupportedVersions); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Config{}, errors.NewFriendlyError("The dirsync config "+
				"file doesn't exist at %q. Please run `dirsync config init` "+
				"to create one.", path)
		}
		return Config{}, errors.WithContext(err, "parse")
	}
	config.path = path
	return config.resolve()
}

// Resolve validates a config that wasn't read from a file, such as one
// built from command line flags, and fills in everything that Parse would.
// Relative paths are left relative.
func Resolve(cfg Config) (Config, error) {
	cfg.path = ""
	return cfg.resolve()
}

func (c Config) resolve() (Config, error) {
	if c.Interval.Duration == 0 {
		c.Interval.Duration = DefaultInterval
	} else if c.Interval.Duration < 0 {
		return Config{}, errors.NewFriendlyError(
			"%s has an interval of %q, but it must be positive.", c.name(), c.Interval)
	}

	mode, err := c.selectMode()
	if err != nil {
		return Config{}, err
	}
	c.mode = mode

	if err := c.resolvePaths(); err != nil {
		return Config{}, errors.WithContext(err, "resolve paths")
	}

	c.matcher, err = ignore.Compile(c.IgnorePatterns)
	if err != nil {
		return Config{}, c.badPatternsError(err)
	}
	return c, nil
}

// selectMode checks that exactly one mode is configured, and that it has
// enough directories.
func (c Config) selectMode() (Mode, error) {
	var modes []Mode
	if c.Source != "" || c.Destination != "" {
		modes = append(modes, ModePair)
	}
	if len(c.Directories) != 0 {
		modes = append(modes, ModeFlat)
	}
	if len(c.BaseDirectories) != 0 {
		modes = append(modes, ModeGrouped)
	}

	switch len(modes) {
	case 0:
		return "", errors.NewFriendlyError("%s doesn't say what to "+
			"synchronize. Set either source and destination, directories, "+
			"or baseDirectories.", c.name())
	case 1:
	default:
		var names []string
		for _, mode := range modes {
			names = append(names, string(mode))
		}
		return "", errors.NewFriendlyError("%s sets up more than one "+
			"synchronization mode (%s). Only one of source and destination, "+
			"directories, or baseDirectories may be set.",
			c.name(), strings.Join(names, ", "))
	}

	mode := modes[0]
	switch mode {
	case ModePair:
		if c.Source == "" {
			return "", c.missingField("source")
		}
		if c.Destination == "" {
			return "", c.missingField("destination")
		}
	case ModeFlat:
		if len(c.Directories) < 2 {
			return "", errors.NewFriendlyError("%s must list at least two "+
				"directories to synchronize.", c.name())
		}
	}
	return mode, nil
}

// name describes the config in error messages.
func (c Config) name() string {
	if c.path == "" {
		return "The config"
	}
	return fmt.Sprintf("The config %q", c.path)
}

func (c Config) missingField(field string) error {
	err := errors.MissingFieldError{Field: field}
	if c.path == "" {
		return err
	}
	return errors.WithContext(err, c.path)
}

func (c Config) badPatternsError(err error) error {
	return errors.NewFriendlyError("%s has invalid ignorePatterns. Each "+
		"pattern must be a valid regular expression.\n"+
		"For reference, here is the error from the parser:\n%s", c.name(), err)
}

func (c *Config) resolvePaths() error {
	var err error
	resolve := func(path string) string {
		if err != nil {
			return path
		}

		var expanded string
		expanded, err = homedir.Expand(path)
		if err != nil {
			err = errors.WithContext(err, fmt.Sprintf("expand %q", path))
			return path
		}

		if !filepath.IsAbs(expanded) && c.path != "" {
			expanded = filepath.Join(filepath.Dir(c.path), expanded)
		}
		return filepath.Clean(expanded)
	}

	if c.Source != "" {
		c.Source = resolve(c.Source)
	}
	if c.Destination != "" {
		c.Destination = resolve(c.Destination)
	}
	resolveAll := func(paths []string) (resolved []string) {
		for _, path := range paths {
			resolved = append(resolved, resolve(path))
		}
		return resolved
	}
	c.Directories = resolveAll(c.Directories)
	c.BaseDirectories = resolveAll(c.BaseDirectories)
	if err != nil {
		return err
	}

	roots := c.Roots()
	seen := map[string]struct{}{}
	for _, root := range roots {
		if _, ok := seen[root]; ok {
			return errors.NewFriendlyError("%s lists the directory %q more "+
				"than once.", c.name(), root)
		}
		seen[root] = struct{}{}
	}

	for i, root := range roots {
		for _, other := range roots[i+1:] {
			outer, inner := root, other
			if !isWithin(outer, inner) {
				outer, inner = other, root
			}
			if isWithin(outer, inner) {
				return errors.NewFriendlyError("%s lists %q, which is inside %q. "+
					"Synchronized directories can't contain each other.",
					c.name(), inner, outer)
			}
		}
	}
	return nil
}

func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && rel != ".." &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Write writes `cfg` to `path`, setting its version to CurrentVersion.
func Write(path string, cfg Config) error {
	cfg.Version = CurrentVersion
	if cfg.Interval.Duration == 0 {
		cfg.Interval.Duration = DefaultInterval
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}
