package config

import (
	"path/filepath"
	"testing"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/ignore"
)

const configPath = "/work/dirsync.yaml"

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expConfig   Config
		expMode     Mode
		expPatterns []string
		expError    error
	}{
		{
			name: "Pair",
			input: `
source: src
destination: /mnt/share/dst/
`,
			expConfig: Config{
				Version:     InitialVersion,
				Source:      "/work/src",
				Destination: "/mnt/share/dst",
				Interval:    Duration{DefaultInterval},
			},
			expMode: ModePair,
		},
		{
			name: "Flat",
			input: `
version: "1.0"
directories:
- ../a
- /mnt/b
- ./c/../d
ignorePatterns:
- /\.git/
- \.tmp$
parallel: true
interval: 1h30m
`,
			expConfig: Config{
				Version:        "1.0",
				Directories:    []string{"/a", "/mnt/b", "/work/d"},
				IgnorePatterns: []string{`/\.git/`, `\.tmp$`},
				Parallel:       true,
				Interval:       Duration{90 * time.Minute},
			},
			expMode:     ModeFlat,
			expPatterns: []string{`/\.git/`, `\.tmp$`},
		},
		{
			name: "Grouped",
			input: `
version: "1.3"
baseDirectories: [/mnt/one, /mnt/two]
`,
			expConfig: Config{
				Version:         "1.3",
				BaseDirectories: []string{"/mnt/one", "/mnt/two"},
				Interval:        Duration{DefaultInterval},
			},
			expMode: ModeGrouped,
		},
		{
			name: "GroupedSingleBase",
			input: `
baseDirectories: [/mnt/one]
`,
			expConfig: Config{
				Version:         InitialVersion,
				BaseDirectories: []string{"/mnt/one"},
				Interval:        Duration{DefaultInterval},
			},
			expMode: ModeGrouped,
		},
		{
			name:  "NoMode",
			input: `ignorePatterns: [x]`,
			expError: errors.NewFriendlyError("The config %q doesn't say what "+
				"to synchronize. Set either source and destination, directories, "+
				"or baseDirectories.", configPath),
		},
		{
			name: "SeveralModes",
			input: `
source: /a
destination: /b
baseDirectories: [/c]
`,
			expError: errors.NewFriendlyError("The config %q sets up more than "+
				"one synchronization mode (%s). Only one of source and "+
				"destination, directories, or baseDirectories may be set.",
				configPath, "pair, grouped"),
		},
		{
			name:     "MissingDestination",
			input:    `source: /a`,
			expError: errors.WithContext(errors.MissingFieldError{Field: "destination"}, configPath),
		},
		{
			name:     "MissingSource",
			input:    `destination: /a`,
			expError: errors.WithContext(errors.MissingFieldError{Field: "source"}, configPath),
		},
		{
			name:  "SingleDirectory",
			input: `directories: [/a]`,
			expError: errors.NewFriendlyError("The config %q must list at "+
				"least two directories to synchronize.", configPath),
		},
		{
			name:  "DuplicateDirectory",
			input: `directories: [/a, /b/../a]`,
			expError: errors.WithContext(errors.NewFriendlyError("The config %q lists "+
				"the directory %q more than once.", configPath, "/a"), "resolve paths"),
		},
		{
			name:  "NestedDirectory",
			input: "source: /data\ndestination: /data/backup",
			expError: errors.WithContext(errors.NewFriendlyError("The config %q "+
				"lists %q, which is inside %q. Synchronized directories can't "+
				"contain each other.", configPath, "/data/backup", "/data"), "resolve paths"),
		},
		{
			name: "IncompatibleVersion",
			input: `
version: "2.0"
directories: [/a, /b]
`,
			expError: errors.WithContext(incompatibleVersionError{
				path:       configPath,
				constraint: SupportedVersions,
				actual:     "2.0",
			}, "parse"),
		},
		{
			name: "IncompatibleVersionBeforeExtraFields",
			input: `
version: bogus
extra: field
`,
			expError: errors.WithContext(incompatibleVersionError{
				path:       configPath,
				constraint: SupportedVersions,
				actual:     "bogus",
			}, "parse"),
		},
		{
			name:  "NegativeInterval",
			input: "directories: [/a, /b]\ninterval: -1m",
			expError: errors.NewFriendlyError(
				"The config %q has an interval of %q, but it must be positive.",
				configPath, "-1m0s"),
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, configPath, []byte(test.input), 0644))

			config, err := Parse(configPath)
			assert.Equal(t, test.expError, err)
			if test.expError != nil {
				return
			}

			assert.Equal(t, configPath, config.GetPath())
			assert.Equal(t, test.expMode, config.Mode())
			assert.Equal(t, test.expPatterns, config.Matcher().Patterns())

			config.path = ""
			config.mode = ""
			config.matcher = ignore.Matcher{}
			assert.Equal(t, test.expConfig, config)
		})
	}
}

func TestParseFriendlyErrors(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expContains string
	}{
		{
			name:        "ExtraField",
			input:       "directories: [/a, /b]\nextra: field",
			expContains: `unknown field "extra"`,
		},
		{
			name:        "WrongType",
			input:       "directories: /a",
			expContains: "Configuration file could not be parsed",
		},
		{
			name:        "BadInterval",
			input:       "directories: [/a, /b]\ninterval: soon",
			expContains: "Configuration file could not be parsed",
		},
		{
			name:        "BadPattern",
			input:       "directories: [/a, /b]\nignorePatterns: ['(']",
			expContains: "must be a valid regular expression",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, configPath, []byte(test.input), 0644))

			_, err := Parse(configPath)
			require.Error(t, err)

			var friendly errors.FriendlyError
			require.True(t, errors.As(err, &friendly), err.Error())
			assert.Contains(t, friendly.FriendlyMessage(), test.expContains)
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	fs = afero.NewMemMapFs()

	_, err := Parse(configPath)
	assert.Equal(t, errors.NewFriendlyError("The dirsync config "+
		"file doesn't exist at %q. Please run `dirsync config init` "+
		"to create one.", configPath), err)
}

func TestParseExpandsHome(t *testing.T) {
	home := "/home/dirsync"
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	defer func() { homedir.DisableCache = false }()

	fs = afero.NewMemMapFs()
	path := filepath.Join(home, "dirsync.yaml")
	input := "source: ~/work\ndestination: share"
	require.NoError(t, afero.WriteFile(fs, path, []byte(input), 0644))

	config, err := Parse("~/dirsync.yaml")
	require.NoError(t, err)
	assert.Equal(t, path, config.GetPath())
	assert.Equal(t, "/home/dirsync/work", config.Source)
	assert.Equal(t, "/home/dirsync/share", config.Destination)
}

func TestParseWrittenConfig(t *testing.T) {
	fs = afero.NewMemMapFs()

	cfg := Config{
		Directories:    []string{"/a", "/b"},
		IgnorePatterns: []string{`\.tmp$`},
		Parallel:       true,
	}

	// Write the config to disk, and assert that we get the same config when
	// we parse it.
	require.NoError(t, Write(configPath, cfg))

	parsed, err := Parse(configPath)
	require.NoError(t, err)
	assert.Equal(t, ModeFlat, parsed.Mode())
	assert.Equal(t, CurrentVersion, parsed.Version)
	assert.Equal(t, cfg.Directories, parsed.Directories)
	assert.Equal(t, cfg.IgnorePatterns, parsed.IgnorePatterns)
	assert.True(t, parsed.Parallel)
	assert.Equal(t, DefaultInterval, parsed.Interval.Duration)
}

func TestRoots(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b"},
		Config{Source: "/a", Destination: "/b", mode: ModePair}.Roots())
	assert.Equal(t, []string{"/a", "/b", "/c"},
		Config{Directories: []string{"/a", "/b", "/c"}, mode: ModeFlat}.Roots())
	assert.Equal(t, []string{"/x"},
		Config{BaseDirectories: []string{"/x"}, mode: ModeGrouped}.Roots())
	assert.Nil(t, Config{}.Roots())
}

func TestResolve(t *testing.T) {
	cfg, err := Resolve(Config{Source: "/a/", Destination: "b/../c"})
	require.NoError(t, err)
	assert.Equal(t, ModePair, cfg.Mode())
	assert.Equal(t, []string{"/a", "c"}, cfg.Roots())
	assert.Equal(t, DefaultInterval, cfg.Interval.Duration)
	assert.Empty(t, cfg.GetPath())

	cfg, err = Resolve(Config{BaseDirectories: []string{"/a"}, IgnorePatterns: []string{`\.tmp$`}})
	require.NoError(t, err)
	assert.Equal(t, ModeGrouped, cfg.Mode())
	assert.True(t, cfg.Matcher().IsIgnored("/x.tmp"))

	_, err = Resolve(Config{Source: "/a"})
	assert.Equal(t, errors.MissingFieldError{Field: "destination"}, err)

	_, err = Resolve(Config{Directories: []string{"/a"}})
	assert.Equal(t, errors.NewFriendlyError("The config must list at least "+
		"two directories to synchronize."), err)

	_, err = Resolve(Config{Directories: []string{"/a", "/b"}, IgnorePatterns: []string{"["}})
	assert.Contains(t, errors.GetFriendlyMessage(err), "The config has invalid ignorePatterns.")
}
