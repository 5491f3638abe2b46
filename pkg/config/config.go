package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	goversion "github.com/hashicorp/go-version"
	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/pkg/errors"
)

// parseConfigErrTemplate is shown when a config file isn't valid YAML, or
// doesn't match the expected schema. The parser's errors don't say which
// field was at fault, so its message is included verbatim.
const parseConfigErrTemplate = "Configuration file could not be parsed. " +
	"Please check %q.\n" +
	"Make sure that:\n" +
	" - Every field has the right type (e.g. a list of directories, not a string)\n" +
	" - There are no misspelled or unknown fields\n\n" +
	"The parser reported:\n" +
	"%s"

type configInterface interface {
	getVersion() string
}

type incompatibleVersionError struct {
	path, constraint, actual string
}

func (err incompatibleVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err incompatibleVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The configuration file %q is incompatible "+
		"with this version of dirsync.\n"+
		"Expected a version matching %q, but got %q.", err.path, err.constraint, err.actual)
}

// parseConfig reads the YAML file at `path` into `config`. The version is
// checked against `constraint` before unknown fields are rejected, so that
// a config written for a newer release reports the version mismatch rather
// than the fields it added.
func parseConfig(path string, config configInterface, constraint string) error {
	configBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.FileNotFound{Path: path}
		}
		return errors.WithContext(err, "read file")
	}

	err = yaml.Unmarshal(configBytes, config)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}

	if !versionMatches(config.getVersion(), constraint) {
		return incompatibleVersionError{path, constraint, config.getVersion()}
	}

	err = yaml.UnmarshalStrict(configBytes, config, yaml.DisallowUnknownFields)
	if err != nil {
		return errors.NewFriendlyError(parseConfigErrTemplate, path, err)
	}
	return nil
}

func versionMatches(version, constraint string) bool {
	parsedVersion, err := goversion.NewVersion(version)
	if err != nil {
		return false
	}

	constraints, err := goversion.NewConstraint(constraint)
	if err != nil {
		return false
	}
	return constraints.Check(parsedVersion)
}
