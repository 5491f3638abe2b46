package errors

import (
	"fmt"
	"strings"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// NoSyncableDirectory is returned when none of the directories in a
// synchronization group contain a file that isn't ignored, so there's no way
// to decide which one is authoritative.
type NoSyncableDirectory struct {
	Directories []string
}

func (err NoSyncableDirectory) Error() string {
	return fmt.Sprintf("no synchronizable files in any of [%s]",
		strings.Join(err.Directories, ", "))
}

// FriendlyMessage explains what the user can do about the error.
func (err NoSyncableDirectory) FriendlyMessage() string {
	return fmt.Sprintf("None of the following directories contain a file "+
		"that isn't ignored, so there's nothing to synchronize:\n  %s\n\n"+
		"Check the directory paths and the ignorePatterns in your config.",
		strings.Join(err.Directories, "\n  "))
}
