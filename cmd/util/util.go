package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dirsync/pkg/errors"
)

// Mocked for unit testing.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

// HandleFatalError prints `err` and exits. Errors that carry a message meant
// for users are printed without the rest of the error chain, since the
// context is only useful for debugging.
func HandleFatalError(err error) {
	var friendly errors.Friendly
	if errors.As(err, &friendly) {
		log.WithError(err).Debug("Fatal error")
		fmt.Fprintln(stderr, friendly.FriendlyMessage())
	} else {
		log.WithError(err).Error("Fatal error")
	}
	exit(1)
}

// HandlePanic logs a panic along with its stack trace before exiting. It must
// be deferred.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Errorf("Panic: %v", r)
		exit(1)
	}
}

// ProgressFormatter formats log entries as a timestamp followed by the
// message, which reads well for the Copy/Delete lines that make up most of
// the output. Warnings and errors also print their fields and level.
type ProgressFormatter struct{}

// Format implements logrus.Formatter.
func (ProgressFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(entry.Time.Format("2006/01/02 15:04:05"))
	b.WriteByte(' ')
	b.WriteString(entry.Message)

	if entry.Level <= log.WarnLevel {
		var keys []string
		for key := range entry.Data {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			fmt.Fprintf(&b, " %s=%v", key, entry.Data[key])
		}
		fmt.Fprintf(&b, " level=%s", entry.Level)
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// LogFileHook writes every log entry to a file in addition to the normal
// output.
type LogFileHook struct {
	out       io.Writer
	formatter log.Formatter
}

// NewLogFileHook creates a hook that appends to `out`.
func NewLogFileHook(out io.Writer) LogFileHook {
	return LogFileHook{
		out: out,
		formatter: &log.TextFormatter{
			FullTimestamp: true,
			DisableColors: true,
		},
	}
}

// Levels implements logrus.Hook.
func (h LogFileHook) Levels() []log.Level {
	return log.AllLevels
}

// Fire implements logrus.Hook.
func (h LogFileHook) Fire(entry *log.Entry) error {
	b, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.out.Write(b)
	return err
}

// SetupLogFile makes the standard logger also write to the file at `path`.
// The returned function closes the file.
func SetupLogFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.WithContext(err, "open log file")
	}

	log.AddHook(NewLogFileHook(f))
	return func() {
		if err := f.Close(); err != nil {
			log.WithError(err).Debug("Failed to close log file")
		}
	}, nil
}
