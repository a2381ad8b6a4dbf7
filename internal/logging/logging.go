// Package logging sets up autopkg's process-wide logger: leveled,
// colored output to stderr (color only when stderr is a terminal) and
// an uncolored append-only copy of every record written to the log
// file under the autopkg home directory.
package logging

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/go-autopkg/autopkg/internal/env"
)

// Level names mirror the original tool's LogLevel enum. logrus has no
// "header" or "good" level; those two are carried as structured fields
// rather than distinct logrus levels, consumed by the formatter below.
const (
	FieldKind = "kind"
	KindHeader = "header"
	KindGood   = "good"
)

var (
	levelColor = map[logrus.Level]*color.Color{
		logrus.ErrorLevel: color.New(color.FgRed),
		logrus.WarnLevel:  color.New(color.FgYellow),
		logrus.InfoLevel:  color.New(),
		logrus.DebugLevel: color.New(color.Faint),
		logrus.TraceLevel: color.New(color.Faint),
	}
	headerColor = color.New(color.Bold, color.Underline)
	goodColor   = color.New(color.FgGreen)
)

type consoleFormatter struct {
	colorize bool
}

func (f *consoleFormatter) Format(e *logrus.Entry) ([]byte, error) {
	msg := e.Message
	if !f.colorize {
		return append([]byte(msg), '\n'), nil
	}
	c := levelColor[e.Level]
	if kind, ok := e.Data[FieldKind]; ok {
		switch kind {
		case KindHeader:
			c = headerColor
		case KindGood:
			c = goodColor
		}
	}
	if c == nil {
		c = color.New()
	}
	return []byte(c.Sprint(msg) + "\n"), nil
}

type fileFormatter struct{}

func (fileFormatter) Format(e *logrus.Entry) ([]byte, error) {
	return []byte(e.Time.Format("2006-01-02T15:04:05Z0700") + ":" + e.Level.String() + "\t" + e.Message + "\n"), nil
}

// Init configures the standard logrus logger: colored (if attached to a
// terminal) output on stderr plus an append-only, uncolored copy of
// every record in env.LogFile(). It must be called once, early in
// main(), before any other package logs.
func Init() error {
	if err := os.MkdirAll(env.Home, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(env.LogFile(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	logrus.SetLevel(logrus.TraceLevel)
	logrus.SetOutput(io.Discard) // the hook below does all the writing
	logrus.AddHook(&teeHook{
		console: &logrus.Logger{
			Out:       os.Stderr,
			Formatter: &consoleFormatter{colorize: isatty.IsTerminal(os.Stderr.Fd())},
			Level:     logrus.TraceLevel,
		},
		file: &logrus.Logger{
			Out:       f,
			Formatter: fileFormatter{},
			Level:     logrus.TraceLevel,
		},
	})
	return nil
}

// teeHook fires every log record through two differently-formatted
// loggers: colored stderr for the human, plain text for the log file.
type teeHook struct {
	console *logrus.Logger
	file    *logrus.Logger
}

func (h *teeHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *teeHook) Fire(e *logrus.Entry) error {
	h.file.WithFields(e.Data).Log(e.Level, e.Message)
	h.console.WithFields(e.Data).Log(e.Level, e.Message)
	return nil
}

// Header logs a visually distinct section heading, e.g. before listing
// targets.
func Header(msg string) {
	logrus.WithField(FieldKind, KindHeader).Info(msg)
}

// Good logs a positive confirmation, e.g. a successful build.
func Good(format string, args ...interface{}) {
	logrus.WithField(FieldKind, KindGood).Infof(format, args...)
}
