// Package logging builds the structured loggers of the lltrace tools
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/Manu343726/lltrace/pkg/utils"
	slogmulti "github.com/samber/slog-multi"
)

var ErrUnknownFormat = errors.New("unknown log format")

type Settings struct {
	Level slog.Level
	// Format of the console output, text or json
	Format string
	// Console output, os.Stderr by default
	Output io.Writer
	// Path of an additional JSON log, none if empty
	File string
}

// Logger is a logger that may own a log file
type Logger struct {
	*slog.Logger
	file *os.File
}

// Closes the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func consoleHandler(settings Settings, options *slog.HandlerOptions) (slog.Handler, error) {
	output := settings.Output
	if output == nil {
		output = os.Stderr
	}

	switch settings.Format {
	case "", "text":
		return slog.NewTextHandler(output, options), nil
	case "json":
		return slog.NewJSONHandler(output, options), nil
	}

	return nil, utils.MakeError(ErrUnknownFormat, "'%v'", settings.Format)
}

// Returns a logger writing to the console and, if configured, to a JSON log file
func New(settings Settings) (*Logger, error) {
	options := &slog.HandlerOptions{Level: settings.Level}

	console, err := consoleHandler(settings, options)
	if err != nil {
		return nil, err
	}

	if settings.File == "" {
		return &Logger{Logger: slog.New(console)}, nil
	}

	file, err := os.OpenFile(settings.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	handler := slogmulti.Fanout(console, slog.NewJSONHandler(file, options))
	return &Logger{Logger: slog.New(handler), file: file}, nil
}

// Returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
