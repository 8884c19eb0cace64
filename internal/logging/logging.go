package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the rotating log file inside the log directory.
const FileName = "ciquery.log"

// Options selects the log level and sinks.
type Options struct {
	Verbose bool
	Debug   bool
	// Dir overrides LOGS_FOLDER.
	Dir string
	// NoFile disables the rotating file sink.
	NoFile bool
	// Console overrides the stderr sink, mainly for tests.
	Console io.Writer
}

// Level returns the global level the options select.
func (o Options) Level() zerolog.Level {
	switch {
	case o.Debug:
		return zerolog.TraceLevel
	case o.Verbose:
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// Init initializes the global logger with dual sinks: stderr and a rotating file.
func Init(opts Options) error {
	// Init runs before config.Load, so LOGS_FOLDER may still be in a .env
	// next to the binary.
	exePath, err := os.Executable()
	if err == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(exePath), ".env"))
	}

	zerolog.SetGlobalLevel(opts.Level())

	out := opts.Console
	noColor := true
	if out == nil {
		out = os.Stderr
		noColor = !(isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	}
	consoleWriter := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}

	writers := []io.Writer{consoleWriter}
	if !opts.NoFile {
		fileWriter, err := rotatingFile(opts.Dir, exePath)
		if err != nil {
			return err
		}
		writers = append(writers, fileWriter)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger()
	return nil
}

func rotatingFile(dir, exePath string) (*lumberjack.Logger, error) {
	if dir == "" {
		dir = os.Getenv("LOGS_FOLDER")
	}
	if dir == "" {
		if exePath != "" {
			dir = filepath.Join(filepath.Dir(exePath), "logs")
		} else {
			dir = "logs"
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return nil, fmt.Errorf("log directory %q is not writable: %w", dir, err)
	}
	_ = os.Remove(testFile)

	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, FileName),
		MaxSize:    16, // megabytes
		MaxBackups: 8,
		MaxAge:     30, // days
		Compress:   true,
	}, nil
}
