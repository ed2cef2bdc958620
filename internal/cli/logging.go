package cli

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger writes text to a terminal and JSON otherwise. With a log file
// configured, records also go to a size-rotated JSON file.
func NewLogger(stdout *os.File, verbose bool, logFile string) (*slog.Logger, io.Closer) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
	opts := &slog.HandlerOptions{Level: level}

	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		return slog.New(slog.NewJSONHandler(io.MultiWriter(stdout, rotating), opts)), rotating
	}

	var handler slog.Handler
	if isTerminal(stdout) {
		handler = slog.NewTextHandler(stdout, opts)
	} else {
		handler = slog.NewJSONHandler(stdout, opts)
	}
	return slog.New(handler), io.NopCloser(nil)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
