package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the application logger. Output goes to the log file when a
// path is given, to the console when enabled, and always to any extra
// writers (the scanning debug ring sink is wired in here).
func New(logFilePath string, withConsole bool, extra ...io.Writer) (zerolog.Logger, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	writers := make([]io.Writer, 0, 2+len(extra))
	if logFilePath != "" {
		logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), err
		}
		writers = append(writers, logFile)
	}
	if withConsole {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
	writers = append(writers, extra...)
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().
		Timestamp().
		Logger()
	return logger, nil
}
