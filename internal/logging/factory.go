package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap/zapcore"
)

// New builds the logger named by backend ("slog" or "zap"). The returned
// flush function must be called before exit; it is a no-op for slog.
func New(w io.Writer, backend, format, level string) (Logger, func() error, error) {
	switch strings.ToLower(backend) {
	case "", "slog":
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, nil, fmt.Errorf("log level %q: %w", level, err)
		}
		return NewSlogHandlerLogger(w, format, lvl), func() error { return nil }, nil
	case "zap":
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("log level %q: %w", level, err)
		}
		z, err := NewZapProductionLogger(lvl)
		if err != nil {
			return nil, nil, err
		}
		return z, z.Sync, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", backend)
	}
}
