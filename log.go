package gstpipeline

import (
	"log/slog"

	"go.uber.org/atomic"
)

var pkgLogger atomic.Pointer[slog.Logger]

// SetLogger routes the package's lifecycle and bus logs to l. nil restores
// slog.Default(). Internal stages always log through slog.Default().
func SetLogger(l *slog.Logger) {
	pkgLogger.Store(l)
}

func logger() *slog.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}
