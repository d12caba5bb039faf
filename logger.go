package hashwx

import (
	"go.uber.org/zap"

	"github.com/wippyai/hashwx/engine"
)

// Logger returns the logger used by managers created without one. It is
// shared with package engine.
func Logger() *zap.Logger {
	return engine.Logger()
}

// SetLogger replaces the shared logger. A nil logger restores the no-op logger.
func SetLogger(l *zap.Logger) {
	engine.SetLogger(l)
}
