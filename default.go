package hashwx

import (
	"context"
	"sync"
)

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Default returns the process-wide manager, backed by the reference engine
// unless SetDefault installed another.
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultManager == nil {
		defaultManager = NewManager(Config{})
	}
	return defaultManager
}

// SetDefault replaces the process-wide manager and returns the previous one,
// which the caller is responsible for closing.
func SetDefault(m *Manager) *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultManager
	defaultManager = m
	return prev
}

// Alloc allocates a context on the default manager.
func Alloc(ctx context.Context, mode Mode) (Handle, error) {
	return Default().Alloc(ctx, mode)
}

// SetSeed seeds h on the default manager.
func SetSeed(ctx context.Context, h Handle, seed []byte) error {
	return Default().SetSeed(ctx, h, seed)
}

// Exec evaluates nonce on the default manager.
func Exec(ctx context.Context, h Handle, nonce uint64) (uint64, error) {
	return Default().Exec(ctx, h, nonce)
}

// Free releases h on the default manager.
func Free(ctx context.Context, h Handle) error {
	return Default().Free(ctx, h)
}
