package engine

import (
	"context"
	"crypto/sha256"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hashwx/errors"
)

// SideExport is the function every side module must export.
const SideExport = "exec"

// LinkerStats reports side-module cache activity.
type LinkerStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Linker compiles side modules in a runtime that already hosts a module
// named "env" exporting "memory", and instantiates them anonymously so their
// env.memory import binds to it.
//
// Compiled code is cached by SHA-256 of the module bytes. Identical seeds
// produce identical code, so re-seeding a context with a seed seen before
// skips compilation.
type Linker struct {
	runtime   wazero.Runtime
	cache     *lru.Cache[[sha256.Size]byte, wazero.CompiledModule]
	logger    *zap.Logger
	mu        sync.Mutex
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewLinker creates a linker over rt. cacheSize <= 0 disables the compiled
// module cache; every Link then compiles and the submodule owns its code.
func NewLinker(rt wazero.Runtime, cacheSize int, logger *zap.Logger) (*Linker, error) {
	l := &Linker{
		runtime: rt,
		logger:  loggerOr(logger),
	}
	if cacheSize > 0 {
		cache, err := lru.NewWithEvict(cacheSize, l.onEvict)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLink, errors.KindInvalidInput, err, "create side-module cache")
		}
		l.cache = cache
	}
	return l, nil
}

func (l *Linker) onEvict(key [sha256.Size]byte, compiled wazero.CompiledModule) {
	l.evictions.Add(1)
	// instances created from compiled keep working after Close
	if err := compiled.Close(context.Background()); err != nil {
		l.logger.Warn("close evicted side module", zap.Binary("sha256", key[:8]), zap.Error(err))
	}
}

// Link compiles (or reuses) code and instantiates it.
func (l *Linker) Link(ctx context.Context, code []byte) (Submodule, error) {
	compiled, owned, err := l.compile(ctx, code)
	if err != nil {
		return nil, err
	}

	mod, err := l.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		if owned {
			_ = compiled.Close(ctx)
		}
		return nil, errors.Instantiation(errors.PhaseLink, err)
	}

	fn := mod.ExportedFunction(SideExport)
	if fn == nil {
		_ = mod.Close(ctx)
		if owned {
			_ = compiled.Close(ctx)
		}
		return nil, errors.MissingExports(errors.PhaseLink, []string{SideExport})
	}

	sub := &submodule{module: mod, exec: fn}
	if owned {
		sub.compiled = compiled
	}
	return sub, nil
}

func (l *Linker) compile(ctx context.Context, code []byte) (wazero.CompiledModule, bool, error) {
	if l.cache == nil {
		compiled, err := l.runtime.CompileModule(ctx, code)
		if err != nil {
			return nil, false, errors.Wrap(errors.PhaseLink, errors.KindInvalidData, err, "compile side module")
		}
		return compiled, true, nil
	}

	key := sha256.Sum256(code)

	l.mu.Lock()
	defer l.mu.Unlock()

	if compiled, ok := l.cache.Get(key); ok {
		l.hits.Add(1)
		return compiled, false, nil
	}

	l.misses.Add(1)
	compiled, err := l.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, false, errors.Wrap(errors.PhaseLink, errors.KindInvalidData, err, "compile side module")
	}
	l.cache.Add(key, compiled)
	l.logger.Debug("compiled side module", zap.Int("bytes", len(code)), zap.Int("cached", l.cache.Len()))
	return compiled, false, nil
}

// Stats returns cache counters.
func (l *Linker) Stats() LinkerStats {
	return LinkerStats{
		Hits:      l.hits.Load(),
		Misses:    l.misses.Load(),
		Evictions: l.evictions.Load(),
	}
}

// Close drops every cached compiled module.
func (l *Linker) Close() {
	if l.cache != nil {
		l.cache.Purge()
	}
}

type submodule struct {
	module   api.Module
	exec     api.Function
	compiled wazero.CompiledModule // set when not shared through the cache
	closed   bool
}

func (s *submodule) Exec(ctx context.Context, reg, mem uint32) error {
	if s.closed {
		return errors.NotInitialized(errors.PhaseExec, "submodule")
	}
	if _, err := s.exec.Call(ctx, api.EncodeU32(reg), api.EncodeU32(mem)); err != nil {
		return errors.Trap(errors.PhaseExec, SideExport, err)
	}
	return nil
}

func (s *submodule) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.module.Close(ctx)
	if s.compiled != nil {
		if cerr := s.compiled.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
