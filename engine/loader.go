package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bluele/gcache"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/hashwx/errors"
)

// Loader fetches module bytes for a location.
type Loader interface {
	Load(ctx context.Context, location string) ([]byte, error)
}

// FileLoader reads modules from the filesystem. Relative locations are
// resolved against Dir when it is set.
type FileLoader struct {
	Dir string
}

func (l FileLoader) Load(_ context.Context, location string) ([]byte, error) {
	path := strings.TrimPrefix(location, "file://")
	if l.Dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(l.Dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("read %s", path), err)
	}
	return data, nil
}

// HTTPLoader fetches modules with a single GET. A nil Client uses
// http.DefaultClient. Non-2xx responses are errors and nothing is retried.
type HTTPLoader struct {
	Client *http.Client
}

func (l HTTPLoader) Load(ctx context.Context, location string) ([]byte, error) {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("build request for %s", location), err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("fetch %s", location), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Value(resp.StatusCode).
			Detail("fetch %s: %s", location, resp.Status).
			Build()
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("read body of %s", location), err)
	}
	return data, nil
}

// BytesLoader returns the same bytes for every location.
type BytesLoader []byte

func (l BytesLoader) Load(context.Context, string) ([]byte, error) {
	if len(l) == 0 {
		return nil, errors.Load("empty module", nil)
	}
	return l, nil
}

// AutoLoader picks HTTP for http:// and https:// locations and the
// filesystem for everything else.
type AutoLoader struct {
	File FileLoader
	HTTP HTTPLoader
}

func (l AutoLoader) Load(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return l.HTTP.Load(ctx, location)
	}
	return l.File.Load(ctx, location)
}

// CachedLoader memoizes another loader by location. Concurrent first loads
// of one location share a single fetch.
type CachedLoader struct {
	inner  Loader
	cache  gcache.Cache
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachedLoader wraps inner with an LRU of size entries.
func NewCachedLoader(inner Loader, size int, logger *zap.Logger) *CachedLoader {
	if size <= 0 {
		size = 1
	}
	return &CachedLoader{
		inner:  inner,
		cache:  gcache.New(size).LRU().Build(),
		logger: loggerOr(logger),
	}
}

func (l *CachedLoader) Load(ctx context.Context, location string) ([]byte, error) {
	cached, err := l.cache.Get(location)
	switch {
	case err == nil:
		return cached.([]byte), nil
	case stderrors.Is(err, gcache.KeyNotFoundError):
	default:
		return nil, errors.Load("read module cache", err)
	}

	v, err, shared := l.group.Do(location, func() (any, error) {
		data, err := l.inner.Load(ctx, location)
		if err != nil {
			return nil, err
		}
		if err := l.cache.Set(location, data); err != nil {
			return nil, errors.Load("write module cache", err)
		}
		l.logger.Debug("cached module", zap.String("location", location), zap.Int("bytes", len(data)))
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		l.logger.Debug("shared in-flight module load", zap.String("location", location))
	}
	return v.([]byte), nil
}

// Forget drops location from the cache.
func (l *CachedLoader) Forget(location string) {
	l.cache.Remove(location)
}

var (
	sharedOnce      sync.Once
	sharedLoader    *CachedLoader
	compilationOnce sync.Once
	compilation     wazero.CompilationCache
)

// SharedLoader returns the process-wide cached AutoLoader.
func SharedLoader() *CachedLoader {
	sharedOnce.Do(func() {
		sharedLoader = NewCachedLoader(AutoLoader{}, 32, nil)
	})
	return sharedLoader
}

// SharedCompilationCache returns the process-wide wazero compilation cache
// so runtimes created by different engines reuse machine code.
func SharedCompilationCache() wazero.CompilationCache {
	compilationOnce.Do(func() {
		compilation = wazero.NewCompilationCache()
	})
	return compilation
}

// NewRuntime creates a wazero runtime backed by the shared compilation cache.
func NewRuntime(ctx context.Context, memoryLimitPages uint32) wazero.Runtime {
	cfg := wazero.NewRuntimeConfig().WithCompilationCache(SharedCompilationCache())
	if memoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(memoryLimitPages)
	}
	return wazero.NewRuntimeWithConfig(ctx, cfg)
}
