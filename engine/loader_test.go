package engine

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hashwx/errors"
)

func TestFileLoader(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hashwx.wasm"), []byte("bytes"), 0o600))

	data, err := FileLoader{Dir: dir}.Load(ctx, "hashwx.wasm")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)

	data, err = FileLoader{}.Load(ctx, "file://"+filepath.Join(dir, "hashwx.wasm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)

	_, err = FileLoader{Dir: dir}.Load(ctx, "absent.wasm")
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInvalidData}))
}

func TestHTTPLoader(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/hashwx.wasm" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("module"))
	}))
	defer srv.Close()

	data, err := HTTPLoader{Client: srv.Client()}.Load(ctx, srv.URL+"/hashwx.wasm")
	require.NoError(t, err)
	assert.Equal(t, []byte("module"), data)

	_, err = HTTPLoader{}.Load(ctx, srv.URL+"/missing.wasm")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.Sentinel(errors.KindNotFound)))
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, http.StatusNotFound, e.Value)

	// failures are not retried
	assert.Equal(t, int32(2), hits.Load())
}

func TestAutoLoader(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.wasm"), []byte("local"), 0o600))

	l := AutoLoader{File: FileLoader{Dir: dir}}
	data, err := l.Load(ctx, srv.URL+"/m.wasm")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), data)

	data, err = l.Load(ctx, "m.wasm")
	require.NoError(t, err)
	assert.Equal(t, []byte("local"), data)
}

func TestBytesLoader(t *testing.T) {
	data, err := BytesLoader("abc").Load(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	_, err = BytesLoader(nil).Load(context.Background(), "")
	assert.Error(t, err)
}

type countingLoader struct {
	calls atomic.Int32
	fail  bool
}

func (l *countingLoader) Load(_ context.Context, location string) ([]byte, error) {
	l.calls.Add(1)
	if l.fail {
		return nil, stderrors.New("boom")
	}
	return []byte(location), nil
}

func TestCachedLoader(t *testing.T) {
	ctx := context.Background()
	inner := &countingLoader{}
	l := NewCachedLoader(inner, 2, nil)

	for i := 0; i < 3; i++ {
		data, err := l.Load(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), data)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	_, err := l.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	l.Forget("a")
	_, err = l.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestCachedLoader_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingLoader{fail: true}
	l := NewCachedLoader(inner, 4, nil)

	_, err := l.Load(ctx, "x")
	require.Error(t, err)
	_, err = l.Load(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestSharedSingletons(t *testing.T) {
	assert.Same(t, SharedLoader(), SharedLoader())
	assert.NotNil(t, SharedCompilationCache())
}
