package metrics

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hashwx"
	"github.com/wippyai/hashwx/errors"
	"github.com/wippyai/hashwx/native"
	"github.com/wippyai/hashwx/resource"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "invalid_handle", Outcome(errors.InvalidHandle(errors.PhaseExec, 3)))
	assert.Equal(t, "error", Outcome(stderrors.New("plain")))
}

func TestCollector_Manager(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c := New(reg)

	m := hashwx.NewManager(hashwx.Config{
		Opener:    native.Opener{Config: native.Config{MaxContexts: 2}},
		Recorder:  c,
		Observers: []resource.Observer{c},
	})
	defer m.Close(ctx)

	h1, err := m.Alloc(ctx, hashwx.ModeInterpreted)
	require.NoError(t, err)
	h2, err := m.Alloc(ctx, hashwx.ModeCompiled)
	require.NoError(t, err)
	_, err = m.Alloc(ctx, hashwx.ModeInterpreted)
	require.ErrorIs(t, err, hashwx.ErrExhausted)

	require.NoError(t, m.SetSeed(ctx, h2, make([]byte, hashwx.SeedSize)))
	require.Error(t, m.SetSeed(ctx, h1, []byte("short")))
	_, err = m.Exec(ctx, h2, 1)
	require.NoError(t, err)
	_, err = m.Exec(ctx, h1, 1)
	require.ErrorIs(t, err, hashwx.ErrNotInitialized)
	require.NoError(t, m.Free(ctx, h1))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.AllocsTotal.WithLabelValues("interpreted", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AllocsTotal.WithLabelValues("interpreted", "allocation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AllocsTotal.WithLabelValues("compiled", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SeedsTotal.WithLabelValues("compiled", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ExecsTotal.WithLabelValues("compiled", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ExecsTotal.WithLabelValues("interpreted", "not_initialized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FreesTotal.WithLabelValues("interpreted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LiveContexts))
	assert.Equal(t, 1, testutil.CollectAndCount(c.SeedLatency))
}

func TestCollector_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
