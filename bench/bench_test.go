package bench

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hashwx"
	"github.com/wippyai/hashwx/native"
)

func reference(start, seeds, nonces int) (sum, best uint64) {
	best = math.MaxUint64
	for s := start; s < start+seeds; s++ {
		seed := Seed(s)
		for n := 0; n < nonces; n++ {
			v := native.Hash(seed, uint64(n))
			sum ^= v
			if v < best {
				best = v
			}
		}
	}
	return sum, best
}

func TestSeed(t *testing.T) {
	a, b := Seed(0), Seed(1)
	assert.Len(t, a, hashwx.SeedSize)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Seed(0))
}

func TestThreshold(t *testing.T) {
	assert.Equal(t, uint64(0), Threshold(0))
	assert.Equal(t, uint64(math.MaxUint64/1000), Threshold(1))
	assert.Equal(t, uint64(math.MaxUint64/5000), Threshold(5))
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	wantSum, wantBest := reference(3, 6, 8)

	tests := []struct {
		name    string
		mode    hashwx.Mode
		threads int
	}{
		{"interpreted single", hashwx.ModeInterpreted, 1},
		{"interpreted parallel", hashwx.ModeInterpreted, 4},
		{"compiled parallel", hashwx.ModeCompiled, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Run(ctx, Config{
				Opener:  native.Opener{},
				Mode:    tt.mode,
				Start:   3,
				Seeds:   6,
				Nonces:  8,
				Threads: tt.threads,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(48), r.TotalHashes)
			assert.Equal(t, wantSum, r.HashSum)
			assert.Equal(t, wantBest, r.BestHash)
			assert.Equal(t, uint64(math.MaxUint64)/wantBest, r.Difficulty())
			assert.Zero(t, r.Hits)
		})
	}
}

func TestRun_Hits(t *testing.T) {
	threshold := Threshold(1)
	var want int64
	for s := 0; s < 4; s++ {
		for n := 0; n < 64; n++ {
			if native.Hash(Seed(s), uint64(n)) < threshold {
				want++
			}
		}
	}

	var mu sync.Mutex
	var hits []Hit
	r, err := Run(context.Background(), Config{
		Opener:  native.Opener{},
		Seeds:   4,
		Nonces:  64,
		Threads: 2,
		Diff:    1,
		OnHit: func(h Hit) {
			mu.Lock()
			hits = append(hits, h)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.Equal(t, threshold, r.Threshold)
	assert.Equal(t, want, r.Hits)
	assert.Len(t, hits, int(want))
	for _, h := range hits {
		assert.Less(t, h.Hash, threshold)
		assert.Equal(t, h.Seed%2, h.Worker)
	}
}

func TestRun_AllocFailure(t *testing.T) {
	_, err := Run(context.Background(), Config{
		Opener: native.Opener{Config: native.Config{InterpretedOnly: true}},
		Mode:   hashwx.ModeCompiled,
		Seeds:  1,
		Nonces: 1,
	})
	assert.ErrorIs(t, err, hashwx.ErrUnsupported)
}
