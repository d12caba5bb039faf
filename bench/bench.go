// Package bench measures hashing throughput across parallel workers.
//
// Each worker owns a Manager and one context. Seeds Start..Start+Seeds-1 are
// dealt round-robin; the seed bytes for index i are the state of a SipHash
// RNG with a fixed key salted with i, so every run hashes the same inputs.
package bench

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/hashwx"
	"github.com/wippyai/hashwx/engine"
	"github.com/wippyai/hashwx/internal/siphash"
)

// SeedKey keys the seed generator.
var SeedKey = siphash.Key{K0: 0xb443266e0c61253a, K1: 0x85cfeef0bcbdb1e9}

// Config describes a run.
type Config struct {
	Opener  engine.Opener
	Logger  *zap.Logger
	Mode    hashwx.Mode
	Start   int
	Seeds   int
	Nonces  int
	Threads int
	// Diff sets the reporting threshold to MaxUint64 / (Diff*1000).
	Diff int
	// OnHit, if set, is called for every hash below the threshold. It may
	// be called from several goroutines.
	OnHit func(Hit)
}

// Hit is a hash below the threshold.
type Hit struct {
	Worker int
	Seed   int
	Nonce  uint64
	Hash   uint64
}

// Report summarizes a run.
type Report struct {
	Elapsed      time.Duration
	TotalHashes  int64
	Hits         int64
	Threshold    uint64
	BestHash     uint64
	HashSum      uint64
	HashesPerSec float64
	SeedsPerSec  float64
}

// Difficulty of the best hash.
func (r Report) Difficulty() uint64 {
	if r.BestHash == 0 {
		return math.MaxUint64
	}
	return math.MaxUint64 / r.BestHash
}

// Seed returns the seed bytes for index i.
func Seed(i int) []byte {
	state := siphash.NewRNG(SeedKey, uint64(i)).StateBytes()
	return state[:]
}

// Threshold returns the hit threshold for diff.
func Threshold(diff int) uint64 {
	if diff <= 0 {
		return 0
	}
	return math.MaxUint64 / (uint64(diff) * 1000)
}

type job struct {
	id      int
	manager *hashwx.Manager
	handle  hashwx.Handle

	total int64
	hits  int64
	best  uint64
	sum   uint64
}

// Run executes the benchmark. Contexts are allocated before the clock
// starts; a failed allocation aborts the run.
func Run(ctx context.Context, cfg Config) (Report, error) {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hashwx.Logger()
	}
	threshold := Threshold(cfg.Diff)

	jobs := make([]*job, cfg.Threads)
	defer func() {
		for _, j := range jobs {
			if j != nil {
				_ = j.manager.Close(ctx)
			}
		}
	}()
	for i := range jobs {
		m := hashwx.NewManager(hashwx.Config{Opener: cfg.Opener, Logger: logger})
		jobs[i] = &job{id: i, manager: m, best: math.MaxUint64}
		h, err := m.Alloc(ctx, cfg.Mode)
		if err != nil {
			return Report{}, err
		}
		jobs[i].handle = h
	}

	logger.Info("bench started",
		zap.Stringer("mode", cfg.Mode),
		zap.Int("threads", cfg.Threads),
		zap.Int("start", cfg.Start),
		zap.Int("seeds", cfg.Seeds),
		zap.Int("nonces", cfg.Nonces))

	begin := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	end := cfg.Start + cfg.Seeds
	for _, j := range jobs {
		j := j // per-iteration copy; go directive is 1.21
		g.Go(func() error {
			return j.run(gctx, cfg, cfg.Start+j.id, end, threshold)
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	elapsed := time.Since(begin)

	r := Report{Elapsed: elapsed, Threshold: threshold, BestHash: math.MaxUint64}
	for _, j := range jobs {
		r.TotalHashes += j.total
		r.Hits += j.hits
		r.HashSum ^= j.sum
		if j.best < r.BestHash {
			r.BestHash = j.best
		}
	}
	if secs := elapsed.Seconds(); secs > 0 {
		r.HashesPerSec = float64(r.TotalHashes) / secs
		r.SeedsPerSec = float64(cfg.Seeds) / secs
	}
	return r, nil
}

func (j *job) run(ctx context.Context, cfg Config, start, end int, threshold uint64) error {
	for seed := start; seed < end; seed += cfg.Threads {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.manager.SetSeed(ctx, j.handle, Seed(seed)); err != nil {
			return err
		}
		for nonce := 0; nonce < cfg.Nonces; nonce++ {
			v, err := j.manager.Exec(ctx, j.handle, uint64(nonce))
			if err != nil {
				return err
			}
			j.sum ^= v
			if v < j.best {
				j.best = v
			}
			if v < threshold {
				j.hits++
				if cfg.OnHit != nil {
					cfg.OnHit(Hit{Worker: j.id, Seed: seed, Nonce: uint64(nonce), Hash: v})
				}
			}
		}
		j.total += int64(cfg.Nonces)
	}
	return nil
}
