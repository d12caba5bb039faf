package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wippyai/hashwx"
	"github.com/wippyai/hashwx/bench"
	"github.com/wippyai/hashwx/config"
	"github.com/wippyai/hashwx/engine"
	"github.com/wippyai/hashwx/metrics"
	"github.com/wippyai/hashwx/resource"
)

type options struct {
	configPath  string
	module      string
	logLevel    string
	metricsAddr string
	mode        string
	seed        string
	seedHex     string
	nonce       uint64
	count       int
	bench       bool
	seeds       int
	nonces      int
	start       int
	threads     int
	diff        int
	interactive bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Path to YAML config")
	flag.StringVar(&o.module, "module", "", "External hashwx module (path or URL); empty uses the built-in engine")
	flag.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&o.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&o.mode, "mode", "both", "Context mode: interpreted, compiled or both")
	flag.StringVar(&o.seed, "seed", "", "Seed text, at most 32 bytes, zero padded")
	flag.StringVar(&o.seedHex, "seed-hex", "", "Seed as 64 hex digits")
	flag.Uint64Var(&o.nonce, "nonce", 0, "First nonce")
	flag.IntVar(&o.count, "count", 1, "Number of nonces to hash")
	flag.BoolVar(&o.bench, "bench", false, "Run the throughput benchmark")
	flag.IntVar(&o.seeds, "seeds", 500, "Bench: number of seeds")
	flag.IntVar(&o.nonces, "nonces", 65536, "Bench: nonces per seed")
	flag.IntVar(&o.start, "start", 0, "Bench: first seed index")
	flag.IntVar(&o.threads, "threads", 1, "Bench: worker count")
	flag.IntVar(&o.diff, "diff", 0, "Bench: report hashes below MaxUint64/(diff*1000)")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: hashwx [-seed text | -seed-hex hex] [-nonce n] [-count n] [-mode m]")
		fmt.Fprintln(os.Stderr, "       hashwx -bench [-seeds n] [-nonces n] [-start n] [-threads n] [-diff n]")
		fmt.Fprintln(os.Stderr, "       hashwx -i  (interactive mode)")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.module != "" {
		cfg.Module = o.module
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	hashwx.SetLogger(logger)

	var recorder hashwx.Recorder
	var observers []resource.Observer
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector := metrics.New(reg)
		recorder = collector
		observers = append(observers, collector)
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if o.bench {
		return runBench(ctx, o, cfg.Opener(logger), logger)
	}

	m := hashwx.NewManager(hashwx.Config{
		Opener:    cfg.Opener(logger),
		Logger:    logger,
		Recorder:  recorder,
		Observers: observers,
	})
	defer func() { _ = m.Close(ctx) }()

	if o.interactive {
		return runInteractive(ctx, m)
	}
	return runHash(ctx, o, m)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv
}

func runHash(ctx context.Context, o options, m *hashwx.Manager) error {
	seed, err := parseSeed(o.seed, o.seedHex)
	if err != nil {
		return err
	}
	modes, err := parseModes(o.mode)
	if err != nil {
		return err
	}
	if o.count < 1 {
		return fmt.Errorf("count must be positive, got %d", o.count)
	}

	results := make([][]uint64, len(modes))
	for i, mode := range modes {
		results[i], err = hashRange(ctx, m, mode, seed, o.nonce, o.count)
		if err != nil {
			return fmt.Errorf("%s: %w", mode, err)
		}
	}

	for n := 0; n < o.count; n++ {
		fmt.Printf("%d", o.nonce+uint64(n))
		for i, mode := range modes {
			fmt.Printf("  %s=%016x", mode, results[i][n])
		}
		fmt.Println()
	}

	for n := 0; n < o.count && len(modes) > 1; n++ {
		if results[0][n] != results[1][n] {
			return fmt.Errorf("nonce %d: %s and %s disagree", o.nonce+uint64(n), modes[0], modes[1])
		}
	}
	return nil
}

// hashRange hashes count nonces from first on a fresh context.
func hashRange(ctx context.Context, m *hashwx.Manager, mode hashwx.Mode, seed []byte, first uint64, count int) ([]uint64, error) {
	h, err := m.Alloc(ctx, mode)
	if err != nil {
		return nil, err
	}
	defer func() { _ = m.Free(ctx, h) }()

	if err := m.SetSeed(ctx, h, seed); err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	for i := range out {
		if out[i], err = m.Exec(ctx, h, first+uint64(i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func runBench(ctx context.Context, o options, opener engine.Opener, logger *zap.Logger) error {
	modes, err := parseModes(o.mode)
	if err != nil {
		return err
	}
	mode := modes[len(modes)-1]

	fmt.Printf("mode: %s, threads: %d, seeds: %d..%d, nonces: %d\n",
		mode, o.threads, o.start, o.start+o.seeds-1, o.nonces)
	if o.diff > 0 {
		fmt.Printf("difficulty threshold: %016x\n", bench.Threshold(o.diff))
	}

	report, err := bench.Run(ctx, bench.Config{
		Opener:  opener,
		Logger:  logger,
		Mode:    mode,
		Start:   o.start,
		Seeds:   o.seeds,
		Nonces:  o.nonces,
		Threads: o.threads,
		Diff:    o.diff,
		OnHit: func(hit bench.Hit) {
			fmt.Printf("seed %d nonce %d: %016x\n", hit.Seed, hit.Nonce, hit.Hash)
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("total hashes: %d\n", report.TotalHashes)
	fmt.Printf("hash sum: %016x\n", report.HashSum)
	fmt.Printf("best hash: %016x (difficulty %d)\n", report.BestHash, report.Difficulty())
	if o.diff > 0 {
		fmt.Printf("hits: %d\n", report.Hits)
	}
	fmt.Printf("elapsed: %s\n", report.Elapsed.Round(time.Millisecond))
	fmt.Printf("%.0f hashes/sec, %.2f seeds/sec\n", report.HashesPerSec, report.SeedsPerSec)
	return nil
}
