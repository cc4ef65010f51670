package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/stratus/internal/builder"
	"github.com/ajitpratap0/stratus/internal/engine"
	"github.com/ajitpratap0/stratus/pkg/compression"
	"github.com/ajitpratap0/stratus/pkg/config"
	"github.com/ajitpratap0/stratus/pkg/logger"
	"github.com/ajitpratap0/stratus/pkg/metrics"
	"github.com/ajitpratap0/stratus/pkg/observability"
)

type runOptions struct {
	Pipeline    string
	Config      string
	LogLevel    string
	Output      string
	Compression string
	Timeout     time.Duration
	MaxBuffers  int64
}

type printOptions struct {
	Pipeline string
	Config   string
	LogLevel string
	ShowAll  bool
	Prepare  bool
}

// setup loads the engine configuration and starts logging, tracing and the
// metrics endpoint. The returned function flushes and stops them.
func setup(configFile, logLevel string) (*config.EngineConfig, func(), error) {
	cfg, err := config.LoadEngine(configFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}
	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogEncoding,
	}); err != nil {
		return nil, nil, err
	}
	log := logger.With(zap.String("component", "stratus-cli"))

	if cfg.Observability.EnableTracing {
		obs := observability.DefaultConfig()
		obs.Tracing.ServiceVersion = version
		obs.Tracing.SamplingRate = cfg.Observability.TracingSampleRate
		obs.Tracing.Writer = os.Stderr
		if err := observability.Initialize(obs); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	var server *http.Server
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("addr", addr))
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if server != nil {
			_ = server.Shutdown(ctx)
		}
		if err := observability.Shutdown(ctx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return cfg, cleanup, nil
}

func printPipeline(w io.Writer, opts printOptions) error {
	cfg, cleanup, err := setup(opts.Config, opts.LogLevel)
	if err != nil {
		return err
	}
	defer cleanup()

	tree, err := builder.New(cfg, logger.Get()).BuildFile(opts.Pipeline)
	if err != nil {
		return err
	}
	if opts.Prepare {
		if err := tree.Prepare(context.Background()); err != nil {
			return err
		}
	}
	tree.Print(w, opts.ShowAll)
	return nil
}

func runPipeline(ctx context.Context, opts runOptions) error {
	cfg, cleanup, err := setup(opts.Config, opts.LogLevel)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx = context.WithValue(ctx, logger.PipelineKey, opts.Pipeline)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tree, err := builder.New(cfg, logger.Get()).BuildFile(opts.Pipeline)
	if err != nil {
		return err
	}
	ctx = context.WithValue(ctx, logger.TreeIDKey, tree.ID())
	log := logger.WithContext(ctx).With(zap.String("component", "stratus-cli"))

	if err := tree.Prepare(ctx); err != nil {
		return fmt.Errorf("failed to prepare pipeline: %w", err)
	}

	out, closeOut, err := openOutput(opts.Output, opts.Compression)
	if err != nil {
		return err
	}

	if err := tree.Launch(ctx); err != nil {
		_ = closeOut()
		return err
	}
	log.Info("pipeline started")

	start := time.Now()
	stats, werr := drain(tree, out, opts.MaxBuffers)
	if cerr := closeOut(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("pipeline failed: %w", werr)
	}

	log.Info("pipeline completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int64("rows", stats.Rows),
		zap.Int64("buffers", stats.Buffers),
		zap.Float64("rows_per_second", stats.RowsPerSecond))
	return nil
}

// drainStats summarizes what drain consumed
type drainStats struct {
	Rows          int64
	Buffers       int64
	RowsPerSecond float64
}

// drain writes every row the tree produces as a JSON object per line. It
// stops the tree early after maxBuffers data buffers when maxBuffers > 0.
func drain(tree *engine.ExecutionTree, w io.Writer, maxBuffers int64) (drainStats, error) {
	var stats drainStats
	it, err := tree.Iterator()
	if err != nil {
		return stats, err
	}
	tracker := metrics.NewThroughputTracker(tree.Root().Name())
	enc := json.NewEncoder(w)

	for {
		buf, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = it.Close()
			return stats, err
		}
		if buf.IsEOE() {
			continue
		}
		for _, r := range buf.Rows() {
			if err := enc.Encode(buf.Schema().Record(r)); err != nil {
				buf.Release()
				_ = it.Close()
				return stats, err
			}
		}
		stats.Rows += int64(buf.NumRows())
		tracker.Increment(int64(buf.NumRows()))
		buf.Release()

		stats.Buffers++
		if maxBuffers > 0 && stats.Buffers >= maxBuffers {
			break
		}
	}
	stats.RowsPerSecond = tracker.GetAndReset()
	return stats, it.Close()
}

// openOutput opens the destination, compressing with the named algorithm or
// the one implied by the file extension
func openOutput(path, algorithm string) (io.Writer, func() error, error) {
	var dst io.Writer = os.Stdout
	var file *os.File
	algo := compression.None
	if path != "-" && path != "" {
		f, err := os.Create(path) //nolint:gosec // G304: output path comes from the operator's own flag
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create output: %w", err)
		}
		file, dst = f, f
		algo = compression.DetectAlgorithm(path)
	}
	if algorithm != "" {
		a, err := compression.ParseAlgorithm(algorithm)
		if err != nil {
			if file != nil {
				_ = file.Close()
			}
			return nil, nil, err
		}
		algo = a
	}

	buffered := bufio.NewWriterSize(dst, 1<<16)
	cw, err := compression.NewWriter(buffered, algo, compression.Default)
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, nil, err
	}
	closeFn := func() error {
		err := cw.Close()
		if ferr := buffered.Flush(); err == nil {
			err = ferr
		}
		if file != nil {
			if ferr := file.Close(); err == nil {
				err = ferr
			}
		}
		return err
	}
	return cw, closeFn, nil
}
