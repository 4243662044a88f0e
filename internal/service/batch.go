package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"ipintel/internal/metrics"
	"ipintel/internal/model"
	"ipintel/internal/utils"
)

// ErrEngineClosed is returned by query calls made after Shutdown.
// The engine does not recreate its pool; hosts construct a new Engine
// instead.
var ErrEngineClosed = errors.New("query engine is shut down")

// ErrEmptyBatch is returned for a batch call with no IPs.
var ErrEmptyBatch = errors.New("batch contains no IPs")

// Config holds the read-only engine configuration. It is never mutated
// after NewEngine.
type Config struct {
	BaseURL      string
	DefaultProxy string
	Timeout      time.Duration
	MaxWorkers   int
}

// DefaultWorkers is the fan-out bound applied when MaxWorkers is not
// configured. The cap holds regardless of batch size.
func DefaultWorkers() int {
	return min(32, runtime.NumCPU()+4)
}

// Engine runs single and batch IP queries against the upstream
// provider. Thread-mode workers share one transport; process-mode
// workers each carry their own in an isolated child process.
type Engine struct {
	cfg          Config
	endpoints    Endpoints
	defaultProxy string
	transport    *http.Transport
	spawn        spawnFunc

	mu       sync.Mutex
	closed   bool
	inFlight sync.WaitGroup
}

// NewEngine builds an engine from cfg, filling in defaults for the
// timeout and worker bound.
func NewEngine(cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultWorkers()
	}

	e := &Engine{
		cfg:          cfg,
		endpoints:    buildEndpoints(cfg.BaseURL),
		defaultProxy: ResolveProxy("", cfg.DefaultProxy),
	}
	e.transport = newTransport(e.defaultProxy)
	e.spawn = execSpawner(cfg)
	return e
}

// QueryBatch fans ips out over the bounded worker pool selected by mode
// and blocks until every item has completed. The returned slice always
// has the same length and order as ips; individual failures surface as
// error-status items and never abort siblings. The call itself fails
// only for contract violations: an empty batch, an unknown mode, or an
// engine already shut down.
func (e *Engine) QueryBatch(ctx context.Context, ips []string, proxy, mode string) ([]model.QueryResult, error) {
	return e.QueryBatchFunc(ctx, ips, proxy, mode, nil)
}

// QueryBatchFunc is QueryBatch with a completion observer: when observe
// is non-nil it is invoked once per item as that item finishes, in
// completion order, possibly from concurrent goroutines.
func (e *Engine) QueryBatchFunc(ctx context.Context, ips []string, proxy, mode string, observe func(int, model.QueryResult)) ([]model.QueryResult, error) {
	if len(ips) == 0 {
		return nil, ErrEmptyBatch
	}
	if mode == "" {
		mode = model.ModeThread
	}
	if mode != model.ModeThread && mode != model.ModeProcess {
		return nil, fmt.Errorf("unknown batch mode %q", mode)
	}

	if err := e.track(); err != nil {
		return nil, err
	}
	defer e.untrack()

	metrics.BatchesTotal.WithLabelValues(mode).Inc()
	metrics.BatchSize.Observe(float64(len(ips)))

	if mode == model.ModeProcess {
		return e.runProcessPool(ctx, ips, proxy, observe), nil
	}
	return e.runThreaded(ctx, ips, proxy, observe), nil
}

// runThreaded executes the batch on a semaphore-bounded goroutine pool
// sharing the engine transport. Results are written by input index, so
// completion order never affects output order.
func (e *Engine) runThreaded(ctx context.Context, ips []string, proxy string, observe func(int, model.QueryResult)) []model.QueryResult {
	results := make([]model.QueryResult, len(ips))
	sem := make(chan struct{}, e.cfg.MaxWorkers)
	var wg sync.WaitGroup

	for i, ip := range ips {
		wg.Add(1)
		go func(i int, ip string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			res := e.querySingle(ctx, ip, proxy, http.MethodGet)
			results[i] = res
			if observe != nil {
				observe(i, res)
			}
		}(i, ip)
	}

	wg.Wait()
	return results
}

// track registers one unit of in-flight work, failing when the engine
// is closed.
func (e *Engine) track() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.inFlight.Add(1)
	return nil
}

func (e *Engine) untrack() {
	e.inFlight.Done()
}

// Shutdown waits for in-flight work to drain and releases pooled
// connections. It is safe to call more than once; query calls made
// afterwards fail fast with ErrEngineClosed.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	already := e.closed
	e.closed = true
	e.mu.Unlock()

	e.inFlight.Wait()
	e.transport.CloseIdleConnections()

	if !already {
		utils.Log.Info("query engine shut down")
	}
}
