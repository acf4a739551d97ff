// Package pipeline implements the Embedding Pipeline (C6): a bounded,
// channel-connected Batch Former -> Dispatcher -> Sink chain that turns a
// stream of chunks into (chunk, vector) results at maximum safe
// throughput, subject to provider limits, a memory ceiling, and adaptive
// batch sizing.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aman-cerp/semindex/internal/embed"
	"github.com/aman-cerp/semindex/internal/fallback"
	"github.com/aman-cerp/semindex/internal/store"
	"github.com/aman-cerp/semindex/internal/telemetry"
)

// Default stage capacities and tuning constants, per the documented
// defaults.
const (
	DefaultBatchFormerCap  = 2
	DefaultSinkCap         = 4
	DefaultConcurrency     = 3
	DefaultFlushInterval   = 200 * time.Millisecond
	DefaultMinBatchSize    = 4
	DefaultFastThresholdMS = 750
	DefaultSlowThresholdMS = 3000
	AdaptEveryNSuccesses   = 8
	DefaultMaxRetries      = 3
	DefaultBaseDelay       = 200 * time.Millisecond
	DefaultMaxChars        = 6000 // mirrors chunk.Params.MaxChars
)

// Item pairs a chunk with the text actually sent for embedding (normally
// chunk.Text, broken out so callers can substitute enriched text later).
type Item struct {
	Chunk store.Chunk
	Text  string
}

// Result is one completed batch: chunks and their vectors, alongside the
// provider identity and latency that produced them.
type Result struct {
	Items      []Item
	Vectors    [][]float32
	ProviderID string
	ModelID    string
	LatencyMS  int64
}

// Config tunes the pipeline's stage capacities, concurrency, adaptive
// batching, retry policy, and memory ceiling.
type Config struct {
	BatchFormerCap  int
	SinkCap         int
	Concurrency     int
	FlushInterval   time.Duration
	InitialBatch    int
	MinBatchSize    int
	MaxBatchSize    int // 0 uses the provider's own limit
	FastThresholdMS int64
	SlowThresholdMS int64
	MaxRetries      int
	BaseDelay       time.Duration
	MemoryLimitBytes int64 // 0 disables the check
	MaxChars        int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BatchFormerCap:  DefaultBatchFormerCap,
		SinkCap:         DefaultSinkCap,
		Concurrency:     DefaultConcurrency,
		FlushInterval:   DefaultFlushInterval,
		InitialBatch:    8,
		MinBatchSize:    DefaultMinBatchSize,
		FastThresholdMS: DefaultFastThresholdMS,
		SlowThresholdMS: DefaultSlowThresholdMS,
		MaxRetries:      DefaultMaxRetries,
		BaseDelay:       DefaultBaseDelay,
		MaxChars:        DefaultMaxChars,
	}
}

// CheckMemoryBudget validates the pipeline's worst-case resident bytes
// against cfg.MemoryLimitBytes, per the spec's construction-time
// rejection rule. A zero limit disables the check.
func (cfg Config) CheckMemoryBudget(maxBatchSize int) error {
	if cfg.MemoryLimitBytes <= 0 {
		return nil
	}
	stages := int64(cfg.BatchFormerCap + cfg.Concurrency + cfg.SinkCap)
	worstCase := stages * int64(maxBatchSize) * int64(cfg.MaxChars)
	if worstCase > cfg.MemoryLimitBytes {
		return fmt.Errorf("pipeline: worst-case resident bytes %d exceeds memory_limit_bytes %d", worstCase, cfg.MemoryLimitBytes)
	}
	return nil
}

// Pipeline runs the Batch Former -> Dispatcher -> Sink chain.
type Pipeline struct {
	cfg       Config
	primary   embed.Provider
	fallback  *fallback.Coordinator
	sink      telemetry.Sink

	mu               sync.Mutex
	currentBatchSize int
	latencyWindow    []int64 // rolling p50 window, resets every AdaptEveryNSuccesses
	rateLimitedInWindow bool
}

// New constructs a Pipeline. primary is tried first on every dispatch;
// fallbackCoord is consulted only once the Dispatcher's own retries are
// exhausted. New rejects cfg outright if its worst-case resident bytes
// exceed cfg.MemoryLimitBytes, so every caller gets the construction-time
// check rather than relying on callers to run it externally.
func New(cfg Config, primary embed.Provider, fallbackCoord *fallback.Coordinator, sink telemetry.Sink) (*Pipeline, error) {
	if cfg.InitialBatch <= 0 {
		cfg.InitialBatch = DefaultConfig().InitialBatch
	}
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = primary.Limits().MaxBatchSize
	}
	if err := cfg.CheckMemoryBudget(maxBatch); err != nil {
		return nil, err
	}
	if cfg.InitialBatch > maxBatch {
		cfg.InitialBatch = maxBatch
	}
	return &Pipeline{
		cfg:              cfg,
		primary:          primary,
		fallback:         fallbackCoord,
		sink:             sink,
		currentBatchSize: cfg.InitialBatch,
	}, nil
}

// Run drains in, embeds batches at up to cfg.Concurrency in parallel, and
// returns a channel of Results. The returned channel closes once in is
// drained and every in-flight batch completes, or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, in <-chan Item) (<-chan Result, <-chan error) {
	out := make(chan Result, p.cfg.SinkCap)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		g, gctx := errgroup.WithContext(ctx)
		sem := make(chan struct{}, p.cfg.Concurrency)

		for batch := range p.formBatches(gctx, in) {
			batch := batch
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				goto drain
			}
			g.Go(func() error {
				defer func() { <-sem }()
				result, err := p.dispatch(gctx, batch)
				if err != nil {
					return err
				}
				select {
				case out <- result:
				case <-gctx.Done():
					return gctx.Err()
				}
				return nil
			})
		}
	drain:
		if err := g.Wait(); err != nil {
			errs <- err
		}
	}()

	return out, errs
}

// formBatches implements the Batch Former stage: accumulate items until
// the current adaptive batch size is reached, or flush_interval_ms
// elapses since the first buffered item.
func (p *Pipeline) formBatches(ctx context.Context, in <-chan Item) <-chan []Item {
	out := make(chan []Item, p.cfg.BatchFormerCap)
	go func() {
		defer close(out)
		var buf []Item
		var timer *time.Timer

		flush := func() {
			if len(buf) == 0 {
				return
			}
			select {
			case out <- buf:
			case <-ctx.Done():
			}
			buf = nil
		}

		for {
			target := p.batchSize()
			var timerC <-chan time.Time
			if timer != nil {
				timerC = timer.C
			}
			select {
			case item, ok := <-in:
				if !ok {
					flush()
					return
				}
				if len(buf) == 0 {
					timer = time.NewTimer(p.cfg.FlushInterval)
				}
				buf = append(buf, item)
				if len(buf) >= target {
					if timer != nil {
						timer.Stop()
						timer = nil
					}
					flush()
				}
			case <-timerC:
				timer = nil
				flush()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (p *Pipeline) batchSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentBatchSize
}

// dispatch embeds one batch: in-line retry against the primary provider
// per the failure taxonomy, escalating to the Fallback Coordinator once
// retries are exhausted or on an unretryable failure.
func (p *Pipeline) dispatch(ctx context.Context, batch []Item) (Result, error) {
	texts := make([]string, len(batch))
	for i, it := range batch {
		texts[i] = it.Text
	}

	start := time.Now()
	vectors, providerID, modelID, err := p.embedWithRetry(ctx, texts)
	latency := time.Since(start)

	if err != nil {
		if p.fallback != nil {
			telemetry.Emit(p.sink, telemetry.Event{Kind: telemetry.KindFallback, Message: err.Error()})
			vectors, providerID, modelID, err = p.fallback.Embed(ctx, texts)
		}
		if err != nil {
			return Result{}, err
		}
	}

	p.recordLatency(latency, false)

	return Result{
		Items:      batch,
		Vectors:    vectors,
		ProviderID: providerID,
		ModelID:    modelID,
		LatencyMS:  latency.Milliseconds(),
	}, nil
}

func (p *Pipeline) embedWithRetry(ctx context.Context, texts []string) ([][]float32, string, string, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := p.sleepBackoff(ctx, lastErr, attempt); err != nil {
				return nil, "", "", err
			}
		}

		vectors, err := p.primary.Embed(ctx, texts)
		if err == nil {
			return vectors, p.primary.ID(), p.primary.ModelID(), nil
		}
		lastErr = err

		f := embed.AsFailure(err)
		switch f.Kind {
		case embed.FailureAuth:
			return nil, "", "", err // no retry, escalate immediately
		case embed.FailureProvider:
			if attempt >= 1 {
				return nil, "", "", err // one retry, then escalate
			}
		case embed.FailureRateLimit:
			p.recordLatency(0, true)
		}
	}
	return nil, "", "", lastErr
}

func (p *Pipeline) sleepBackoff(ctx context.Context, lastErr error, attempt int) error {
	var delay time.Duration
	if f := embed.AsFailure(lastErr); f != nil && f.Kind == embed.FailureRateLimit && f.RetryAfterMS > 0 {
		delay = time.Duration(f.RetryAfterMS) * time.Millisecond
	} else {
		jitter := 1 + (rand.Float64()*0.2 - 0.1)
		delay = time.Duration(float64(p.cfg.BaseDelay) * pow2(attempt) * jitter)
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func pow2(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// recordLatency feeds the adaptive batch-sizing window. Every
// AdaptEveryNSuccesses samples it recomputes p50 and resizes
// currentBatchSize per the documented thresholds.
func (p *Pipeline) recordLatency(d time.Duration, rateLimited bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rateLimited {
		p.rateLimitedInWindow = true
		return
	}

	p.latencyWindow = append(p.latencyWindow, d.Milliseconds())
	if len(p.latencyWindow) < AdaptEveryNSuccesses {
		return
	}

	sorted := append([]int64(nil), p.latencyWindow...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p50 := sorted[len(sorted)/2]

	maxBatch := p.cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = p.primary.Limits().MaxBatchSize
	}

	switch {
	case p50 < p.cfg.FastThresholdMS:
		p.currentBatchSize = min(int(float64(p.currentBatchSize)*1.5), maxBatch)
	case p50 > p.cfg.SlowThresholdMS || p.rateLimitedInWindow:
		p.currentBatchSize = max(int(float64(p.currentBatchSize)*0.5), p.cfg.MinBatchSize)
	}

	p.latencyWindow = nil
	p.rateLimitedInWindow = false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
