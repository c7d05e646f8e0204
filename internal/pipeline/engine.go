// Package pipeline orchestrates document analysis: preprocessing,
// segmentation, bounded-parallel model calls, and ordered aggregation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rootcauseai/rootcause-go/internal/ai"
	"github.com/rootcauseai/rootcause-go/internal/cache"
	"github.com/rootcauseai/rootcause-go/internal/chunk"
	"github.com/rootcauseai/rootcause-go/internal/cost"
	"github.com/rootcauseai/rootcause-go/internal/metrics"
	"github.com/rootcauseai/rootcause-go/internal/preprocess"
	"github.com/rootcauseai/rootcause-go/internal/ratelimit"
)

const (
	defaultWorkers     = 5
	defaultMaxRetries  = 3
	defaultRateWaitCap = 5 * time.Second
)

// Config wires an Engine's collaborators.
type Config struct {
	Provider   ai.Provider
	Chunker    *chunk.Chunker
	Cache      *cache.Cache       // nil disables caching
	Limiter    *ratelimit.Limiter // nil disables rate gating
	Accountant *cost.Accountant   // nil disables cost tracking
	Workers    int
	MaxRetries int

	// RateWaitCap bounds how long one attempt waits on a denied
	// limiter before the attempt is charged.
	RateWaitCap time.Duration

	Preprocess     bool
	PreprocessOpts preprocess.Options
	Logger         zerolog.Logger
}

// Report is the outcome of analyzing one document.
type Report struct {
	Analysis     string                `json:"analysis"`
	Format       preprocess.Format     `json:"format"`
	Complexity   preprocess.Complexity `json:"complexity"`
	Variant      ai.Variant            `json:"variant"`
	Segments     int                   `json:"segments"`
	Cached       int                   `json:"cached"`
	Deduplicated int                   `json:"deduplicated"`
	Failed       int                   `json:"failed"`
	InputTokens  int                   `json:"input_tokens"`
	OutputTokens int                   `json:"output_tokens"`
	CostUSD      float64               `json:"cost_usd"`
	Duration     time.Duration         `json:"-"`
}

// Engine runs the analysis pipeline. It is safe for concurrent use.
type Engine struct {
	provider   ai.Provider
	chunker    *chunk.Chunker
	cache      *cache.Cache
	limiter    *ratelimit.Limiter
	accountant *cost.Accountant
	workers    int
	maxRetries int
	rateWait   time.Duration
	prep       bool
	prepOpts   preprocess.Options
	log        zerolog.Logger

	flight singleflight.Group
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, errors.New("pipeline: provider is required")
	}
	if cfg.Chunker == nil {
		return nil, errors.New("pipeline: chunker is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RateWaitCap <= 0 {
		cfg.RateWaitCap = defaultRateWaitCap
	}
	return &Engine{
		provider:   cfg.Provider,
		chunker:    cfg.Chunker,
		cache:      cfg.Cache,
		limiter:    cfg.Limiter,
		accountant: cfg.Accountant,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		rateWait:   cfg.RateWaitCap,
		prep:       cfg.Preprocess,
		prepOpts:   cfg.PreprocessOpts,
		log:        cfg.Logger,
		sleep:      sleepCtx,
	}, nil
}

type segmentOutcome struct {
	analysis     string
	err          error
	cached       bool
	shared       bool
	inputTokens  int
	outputTokens int
	costUSD      float64
}

// flightResult is the value carried through the single-flight group.
// claimed lets exactly one of the sharing callers take ownership of
// the call's tokens and cost.
type flightResult struct {
	analysis     string
	cached       bool
	inputTokens  int
	outputTokens int
	costUSD      float64
	claimed      *int32
}

// Analyze runs the full pipeline over one document. Segments that fail
// after all retries are marked with an inline gap note; the whole call
// fails only when the input is unusable or every segment fails.
func (e *Engine) Analyze(ctx context.Context, text string) (*Report, error) {
	start := time.Now()

	working := text
	if e.prep {
		working = preprocess.Filter(working, e.prepOpts)
	}

	format := preprocess.DetectFormat(working)
	complexity := preprocess.EstimateComplexity(working)
	variant := ai.SelectVariant(string(complexity))

	segments, err := e.chunker.Split(working)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	e.log.Info().
		Int("segments", len(segments)).
		Int("est_tokens", ai.EstimateTokens(working)).
		Str("format", string(format)).
		Str("complexity", string(complexity)).
		Str("variant", string(variant)).
		Msg("starting analysis")

	outcomes := e.dispatch(ctx, segments, format, complexity, variant)

	report := &Report{
		Format:     format,
		Complexity: complexity,
		Variant:    variant,
		Segments:   len(segments),
	}

	parts := make([]string, 0, len(segments))
	var firstErr error
	for i, out := range outcomes {
		switch {
		case out.err != nil:
			report.Failed++
			if firstErr == nil {
				firstErr = out.err
			}
			seg := segments[i]
			parts = append(parts, fmt.Sprintf("[segment %d (bytes %d-%d) could not be analyzed: %v]",
				seg.Index, seg.Start, seg.End, out.err))
			metrics.SegmentsTotal.WithLabelValues("failed").Inc()
		case out.cached:
			report.Cached++
			parts = append(parts, out.analysis)
			metrics.SegmentsTotal.WithLabelValues("cached").Inc()
		case out.shared:
			report.Deduplicated++
			parts = append(parts, out.analysis)
			metrics.SegmentsTotal.WithLabelValues("deduplicated").Inc()
		default:
			parts = append(parts, out.analysis)
			metrics.SegmentsTotal.WithLabelValues("analyzed").Inc()
		}
		report.InputTokens += out.inputTokens
		report.OutputTokens += out.outputTokens
		report.CostUSD += out.costUSD
	}

	if report.Failed == len(segments) {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("all %d segments failed: %w", len(segments), firstErr)
	}

	report.Analysis = strings.Join(parts, "\n\n")
	report.Duration = time.Since(start)

	metrics.AnalysesTotal.WithLabelValues("ok").Inc()
	metrics.AnalysisDuration.Observe(report.Duration.Seconds())

	e.log.Info().
		Int("segments", report.Segments).
		Int("cached", report.Cached).
		Int("deduplicated", report.Deduplicated).
		Int("failed", report.Failed).
		Float64("cost_usd", report.CostUSD).
		Dur("duration", report.Duration).
		Msg("analysis complete")

	return report, nil
}

// dispatch fans segments out to a bounded worker pool and collects
// outcomes in document order.
func (e *Engine) dispatch(ctx context.Context, segments []chunk.Segment, format preprocess.Format, complexity preprocess.Complexity, variant ai.Variant) []segmentOutcome {
	outcomes := make([]segmentOutcome, len(segments))

	workers := e.workers
	if workers > len(segments) {
		workers = len(segments)
	}

	jobs := make(chan chunk.Segment)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range jobs {
				outcomes[seg.Index] = e.analyzeSegment(ctx, seg, format, complexity, variant)
			}
		}()
	}

	fed := make([]bool, len(segments))
feed:
	for _, seg := range segments {
		select {
		case jobs <- seg:
			fed[seg.Index] = true
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// Segments never handed to a worker get the cancellation error.
	for i := range outcomes {
		if !fed[i] {
			outcomes[i] = segmentOutcome{err: ctx.Err()}
		}
	}
	return outcomes
}

// analyzeSegment resolves one segment: cache first, then a
// single-flight model call shared with any concurrent identical
// segment.
func (e *Engine) analyzeSegment(ctx context.Context, seg chunk.Segment, format preprocess.Format, complexity preprocess.Complexity, variant ai.Variant) segmentOutcome {
	fp := cache.NewFingerprint(seg.Text, e.provider.Model(), string(variant), string(format))

	if analysis, ok := e.cache.Get(fp); ok {
		return segmentOutcome{analysis: analysis, cached: true}
	}

	v, err, _ := e.flight.Do(string(fp), func() (interface{}, error) {
		// A concurrent flight may have populated the cache after our
		// miss above.
		if analysis, ok := e.cache.Get(fp); ok {
			return flightResult{analysis: analysis, cached: true}, nil
		}

		if err := e.waitForSlot(ctx); err != nil {
			return nil, err
		}

		completion, err := e.invokeWithRetry(ctx, seg, format, complexity, variant)
		if err != nil {
			return nil, err
		}

		res := flightResult{
			analysis:     completion.Text,
			inputTokens:  completion.InputTokens,
			outputTokens: completion.OutputTokens,
			claimed:      new(int32),
		}
		if e.accountant != nil {
			usd, err := e.accountant.Record(e.provider.Model(), completion.InputTokens, completion.OutputTokens)
			if err != nil {
				e.log.Warn().Err(err).Msg("failed to persist cost record")
			}
			res.costUSD = usd
			metrics.CostUSDTotal.Add(usd)
		}

		e.cache.Put(fp, completion.Text)
		return res, nil
	})
	if err != nil {
		e.log.Warn().Err(err).Int("segment", seg.Index).Msg("segment analysis failed")
		return segmentOutcome{err: err}
	}

	res := v.(flightResult)
	if res.cached {
		return segmentOutcome{analysis: res.analysis, cached: true}
	}
	// singleflight reports shared=true to every caller of a shared
	// flight, the originator included. Tokens and cost belong to
	// exactly one segment, so the first caller through claims them.
	if res.claimed != nil && atomic.CompareAndSwapInt32(res.claimed, 0, 1) {
		return segmentOutcome{
			analysis:     res.analysis,
			inputTokens:  res.inputTokens,
			outputTokens: res.outputTokens,
			costUSD:      res.costUSD,
		}
	}
	return segmentOutcome{analysis: res.analysis, shared: true}
}

// waitForSlot acquires a rate-limit slot, waiting through denials with
// a bounded per-attempt wait and a bounded attempt budget.
func (e *Engine) waitForSlot(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}

	for attempt := 0; ; attempt++ {
		decision := e.limiter.TryAcquire()
		if decision.Allowed {
			return nil
		}
		for _, scope := range decision.Scopes {
			metrics.RateLimitDenialsTotal.WithLabelValues(string(scope)).Inc()
		}
		if attempt >= e.maxRetries {
			return decision.Err()
		}

		wait := decision.RetryAfter
		if wait > e.rateWait {
			wait = e.rateWait
		}
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// invokeWithRetry calls the provider with exponential backoff on
// retryable failures.
func (e *Engine) invokeWithRetry(ctx context.Context, seg chunk.Segment, format preprocess.Format, complexity preprocess.Complexity, variant ai.Variant) (*ai.Completion, error) {
	system, user := ai.BuildPrompt(variant, string(format), string(complexity), seg.Text)

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		completion, err := e.provider.Invoke(ctx, system, user)
		if err == nil {
			metrics.LLMCallsTotal.WithLabelValues(e.provider.Name(), "ok").Inc()
			return completion, nil
		}
		metrics.LLMCallsTotal.WithLabelValues(e.provider.Name(), "error").Inc()

		lastErr = err
		if !ai.ShouldRetry(err) || attempt == e.maxRetries {
			break
		}
		if serr := e.sleep(ctx, ai.BackoffDuration(err, attempt)); serr != nil {
			return nil, serr
		}
	}
	return nil, fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
