// Package engine runs site adapters one after another against a single
// browser session and collects one MeasurementResult per adapter.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/williampepple1/speedscraper/internal/metric"
	"github.com/williampepple1/speedscraper/internal/page"
	"github.com/williampepple1/speedscraper/internal/site"
	"github.com/williampepple1/speedscraper/pkg/models"
)

// Observer is notified of every protocol state entered
type Observer func(provider string, state State)

// Engine drives the provider protocol
type Engine struct {
	open     page.Opener
	adapters []site.Adapter
	poller   *page.Poller
	logger   *zap.Logger
	observer Observer
}

// Option configures an Engine
type Option func(*Engine)

// WithPoller sets the completion poller
func WithPoller(p *page.Poller) Option {
	return func(e *Engine) { e.poller = p }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers a state observer
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates an engine that acquires its session through open and visits
// adapters in the given order.
func New(open page.Opener, adapters []site.Adapter, opts ...Option) *Engine {
	e := &Engine{
		open:     open,
		adapters: append([]site.Adapter(nil), adapters...),
		poller:   page.NewPoller(page.DefaultPollInterval, page.NoDeadline),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run opens the session, visits every adapter in order and closes the
// session exactly once. On a fatal error the remaining adapters are skipped
// and the results gathered so far are returned with the error.
func (e *Engine) Run(ctx context.Context) ([]models.MeasurementResult, error) {
	log := e.logger.With(zap.String("run_id", uuid.New().String()))

	session, err := e.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSession, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("Failed to close browser session.", zap.Error(err))
		}
	}()

	results := make([]models.MeasurementResult, 0, len(e.adapters))
	for i, adapter := range e.adapters {
		alog := log.With(zap.String("provider", adapter.Name()), zap.Int("index", i))

		result, err := e.visit(ctx, session, adapter, alog)
		if err != nil {
			alog.Error("Provider run failed; skipping the rest.",
				zap.Error(err),
				zap.Int("skipped", len(e.adapters)-i-1))
			return results, err
		}

		results = append(results, result)
		e.enter(adapter, Aggregated, alog)
	}

	log.Info("All providers finished.", zap.Int("results", len(results)))
	return results, nil
}

func (e *Engine) visit(ctx context.Context, pg page.Page, a site.Adapter, log *zap.Logger) (models.MeasurementResult, error) {
	start := time.Now()

	e.enter(a, Navigating, log)
	if err := pg.Navigate(ctx, a.TargetURL(), a.ReadyCondition()); err != nil {
		return models.MeasurementResult{}, e.fail(ctx, a, Navigating, ErrNavigation, err)
	}

	if selector := a.TriggerSelector(); selector != "" {
		e.enter(a, Triggering, log)
		if err := pg.Click(ctx, selector); err != nil {
			return models.MeasurementResult{}, e.fail(ctx, a, Triggering, ErrExtraction, err)
		}
	}

	e.enter(a, AwaitingCompletion, log)
	if err := e.poller.Await(ctx, pg, a.Completion()); err != nil {
		return models.MeasurementResult{}, e.fail(ctx, a, AwaitingCompletion, ErrExtraction, err)
	}

	e.enter(a, Extracting, log)
	raw, err := a.Extract(ctx, pg, e.poller)
	if err != nil {
		return models.MeasurementResult{}, e.fail(ctx, a, Extracting, ErrExtraction, err)
	}

	result := metric.Normalize(a.Name(), a.TargetURL(), raw)
	result.Duration = time.Since(start)
	if !result.Complete() {
		log.Warn("Some metrics could not be parsed.", zap.Any("raw", raw))
	}

	e.enter(a, Done, log)
	log.Info("Provider finished.",
		zap.Stringer("ping_ms", result.Ping),
		zap.Stringer("download_mbps", result.Download),
		zap.Stringer("upload_mbps", result.Upload),
		zap.String("server", result.Server),
		zap.Duration("took", result.Duration))

	return result, nil
}

func (e *Engine) enter(a site.Adapter, s State, log *zap.Logger) {
	log.Debug("State change.", zap.Stringer("state", s))
	if e.observer != nil {
		e.observer(a.Name(), s)
	}
}

func (e *Engine) fail(ctx context.Context, a site.Adapter, s State, kind, err error) error {
	if ctx.Err() != nil {
		kind = ErrCanceled
	}
	return &StepError{Provider: a.Name(), State: s, Kind: kind, Err: err}
}
