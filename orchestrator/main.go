// Package orchestrator runs a suggestion request end to end: prompt, credential,
// model call, parsing, retries with rotation and the static fallback.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kibarashidev/contextual"
	"kibarashidev/fallback"
	"kibarashidev/keypool"
	"kibarashidev/logger"
	"kibarashidev/prompts"
	"kibarashidev/suggestion"
	"kibarashidev/voiceguide"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxSuggestions = 3

var ErrCallTimeout = errors.New("generation call timed out")

// Generator is the generative text API.
type Generator interface {
	Generate(ctx context.Context, prompt string, credential string) (string, error)
}

// ContextSource supplies weather and seasonal facts for enriched prompts.
type ContextSource interface {
	Snapshot(ctx context.Context) (contextual.Snapshot, error)
}

type OrchestratorConnectProps struct {
	Logger    *logger.LogMiddleware
	Pool      *keypool.Pool
	Generator Generator
	// Context is optional. Without it enrichment is skipped.
	Context ContextSource
	Catalog *fallback.Catalog
	History *suggestion.History

	MaxAttempts  int
	CallTimeout  time.Duration
	RetryBackoff time.Duration
}

type Orchestrator struct {
	logger        *logger.LogMiddleware
	pool          *keypool.Pool
	generator     Generator
	contextSource ContextSource
	catalog       *fallback.Catalog
	history       *suggestion.History

	maxAttempts  int
	callTimeout  time.Duration
	retryBackoff time.Duration

	outcomes metric.Int64Counter
	attempts metric.Int64Counter
}

func Connect(ctx context.Context, args OrchestratorConnectProps) (*Orchestrator, error) {
	tracer := otel.Tracer("orchestrator/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	if args.Pool == nil || args.Generator == nil || args.Catalog == nil {
		return nil, errors.New("orchestrator: pool, generator and catalog are required")
	}
	if args.Logger == nil {
		args.Logger = logger.Nop()
	}
	if args.History == nil {
		args.History = suggestion.NewHistory()
	}
	if args.MaxAttempts <= 0 {
		args.MaxAttempts = 3
	}
	if args.CallTimeout <= 0 {
		args.CallTimeout = 10 * time.Second
	}
	switch {
	case args.RetryBackoff == 0:
		args.RetryBackoff = time.Second
	case args.RetryBackoff < 0:
		args.RetryBackoff = 0
	}

	meter := otel.Meter("kibarashidev/orchestrator")
	outcomes, err := meter.Int64Counter("suggestions.generation.outcomes",
		metric.WithDescription("Suggestion requests by terminal outcome"))
	if err != nil {
		outcomes, _ = noop.Meter{}.Int64Counter("suggestions.generation.outcomes")
	}
	attempts, err := meter.Int64Counter("suggestions.generation.attempts",
		metric.WithDescription("Generative API attempts by result"))
	if err != nil {
		attempts, _ = noop.Meter{}.Int64Counter("suggestions.generation.attempts")
	}

	span.SetAttributes(
		attribute.Int("maxAttempts", args.MaxAttempts),
		attribute.Int64("callTimeoutMs", args.CallTimeout.Milliseconds()),
	)
	args.Logger.Logger(ctx).Info("[Orchestrator] Ready",
		zap.Int("maxAttempts", args.MaxAttempts),
		zap.Duration("callTimeout", args.CallTimeout),
		zap.Duration("retryBackoff", args.RetryBackoff),
		zap.Bool("context", args.Context != nil))

	return &Orchestrator{
		logger:        args.Logger,
		pool:          args.Pool,
		generator:     args.Generator,
		contextSource: args.Context,
		catalog:       args.Catalog,
		history:       args.History,
		maxAttempts:   args.MaxAttempts,
		callTimeout:   args.CallTimeout,
		retryBackoff:  args.RetryBackoff,
		outcomes:      outcomes,
		attempts:      attempts,
	}, nil
}

// GenerateSuggestions returns one to three suggestions for req. The only
// error it returns is a *suggestion.ValidationError; every other failure is
// resolved through the fallback catalog.
func (o *Orchestrator) GenerateSuggestions(ctx context.Context, req suggestion.Request) ([]suggestion.Suggestion, error) {
	tracer := otel.Tracer("orchestrator/GenerateSuggestions")
	ctx, span := tracer.Start(ctx, "GenerateSuggestions")
	defer span.End()

	return o.generate(ctx, span, req, false)
}

// GenerateEnhancedSuggestions is GenerateSuggestions with display fields and,
// when includeVoice is set, a voice guide script per suggestion.
func (o *Orchestrator) GenerateEnhancedSuggestions(ctx context.Context, req suggestion.Request, level voiceguide.DetailLevel, includeVoice bool) ([]suggestion.EnhancedSuggestion, error) {
	tracer := otel.Tracer("orchestrator/GenerateEnhancedSuggestions")
	ctx, span := tracer.Start(ctx, "GenerateEnhancedSuggestions")
	defer span.End()

	span.SetAttributes(attribute.String("detailLevel", string(level)), attribute.Bool("includeVoice", includeVoice))

	base, err := o.generate(ctx, span, req, true)
	if err != nil {
		return nil, err
	}

	out := make([]suggestion.EnhancedSuggestion, 0, len(base))
	for _, s := range base {
		e := suggestion.Enhance(s)
		if includeVoice {
			script := voiceguide.Compose(voiceguide.Source{
				ID:              s.ID,
				Title:           s.Title,
				DurationMinutes: s.DurationMinutes,
				Steps:           s.NarrationSteps(),
				BreathingCues:   s.BreathingCues,
				Encouragements:  s.EncouragementPhases,
			}, level)
			e.VoiceGuideScript = &script
		}
		out = append(out, e)
	}
	return out, nil
}

func (o *Orchestrator) generate(ctx context.Context, span trace.Span, req suggestion.Request, enhanced bool) ([]suggestion.Suggestion, error) {
	span.SetAttributes(
		attribute.String("situation", string(req.Situation)),
		attribute.Int("duration", req.DurationMinutes),
		attribute.String("audience", string(req.Audience)),
		attribute.Bool("enhanced", enhanced),
	)

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		o.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "validation_error")))
		o.logger.Logger(ctx).Info("[Orchestrator] Rejected request", zap.Error(err))
		return nil, err
	}

	key := suggestion.KeyFor(req)
	in := prompts.Input{
		Request:  req,
		Snapshot: o.snapshot(ctx, req),
		History:  o.history.Recent(key, prompts.HistoryWindow),
		Enhanced: enhanced,
	}
	prompt := prompts.Build(in)
	span.SetAttributes(attribute.String("variant", string(prompts.Choose(in))))

	if err := o.pool.EnsureReady(); err != nil {
		o.logger.Logger(ctx).Warn("[Orchestrator] Key pool not ready, using fallback", zap.Error(err))
		return o.fallback(ctx, req), nil
	}

	credential := o.pool.Current(ctx)
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		span.AddEvent("Attempt", trace.WithAttributes(
			attribute.Int("attemptNumber", attempt),
			attribute.Int("credentialIndex", o.pool.CurrentIndex()),
		))

		result, err := o.attempt(ctx, prompt, credential, req.DurationMinutes)
		if err == nil {
			o.pool.ReportSuccess(ctx, credential)
			o.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
			o.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))

			titles := make([]string, 0, len(result))
			for _, s := range result {
				titles = append(titles, s.Title)
			}
			o.history.Add(key, titles...)

			o.logger.Logger(ctx).Info("[Orchestrator] Generated suggestions",
				zap.Int("attempt", attempt),
				zap.Int("count", len(result)),
				zap.String("key", key.String()))
			return result, nil
		}

		if ctx.Err() != nil {
			span.RecordError(ctx.Err())
			o.logger.Logger(ctx).Warn("[Orchestrator] Request context ended during generation", zap.Error(ctx.Err()))
			break
		}

		kind := ClassifyFailure(err)
		span.RecordError(err)
		o.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", kind.String())))
		o.logger.Logger(ctx).Warn("[Orchestrator] Generation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", o.maxAttempts),
			zap.Stringer("kind", kind),
			zap.Error(err))

		before := o.pool.CurrentIndex()
		o.pool.ReportFailure(ctx, credential, kind == FailureRateLimit)

		if attempt == o.maxAttempts || o.pool.AvailableCount() == 0 {
			break
		}
		if !o.wait(ctx) {
			break
		}
		if o.pool.CurrentIndex() == before {
			o.pool.ForceRotate(ctx)
		}
		credential = o.pool.Current(ctx)
	}

	o.logger.Logger(ctx).Warn("[Orchestrator] Generation unavailable, using fallback",
		zap.String("key", key.String()),
		zap.Int("availableCredentials", o.pool.AvailableCount()))
	return o.fallback(ctx, req), nil
}

// attempt makes one model call raced against the per-call timeout and parses
// the answer. A late answer after the timeout is dropped.
func (o *Orchestrator) attempt(ctx context.Context, prompt string, credential string, duration int) ([]suggestion.Suggestion, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := o.generator.Generate(callCtx, prompt, credential)
		done <- result{text: text, err: err}
	}()

	var r result
	select {
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %s", ErrCallTimeout, o.callTimeout)
	case r = <-done:
	}
	if r.err != nil {
		return nil, r.err
	}

	parsed, err := suggestion.ParseResponse(r.text, duration)
	if err != nil {
		return nil, err
	}
	return normalize(parsed, duration), nil
}

func normalize(items []suggestion.Suggestion, duration int) []suggestion.Suggestion {
	if len(items) > maxSuggestions {
		items = items[:maxSuggestions]
	}
	for i := range items {
		items[i].DurationMinutes = duration
	}
	return items
}

func (o *Orchestrator) wait(ctx context.Context) bool {
	if o.retryBackoff == 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(o.retryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// snapshot returns nil when enrichment is off, overridden by an audience
// context, or fails.
func (o *Orchestrator) snapshot(ctx context.Context, req suggestion.Request) *contextual.Snapshot {
	if !req.EnrichContext || req.HasOverrideContext() || o.contextSource == nil {
		return nil
	}
	snap, err := o.contextSource.Snapshot(ctx)
	if err != nil {
		o.logger.Logger(ctx).Warn("[Orchestrator] Context unavailable, using plain prompt", zap.Error(err))
		return nil
	}
	return &snap
}

// fallback draws from the static catalog. Durations outside the authored
// buckets use the nearest bucket and are restamped with the requested value.
func (o *Orchestrator) fallback(ctx context.Context, req suggestion.Request) []suggestion.Suggestion {
	bucket := fallback.NearestBucket(req.DurationMinutes)
	items := o.catalog.Select(ctx, req.Situation, bucket, req.Audience)
	if len(items) == 0 {
		for _, b := range fallback.Buckets {
			if b == bucket {
				continue
			}
			if items = o.catalog.Select(ctx, req.Situation, b, req.Audience); len(items) > 0 {
				break
			}
		}
	}
	o.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "fallback")))
	return normalize(items, req.DurationMinutes)
}

// KeyPoolStats is the admin view of the credential pool.
func (o *Orchestrator) KeyPoolStats() keypool.Stats {
	return o.pool.Stats()
}

// ForceKeyRotation rotates the pool and returns the new ordinal, or -1 when
// the pool is empty.
func (o *Orchestrator) ForceKeyRotation(ctx context.Context) int {
	o.pool.ForceRotate(ctx)
	return o.pool.CurrentIndex()
}

func (o *Orchestrator) ResetAllCooldowns(ctx context.Context) {
	o.pool.ResetAllCooldowns(ctx)
}
