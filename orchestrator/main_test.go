package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"kibarashidev/contextual"
	"kibarashidev/fallback"
	"kibarashidev/keypool"
	"kibarashidev/logger"
	"kibarashidev/modelapi/geminiapi"
	"kibarashidev/suggestion"
	"kibarashidev/voiceguide"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply func(ctx context.Context) (string, error)

func ok(text string) reply {
	return func(context.Context) (string, error) { return text, nil }
}

func fail(msg string) reply {
	return func(context.Context) (string, error) { return "", errors.New(msg) }
}

func hang(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// scriptedGenerator plays replies in order and repeats the last one.
type scriptedGenerator struct {
	mu          sync.Mutex
	replies     []reply
	credentials []string
	prompts     []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, credential string) (string, error) {
	g.mu.Lock()
	n := len(g.credentials)
	g.credentials = append(g.credentials, credential)
	g.prompts = append(g.prompts, prompt)
	r := g.replies[min(n, len(g.replies)-1)]
	g.mu.Unlock()
	return r(ctx)
}

func (g *scriptedGenerator) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.credentials...)
}

func (g *scriptedGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1]
}

type stubContext struct {
	calls int
	snap  contextual.Snapshot
	err   error
}

func (s *stubContext) Snapshot(context.Context) (contextual.Snapshot, error) {
	s.calls++
	return s.snap, s.err
}

type fixture struct {
	pool    *keypool.Pool
	orch    *Orchestrator
	history *suggestion.History
}

func newFixture(t *testing.T, pool keypool.KeyPoolConnectProps, gen Generator, ctxSource ContextSource) fixture {
	t.Helper()
	ctx := context.Background()

	pool.Logger = logger.Nop()
	p := keypool.Connect(ctx, pool)
	catalog, err := fallback.Connect(ctx, fallback.CatalogConnectProps{Logger: logger.Nop()})
	require.NoError(t, err)
	history := suggestion.NewHistory()

	props := OrchestratorConnectProps{
		Logger:       logger.Nop(),
		Pool:         p,
		Generator:    gen,
		Catalog:      catalog,
		History:      history,
		MaxAttempts:  3,
		CallTimeout:  time.Second,
		RetryBackoff: time.Millisecond,
	}
	if ctxSource != nil {
		props.Context = ctxSource
	}
	o, err := Connect(ctx, props)
	require.NoError(t, err)
	return fixture{pool: p, orch: o, history: history}
}

func requireWellFormed(t *testing.T, items []suggestion.Suggestion, duration int) {
	t.Helper()
	require.NotEmpty(t, items)
	require.LessOrEqual(t, len(items), 3)
	for _, s := range items {
		assert.NotEmpty(t, s.ID)
		assert.NotEmpty(t, s.Title)
		assert.Equal(t, duration, s.DurationMinutes)
		assert.Contains(t, []suggestion.Category{suggestion.CategoryCognitive, suggestion.CategoryBehavioral}, s.Category)
	}
}

func TestTestModeWithoutCredentialsUsesCannedSuggestions(t *testing.T) {
	ctx := context.Background()
	gemini := geminiapi.Connect(ctx, geminiapi.GeminiConnectProps{Logger: logger.Nop()})
	f := newFixture(t, keypool.KeyPoolConnectProps{TestMode: true}, gemini, nil)

	items, err := f.orch.GenerateSuggestions(ctx, suggestion.Request{Situation: suggestion.SituationWorkplace, DurationMinutes: 5})
	require.NoError(t, err)
	requireWellFormed(t, items, 5)
	assert.Len(t, items, 3)
	for _, s := range items {
		assert.True(t, strings.HasPrefix(s.ID, "gemini-"), s.ID)
	}
	assert.Equal(t, 1, f.pool.Stats().SuccessfulRequests)
}

func TestRetriesWithRotatedCredentialUntilSuccess(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{fail("connection reset"), fail("internal error"), ok(geminiapi.CANNED_RESPONSE)}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a", "b", "c"}, RotationEnabled: true}, gen, nil)

	items, err := f.orch.GenerateSuggestions(context.Background(), suggestion.Request{Situation: suggestion.SituationHome, DurationMinutes: 15})
	require.NoError(t, err)
	requireWellFormed(t, items, 15)
	assert.Equal(t, "Deep breathing", items[0].Title)

	assert.Equal(t, []string{"a", "b", "c"}, gen.calls())
	stats := f.pool.Stats()
	assert.Equal(t, 2, stats.FailedRequests)
	assert.Equal(t, 1, stats.SuccessfulRequests)
	assert.Equal(t, 0, stats.RateLimitHitCount)
}

func TestAllCredentialsCoolingDownFallsBack(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{replies: []reply{fail("429 Too Many Requests")}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a", "b"}, RotationEnabled: true}, gen, nil)
	f.pool.ReportFailure(ctx, "a", true)
	f.pool.ReportFailure(ctx, "b", true)
	require.Equal(t, 0, f.pool.AvailableCount())

	items, err := f.orch.GenerateSuggestions(ctx, suggestion.Request{Situation: suggestion.SituationHome, DurationMinutes: 15})
	require.NoError(t, err)
	requireWellFormed(t, items, 15)
	assert.False(t, strings.HasPrefix(items[0].ID, "gemini-"))
	assert.Len(t, gen.calls(), 1)
}

func TestNoCredentialsOutsideTestModeFallsBack(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{ok(geminiapi.CANNED_RESPONSE)}}
	f := newFixture(t, keypool.KeyPoolConnectProps{}, gen, nil)

	items, err := f.orch.GenerateSuggestions(context.Background(), suggestion.Request{Situation: suggestion.SituationCommuting, DurationMinutes: 5})
	require.NoError(t, err)
	requireWellFormed(t, items, 5)
	assert.Empty(t, gen.calls())
}

func TestValidationErrors(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{ok(geminiapi.CANNED_RESPONSE)}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a"}}, gen, nil)

	cases := []suggestion.Request{
		{Situation: "spaceship", DurationMinutes: 5},
		{Situation: suggestion.SituationHome, DurationMinutes: 0},
		{Situation: suggestion.SituationHome, DurationMinutes: -5},
		{Situation: suggestion.SituationHome, DurationMinutes: 121},
	}
	for _, req := range cases {
		items, err := f.orch.GenerateSuggestions(context.Background(), req)
		var verr *suggestion.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Nil(t, items)
	}
	assert.Empty(t, gen.calls())
	assert.Equal(t, 0, f.pool.Stats().TotalRequests)
}

func TestTimeoutCountsAsFailure(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{replies: []reply{hang}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a"}}, gen, nil)
	f.orch.callTimeout = 20 * time.Millisecond
	f.orch.maxAttempts = 2

	items, err := f.orch.GenerateSuggestions(ctx, suggestion.Request{Situation: suggestion.SituationOutside, DurationMinutes: 30})
	require.NoError(t, err)
	requireWellFormed(t, items, 30)

	stats := f.pool.Stats()
	assert.Equal(t, 2, stats.FailedRequests)
	assert.Equal(t, 0, stats.SuccessfulRequests)
	assert.Len(t, gen.calls(), 2)
}

func TestParseErrorIsRetried(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{ok("Sorry, I cannot help with that."), ok("```json\n" + geminiapi.CANNED_RESPONSE + "\n```")}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a"}}, gen, nil)

	items, err := f.orch.GenerateSuggestions(context.Background(), suggestion.Request{Situation: suggestion.SituationSchool, DurationMinutes: 5})
	require.NoError(t, err)
	requireWellFormed(t, items, 5)

	stats := f.pool.Stats()
	assert.Equal(t, 1, stats.FailedRequests)
	assert.Equal(t, 1, stats.SuccessfulRequests)
	assert.Equal(t, 0, stats.PerCredential[0].ConsecutiveFailures)
}

func TestRateLimitCoolsDownAndStopsRetrying(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{fail("Error 429, Message: Resource has been exhausted (e.g. check quota)., Status: RESOURCE_EXHAUSTED")}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a"}}, gen, nil)

	items, err := f.orch.GenerateSuggestions(context.Background(), suggestion.Request{Situation: suggestion.SituationWorkplace, DurationMinutes: 15})
	require.NoError(t, err)
	requireWellFormed(t, items, 15)

	stats := f.pool.Stats()
	assert.Equal(t, 1, stats.RateLimitHitCount)
	assert.True(t, stats.PerCredential[0].OnCooldown)
	assert.Len(t, gen.calls(), 1)
}

func TestFallbackUsesNearestBucket(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{fail("boom")}}
	f := newFixture(t, keypool.KeyPoolConnectProps{}, gen, nil)

	items, err := f.orch.GenerateSuggestions(context.Background(), suggestion.Request{Situation: suggestion.SituationHome, DurationMinutes: 7})
	require.NoError(t, err)
	requireWellFormed(t, items, 7)
}

func TestHistoryFeedsLaterPrompts(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{replies: []reply{ok(geminiapi.CANNED_RESPONSE)}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a"}}, gen, nil)
	req := suggestion.Request{Situation: suggestion.SituationHome, DurationMinutes: 5}

	_, err := f.orch.GenerateSuggestions(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, gen.lastPrompt(), "first-time user")
	assert.Equal(t, 3, f.history.Len(suggestion.KeyFor(req)))

	_, err = f.orch.GenerateSuggestions(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, gen.lastPrompt(), "- Deep breathing\n")
	assert.Equal(t, 3, f.history.Len(suggestion.KeyFor(req)))
}

func TestContextEnrichment(t *testing.T) {
	ctx := context.Background()
	source := &stubContext{snap: contextual.Snapshot{
		Weather:  &contextual.WeatherFacts{TemperatureC: 25, Condition: contextual.Sunny, Description: "clear sky", Location: "Tokyo"},
		Seasonal: contextual.Seasonal(time.Date(2025, time.May, 3, 12, 0, 0, 0, time.UTC)),
	}}
	gen := &scriptedGenerator{replies: []reply{ok(`{"suggestions": ` + geminiapi.CANNED_RESPONSE + `}`)}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a"}}, gen, source)

	items, err := f.orch.GenerateSuggestions(ctx, suggestion.Request{Situation: suggestion.SituationOutside, DurationMinutes: 15, EnrichContext: true})
	require.NoError(t, err)
	requireWellFormed(t, items, 15)
	assert.Contains(t, gen.lastPrompt(), "Weather in Tokyo")
	assert.Equal(t, 1, source.calls)

	_, err = f.orch.GenerateSuggestions(ctx, suggestion.Request{
		Situation:       suggestion.SituationStudying,
		DurationMinutes: 15,
		EnrichContext:   true,
		Student:         &suggestion.StudentContext{Concern: "exam nerves"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.NotContains(t, gen.lastPrompt(), "Weather in")
}

func TestContextFailureDegradesToPlainPrompt(t *testing.T) {
	source := &stubContext{err: context.DeadlineExceeded}
	gen := &scriptedGenerator{replies: []reply{ok(geminiapi.CANNED_RESPONSE)}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a"}}, gen, source)

	items, err := f.orch.GenerateSuggestions(context.Background(), suggestion.Request{Situation: suggestion.SituationHome, DurationMinutes: 5, EnrichContext: true})
	require.NoError(t, err)
	requireWellFormed(t, items, 5)
	assert.NotContains(t, gen.lastPrompt(), "Today's context")
}

func TestEnhancedSuggestionsWithVoice(t *testing.T) {
	enhanced := `[{"title":"Box breathing","description":"Four even counts.","category":"cognitive",
		"steps":["Inhale","Hold","Exhale"],"guide":"Stay relaxed.",
		"displaySteps":["In 4","Hold 4","Out 4"],"displayGuide":"Breathe in a square.",
		"detailedSteps":["Breathe in slowly for four counts","Hold gently for four counts","Let it all out for four counts"],
		"encouragementPhases":["Lovely, keep going"]}]`
	gen := &scriptedGenerator{replies: []reply{ok(enhanced)}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a"}}, gen, nil)

	items, err := f.orch.GenerateEnhancedSuggestions(context.Background(), suggestion.Request{Situation: suggestion.SituationHome, DurationMinutes: 5}, voiceguide.DetailDetailed, true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, gen.lastPrompt(), "detailedSteps")

	e := items[0]
	assert.Equal(t, []string{"In 4", "Hold 4", "Out 4"}, e.DisplaySteps)
	assert.Equal(t, "Breathe in a square.", e.DisplayGuide)
	require.NotNil(t, e.VoiceGuideScript)

	script := e.VoiceGuideScript
	assert.Equal(t, 300, script.TotalDurationSeconds)
	require.NotEmpty(t, script.Segments)
	assert.Equal(t, voiceguide.SegmentIntro, script.Segments[0].Type)
	assert.Equal(t, 0, script.Segments[0].StartTime)
	last := script.Segments[len(script.Segments)-1]
	assert.Equal(t, voiceguide.SegmentClosing, last.Type)
	assert.Equal(t, 300, last.End())

	var mains []string
	for _, seg := range script.Segments {
		if seg.Type == voiceguide.SegmentMain {
			mains = append(mains, seg.Text)
		}
	}
	require.Len(t, mains, 3)
	assert.Contains(t, mains[0], "Breathe in slowly for four counts")
}

func TestEnhancedFallbackWithoutVoice(t *testing.T) {
	gen := &scriptedGenerator{replies: []reply{fail("boom")}}
	f := newFixture(t, keypool.KeyPoolConnectProps{}, gen, nil)

	items, err := f.orch.GenerateEnhancedSuggestions(context.Background(), suggestion.Request{Situation: suggestion.SituationWorkplace, DurationMinutes: 5}, voiceguide.DetailStandard, false)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	for _, e := range items {
		assert.NotEmpty(t, e.DisplaySteps)
		assert.NotEmpty(t, e.DisplayGuide)
		assert.Nil(t, e.VoiceGuideScript)
	}
}

func TestOperationalOverrides(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{replies: []reply{ok(geminiapi.CANNED_RESPONSE)}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a", "b"}, RotationEnabled: true}, gen, nil)

	assert.Equal(t, 0, f.orch.KeyPoolStats().CurrentIndex)
	assert.Equal(t, 1, f.orch.ForceKeyRotation(ctx))

	f.pool.ReportFailure(ctx, "a", true)
	f.pool.ReportFailure(ctx, "b", true)
	assert.Equal(t, 0, f.orch.KeyPoolStats().AvailableCount)
	f.orch.ResetAllCooldowns(ctx)
	assert.Equal(t, 2, f.orch.KeyPoolStats().AvailableCount)

	empty := newFixture(t, keypool.KeyPoolConnectProps{}, gen, nil)
	assert.Equal(t, -1, empty.orch.ForceKeyRotation(ctx))
}

func TestCanceledRequestStillResolves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{replies: []reply{hang}}
	f := newFixture(t, keypool.KeyPoolConnectProps{Secrets: []string{"a"}}, gen, nil)

	items, err := f.orch.GenerateSuggestions(ctx, suggestion.Request{Situation: suggestion.SituationHome, DurationMinutes: 5})
	require.NoError(t, err)
	requireWellFormed(t, items, 5)
	assert.Equal(t, 0, f.pool.Stats().FailedRequests)
}

func TestConnectRequiresCollaborators(t *testing.T) {
	_, err := Connect(context.Background(), OrchestratorConnectProps{})
	assert.Error(t, err)
}
