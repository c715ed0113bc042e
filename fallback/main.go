// Package fallback serves pre-authored suggestions when live generation is
// unavailable. The catalog is bundled with the binary.
package fallback

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"slices"

	"kibarashidev/logger"
	"kibarashidev/suggestion"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed data/general.yaml
var generalTable []byte

//go:embed data/jobhunting.yaml
var jobHuntingTable []byte

const (
	maxResults         = 3
	lowCandidateWarnAt = 5
)

// Buckets are the durations the catalog is authored for.
var Buckets = []int{5, 15, 30}

type entry struct {
	ID          string                 `yaml:"id"`
	Title       string                 `yaml:"title"`
	Description string                 `yaml:"description"`
	Category    string                 `yaml:"category"`
	Situations  []suggestion.Situation `yaml:"situations"`
	Durations   []int                  `yaml:"durations"`
	Steps       []string               `yaml:"steps"`
	Guide       string                 `yaml:"guide"`
	// Audiences narrows an entry to specific job hunting segments. Empty
	// means every audience reading the table.
	Audiences []suggestion.Audience `yaml:"audiences"`

	category suggestion.Category
}

type table struct {
	Entries []entry `yaml:"entries"`
}

type CatalogConnectProps struct {
	Logger *logger.LogMiddleware
	// General and JobHunting override the bundled YAML tables.
	General    []byte
	JobHunting []byte
	// IntN overrides the shuffle's random source. Defaults to math/rand/v2.
	IntN func(n int) int
}

type Catalog struct {
	logger     *logger.LogMiddleware
	general    []entry
	jobHunting []entry
	intN       func(n int) int
}

func Connect(ctx context.Context, args CatalogConnectProps) (*Catalog, error) {
	tracer := otel.Tracer("fallback/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	if args.Logger == nil {
		args.Logger = logger.Nop()
	}
	if args.General == nil {
		args.General = generalTable
	}
	if args.JobHunting == nil {
		args.JobHunting = jobHuntingTable
	}
	if args.IntN == nil {
		args.IntN = rand.IntN
	}

	general, err := loadTable(args.General)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("general catalog: %w", err)
	}
	jobHunting, err := loadTable(args.JobHunting)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("job hunting catalog: %w", err)
	}

	span.SetAttributes(attribute.Int("general", len(general)), attribute.Int("jobHunting", len(jobHunting)))
	args.Logger.Logger(ctx).Info("[Fallback] Catalog loaded",
		zap.Int("general", len(general)),
		zap.Int("jobHunting", len(jobHunting)))

	return &Catalog{logger: args.Logger, general: general, jobHunting: jobHunting, intN: args.IntN}, nil
}

func loadTable(data []byte) ([]entry, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	for i := range t.Entries {
		e := &t.Entries[i]
		if e.ID == "" || e.Title == "" {
			return nil, fmt.Errorf("entry %d: id and title are required", i)
		}
		c, ok := suggestion.ParseCategory(e.Category)
		if !ok {
			return nil, fmt.Errorf("entry %s: unknown category %q", e.ID, e.Category)
		}
		e.category = c
		for _, s := range e.Situations {
			if !s.Valid() {
				return nil, fmt.Errorf("entry %s: unknown situation %q", e.ID, s)
			}
		}
		for _, a := range e.Audiences {
			if a == suggestion.AudienceDefault || suggestion.ParseAudience(string(a)) != a {
				return nil, fmt.Errorf("entry %s: unknown audience %q", e.ID, a)
			}
		}
	}
	return t.Entries, nil
}

// Select returns up to three suggestions for the key in random order. It
// never fails; a key with no candidates yields an empty slice. Job seekers,
// career changers and the job_hunting situation draw only from the job
// hunting table, where entries tagged for one segment are withheld from the
// other.
func (c *Catalog) Select(ctx context.Context, situation suggestion.Situation, duration int, audience suggestion.Audience) []suggestion.Suggestion {
	tracer := otel.Tracer("fallback/Select")
	ctx, span := tracer.Start(ctx, "Select")
	defer span.End()

	source := c.general
	tableName := "general"
	if audience.IsJobHunting() || situation == suggestion.SituationJobHunting {
		source = c.jobHunting
		tableName = "job_hunting"
	}

	var candidates []entry
	for _, e := range source {
		if len(e.Situations) > 0 && !slices.Contains(e.Situations, situation) {
			continue
		}
		if !slices.Contains(e.Durations, duration) {
			continue
		}
		if audience.IsJobHunting() && len(e.Audiences) > 0 && !slices.Contains(e.Audiences, audience) {
			continue
		}
		candidates = append(candidates, e)
	}

	span.SetAttributes(
		attribute.String("situation", string(situation)),
		attribute.Int("duration", duration),
		attribute.String("table", tableName),
		attribute.Int("candidates", len(candidates)),
	)
	if len(candidates) < lowCandidateWarnAt {
		c.logger.Logger(ctx).Warn("[Fallback] Few candidates for key",
			zap.String("situation", string(situation)),
			zap.Int("duration", duration),
			zap.String("audience", string(audience)),
			zap.String("table", tableName),
			zap.Int("candidates", len(candidates)))
	}

	picked := Shuffle(candidates, c.intN)
	if len(picked) > maxResults {
		picked = picked[:maxResults]
	}

	out := make([]suggestion.Suggestion, 0, len(picked))
	for _, e := range picked {
		out = append(out, suggestion.Suggestion{
			ID:              e.ID,
			Title:           e.Title,
			Description:     e.Description,
			DurationMinutes: duration,
			Category:        e.category,
			Steps:           slices.Clone(e.Steps),
			Guide:           e.Guide,
		})
	}
	return out
}

// Shuffle returns a Fisher-Yates shuffled copy of items. intN must return a
// uniform value in [0, n).
func Shuffle[T any](items []T, intN func(n int) int) []T {
	out := slices.Clone(items)
	for i := len(out) - 1; i > 0; i-- {
		j := intN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// NearestBucket maps any duration onto the closest authored bucket. Ties go
// to the shorter bucket.
func NearestBucket(duration int) int {
	best := Buckets[0]
	for _, b := range Buckets[1:] {
		if abs(duration-b) < abs(duration-best) {
			best = b
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
