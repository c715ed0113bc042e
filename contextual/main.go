// Package contextual gathers the weather and calendar facts used to tailor
// prompts. Weather is best effort; calendar facts are always available.
package contextual

import (
	"context"
	"time"

	"kibarashidev/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Condition string

const (
	Sunny   Condition = "sunny"
	Cloudy  Condition = "cloudy"
	Rainy   Condition = "rainy"
	Snowy   Condition = "snowy"
	Unknown Condition = "unknown"
)

type WeatherFacts struct {
	TemperatureC int       `json:"temperature"`
	Condition    Condition `json:"condition"`
	Description  string    `json:"description"`
	Humidity     int       `json:"humidity"`
	Location     string    `json:"location"`
	Icon         string    `json:"icon,omitempty"`
}

type WeatherSource interface {
	CurrentWeather(ctx context.Context) (*WeatherFacts, error)
}

type Snapshot struct {
	// Weather is nil when the weather source failed or is not configured.
	Weather    *WeatherFacts `json:"weather"`
	Seasonal   SeasonalFacts `json:"seasonal"`
	CapturedAt time.Time     `json:"capturedAt"`
}

type ProviderConnectProps struct {
	Logger  *logger.LogMiddleware
	Weather WeatherSource
	// Location is the zone calendar facts are computed in. Defaults to Asia/Tokyo.
	Location *time.Location
	Now      func() time.Time
}

type Provider struct {
	logger   *logger.LogMiddleware
	weather  WeatherSource
	location *time.Location
	now      func() time.Time
}

func Connect(ctx context.Context, args ProviderConnectProps) *Provider {
	if args.Logger == nil {
		args.Logger = logger.Nop()
	}
	if args.Now == nil {
		args.Now = time.Now
	}
	if args.Location == nil {
		loc, err := time.LoadLocation("Asia/Tokyo")
		if err != nil {
			loc = time.FixedZone("JST", 9*60*60)
		}
		args.Location = loc
	}
	args.Logger.Logger(ctx).Info("[Context] Provider ready", zap.Bool("weather", args.Weather != nil))
	return &Provider{logger: args.Logger, weather: args.Weather, location: args.Location, now: args.Now}
}

// Snapshot fetches weather and calendar facts concurrently. A weather failure
// only leaves Weather nil. The error is non-nil only when ctx ends first.
func (p *Provider) Snapshot(ctx context.Context) (Snapshot, error) {
	tracer := otel.Tracer("contextual/Snapshot")
	ctx, span := tracer.Start(ctx, "Snapshot")
	defer span.End()

	now := p.now().In(p.location)
	snap := Snapshot{CapturedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	if p.weather != nil {
		g.Go(func() error {
			w, err := p.weather.CurrentWeather(gctx)
			if err != nil {
				span.RecordError(err)
				p.logger.Logger(gctx).Warn("[Context] Weather unavailable, continuing without it", zap.Error(err))
				return nil
			}
			snap.Weather = w
			return nil
		})
	}
	g.Go(func() error {
		snap.Seasonal = Seasonal(now)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return Snapshot{}, err
	}

	span.SetAttributes(
		attribute.Bool("weather", snap.Weather != nil),
		attribute.String("season", string(snap.Seasonal.Season)),
	)
	return snap, nil
}
