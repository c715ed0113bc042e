package weatherapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kibarashidev/contextual"
	"kibarashidev/logger"

	"github.com/dgraph-io/ristretto/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL  = "https://api.openweathermap.org/data/2.5"
	requestTimeout  = 8 * time.Second
	requestInterval = time.Second
)

var (
	ErrNotConfigured = errors.New("weather API key not configured")
	ErrRateLimited   = errors.New("weather API rate limit exceeded")
)

type WeatherConnectProps struct {
	Logger   *logger.LogMiddleware
	APIKey   string
	Location string
	CacheTTL time.Duration
	// BaseURL and HTTPClient are overridable for tests.
	BaseURL    string
	HTTPClient *http.Client
	// MinInterval is the minimum gap between upstream requests.
	MinInterval time.Duration
}

type Weather struct {
	logger   *logger.LogMiddleware
	apiKey   string
	location string
	baseURL  string
	ttl      time.Duration
	client   *http.Client
	limiter  *rate.Limiter
	cache    *ristretto.Cache[string, contextual.WeatherFacts]
}

type currentWeatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Name string `json:"name"`
}

func Connect(ctx context.Context, args WeatherConnectProps) (*Weather, error) {
	tracer := otel.Tracer("weatherapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	if args.Logger == nil {
		args.Logger = logger.Nop()
	}
	if args.Location == "" {
		args.Location = "Tokyo"
	}
	if args.CacheTTL <= 0 {
		args.CacheTTL = 10 * time.Minute
	}
	if args.BaseURL == "" {
		args.BaseURL = DefaultBaseURL
	}
	if args.HTTPClient == nil {
		args.HTTPClient = &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if args.MinInterval <= 0 {
		args.MinInterval = requestInterval
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, contextual.WeatherFacts]{
		NumCounters:        1000,
		MaxCost:            100,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("weather cache: %w", err)
	}

	if args.APIKey == "" {
		args.Logger.Logger(ctx).Warn("[WeatherAPI] OPENWEATHER_API_KEY not set, weather context disabled")
	} else {
		args.Logger.Logger(ctx).Info("[WeatherAPI] Connecting OpenWeatherMap client", zap.String("location", args.Location))
	}
	span.SetAttributes(attribute.String("location", args.Location), attribute.Bool("configured", args.APIKey != ""))

	return &Weather{
		logger:   args.Logger,
		apiKey:   args.APIKey,
		location: args.Location,
		baseURL:  strings.TrimRight(args.BaseURL, "/"),
		ttl:      args.CacheTTL,
		client:   args.HTTPClient,
		limiter:  rate.NewLimiter(rate.Every(args.MinInterval), 1),
		cache:    cache,
	}, nil
}

func (w *Weather) Close() {
	w.cache.Close()
}

// CurrentWeather returns the configured location's weather, from cache when
// a reading younger than the cache TTL exists.
func (w *Weather) CurrentWeather(ctx context.Context) (*contextual.WeatherFacts, error) {
	tracer := otel.Tracer("weatherapi/CurrentWeather")
	ctx, span := tracer.Start(ctx, "CurrentWeather")
	defer span.End()

	if w.apiKey == "" {
		return nil, ErrNotConfigured
	}

	cacheKey := "city_" + strings.ToLower(w.location)
	if facts, ok := w.cache.Get(cacheKey); ok {
		span.AddEvent("CacheHit")
		return &facts, nil
	}

	if err := w.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	facts, err := w.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		w.logger.Logger(ctx).Warn("[WeatherAPI] Fetch failed", zap.Error(err), zap.String("location", w.location))
		return nil, err
	}

	w.cache.SetWithTTL(cacheKey, *facts, 1, w.ttl)
	w.cache.Wait()

	span.SetAttributes(attribute.String("condition", string(facts.Condition)))
	return facts, nil
}

func (w *Weather) fetch(ctx context.Context) (*contextual.WeatherFacts, error) {
	q := url.Values{}
	q.Set("q", w.location+",JP")
	q.Set("appid", w.apiKey)
	q.Set("units", "metric")
	q.Set("lang", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/weather?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	var body currentWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}
	if len(body.Weather) == 0 {
		return nil, errors.New("weather response has no conditions")
	}

	cond := body.Weather[0]
	location := body.Name
	if location == "" {
		location = w.location
	}
	return &contextual.WeatherFacts{
		TemperatureC: int(math.Round(body.Main.Temp)),
		Condition:    MapCondition(cond.ID, cond.Main),
		Description:  cond.Description,
		Humidity:     body.Main.Humidity,
		Location:     location,
		Icon:         cond.Icon,
	}, nil
}

// MapCondition folds an OpenWeatherMap condition id into a coarse condition,
// falling back to the condition's main label for ids outside the known ranges.
func MapCondition(id int, main string) contextual.Condition {
	switch {
	case id >= 200 && id < 400, id >= 500 && id < 600:
		return contextual.Rainy
	case id >= 600 && id < 700:
		return contextual.Snowy
	case id >= 700 && id < 800:
		return contextual.Cloudy
	case id == 800:
		return contextual.Sunny
	case id > 800:
		return contextual.Cloudy
	}

	m := strings.ToLower(main)
	switch {
	case strings.Contains(m, "rain"):
		return contextual.Rainy
	case strings.Contains(m, "snow"):
		return contextual.Snowy
	case strings.Contains(m, "cloud"):
		return contextual.Cloudy
	case strings.Contains(m, "clear"):
		return contextual.Sunny
	}
	return contextual.Unknown
}
