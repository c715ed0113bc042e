// Package config reads process configuration from the environment, after
// loading a .env file when one is present.
package config

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Numbered secrets GEMINI_API_KEY_1..N are read until the first gap.
const maxNumberedKeys = 50

type GeminiConfig struct {
	APIKey          string `env:"GEMINI_API_KEY"`
	RotationEnabled bool   `env:"GEMINI_KEY_ROTATION_ENABLED,default=false"`
	RetryAttempts   int    `env:"GEMINI_RETRY_ATTEMPTS,default=3"`
	CooldownMinutes int    `env:"GEMINI_COOLDOWN_MINUTES,default=60"`
	TimeoutSeconds  int    `env:"GEMINI_TIMEOUT_SECONDS,default=10"`
	Model           string `env:"GEMINI_MODEL,default=gemini-2.5-flash"`
	MaxWorkers      int    `env:"GEMINI_MAX_WORKERS,default=20"`

	// Secrets is the primary key followed by the numbered ones, deduplicated.
	Secrets []string
}

func (g GeminiConfig) Cooldown() time.Duration {
	return time.Duration(g.CooldownMinutes) * time.Minute
}

func (g GeminiConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

type WeatherConfig struct {
	APIKey       string `env:"OPENWEATHER_API_KEY"`
	Location     string `env:"WEATHER_LOCATION,default=Tokyo"`
	CacheMinutes int    `env:"WEATHER_CACHE_MINUTES,default=10"`
}

func (w WeatherConfig) CacheTTL() time.Duration {
	return time.Duration(w.CacheMinutes) * time.Minute
}

type RateLimitConfig struct {
	WindowMS    int `env:"RATE_LIMIT_WINDOW_MS,default=900000"`
	MaxRequests int `env:"RATE_LIMIT_MAX_REQUESTS,default=100"`
	EnhancedMax int `env:"ENHANCED_RATE_LIMIT_MAX,default=50"`
}

func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

type Config struct {
	Port       string `env:"PORT,default=8080"`
	Production bool   `env:"PRODUCTION,default=false"`
	AppEnv     string `env:"APP_ENV,default=development"`

	Gemini    GeminiConfig
	Weather   WeatherConfig
	RateLimit RateLimitConfig
}

// TestMode lets the key pool synthesize a placeholder credential.
func (c Config) TestMode() bool {
	return c.AppEnv == "test"
}

// Load reads .env (if any) and then the process environment.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()
	return LoadWith(ctx, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &cfg, l); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Gemini.RetryAttempts <= 0 {
		return nil, fmt.Errorf("config: GEMINI_RETRY_ATTEMPTS must be positive, got %d", cfg.Gemini.RetryAttempts)
	}
	if cfg.Gemini.CooldownMinutes <= 0 {
		return nil, fmt.Errorf("config: GEMINI_COOLDOWN_MINUTES must be positive, got %d", cfg.Gemini.CooldownMinutes)
	}
	if cfg.Gemini.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("config: GEMINI_TIMEOUT_SECONDS must be positive, got %d", cfg.Gemini.TimeoutSeconds)
	}
	if cfg.RateLimit.WindowMS <= 0 {
		return nil, fmt.Errorf("config: RATE_LIMIT_WINDOW_MS must be positive, got %d", cfg.RateLimit.WindowMS)
	}
	if cfg.RateLimit.MaxRequests < 0 || cfg.RateLimit.EnhancedMax < 0 {
		return nil, fmt.Errorf("config: rate limit maximums must not be negative")
	}
	cfg.Gemini.Secrets = geminiSecrets(cfg.Gemini.APIKey, l)
	return &cfg, nil
}

func geminiSecrets(primary string, l envconfig.Lookuper) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(primary)
	for i := 1; i <= maxNumberedKeys; i++ {
		v, ok := l.Lookup("GEMINI_API_KEY_" + strconv.Itoa(i))
		if !ok || v == "" {
			break
		}
		add(v)
	}
	return out
}
