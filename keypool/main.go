// Package keypool tracks a set of Gemini API credentials, their failures and
// cooldowns, and picks the credential the next call should use.
package keypool

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"kibarashidev/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DummyCredential is synthesized in test mode when nothing is configured.
const DummyCredential = "test-dummy-key-for-testing"

var ErrNoCredentials = errors.New("no Gemini API credentials configured")

type KeyPoolConnectProps struct {
	Logger          *logger.LogMiddleware
	Secrets         []string
	RotationEnabled bool
	RetryAttempts   int
	Cooldown        time.Duration
	TestMode        bool
	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

type credential struct {
	secret              string
	index               int
	lastUsedAt          time.Time
	consecutiveFailures int
	onCooldown          bool
	cooldownUntil       time.Time
}

type Pool struct {
	logger *logger.LogMiddleware
	now    func() time.Time

	rotationEnabled bool
	retryAttempts   int
	cooldown        time.Duration
	initErr         error

	mu          sync.Mutex
	credentials []credential
	current     int

	totalRequests      int
	successfulRequests int
	failedRequests     int
	rotationCount      int
	rateLimitHitCount  int
}

// Connect builds the pool. It never fails: a missing configuration is
// reported by EnsureReady instead, so the process can still start.
func Connect(ctx context.Context, args KeyPoolConnectProps) *Pool {
	tracer := otel.Tracer("keypool/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	if args.Logger == nil {
		args.Logger = logger.Nop()
	}
	if args.Now == nil {
		args.Now = time.Now
	}
	if args.RetryAttempts <= 0 {
		args.RetryAttempts = 3
	}
	if args.Cooldown <= 0 {
		args.Cooldown = time.Hour
	}

	p := &Pool{
		logger:          args.Logger,
		now:             args.Now,
		rotationEnabled: args.RotationEnabled,
		retryAttempts:   args.RetryAttempts,
		cooldown:        args.Cooldown,
	}

	seen := make(map[string]bool)
	for _, s := range args.Secrets {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		p.credentials = append(p.credentials, credential{secret: s, index: len(p.credentials)})
	}

	if len(p.credentials) == 0 {
		if args.TestMode {
			p.credentials = []credential{{secret: DummyCredential}}
			args.Logger.Logger(ctx).Warn("[KeyPool] No credentials configured, using placeholder credential in test mode")
		} else {
			p.initErr = ErrNoCredentials
			args.Logger.Logger(ctx).Error("[KeyPool] No credentials configured, generation will fall back to the static catalog")
		}
	}

	span.SetAttributes(
		attribute.Int("credentials", len(p.credentials)),
		attribute.Bool("rotationEnabled", p.rotationEnabled),
	)
	args.Logger.Logger(ctx).Info("[KeyPool] Initialized",
		zap.Int("credentials", len(p.credentials)),
		zap.Bool("rotationEnabled", p.rotationEnabled),
		zap.Int("retryAttempts", p.retryAttempts),
		zap.Duration("cooldown", p.cooldown))

	return p
}

// EnsureReady returns ErrNoCredentials when the pool has nothing to hand out.
func (p *Pool) EnsureReady() error {
	return p.initErr
}

// Current returns the credential the next call should use and marks it used.
// When every credential is cooling down the one that recovers soonest is
// returned anyway. Returns "" only when the pool is empty.
func (p *Pool) Current(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.credentials) == 0 {
		return ""
	}
	now := p.now()
	p.expireLocked(now)

	idx := p.selectLocked(ctx)
	p.credentials[idx].lastUsedAt = now
	p.totalRequests++
	return p.credentials[idx].secret
}

// CurrentIndex is the ordinal of the pinned credential, or -1 when empty.
func (p *Pool) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.credentials) == 0 {
		return -1
	}
	return p.current
}

func (p *Pool) selectLocked(ctx context.Context) int {
	if !p.rotationEnabled {
		for i := range p.credentials {
			if !p.credentials[i].onCooldown {
				p.current = i
				return i
			}
		}
		p.current = p.soonestLocked()
		return p.current
	}

	if !p.credentials[p.current].onCooldown {
		return p.current
	}
	if next, ok := p.leastRecentlyUsedLocked(-1); ok {
		p.rotateLocked(ctx, next, "current credential cooling down")
		return next
	}

	soonest := p.soonestLocked()
	p.logger.Logger(ctx).Warn("[KeyPool] All credentials cooling down, using the one that recovers first",
		zap.Int("index", soonest),
		zap.Time("cooldownUntil", p.credentials[soonest].cooldownUntil))
	p.current = soonest
	return soonest
}

// leastRecentlyUsedLocked prefers never-used credentials, then the oldest use.
func (p *Pool) leastRecentlyUsedLocked(exclude int) (int, bool) {
	best := -1
	for i := range p.credentials {
		c := &p.credentials[i]
		if c.onCooldown || i == exclude {
			continue
		}
		if best < 0 || c.lastUsedAt.Before(p.credentials[best].lastUsedAt) {
			best = i
		}
	}
	return best, best >= 0
}

func (p *Pool) soonestLocked() int {
	best := 0
	for i := range p.credentials {
		if p.credentials[i].cooldownUntil.Before(p.credentials[best].cooldownUntil) {
			best = i
		}
	}
	return best
}

func (p *Pool) rotateLocked(ctx context.Context, next int, reason string) {
	if next == p.current {
		return
	}
	p.logger.Logger(ctx).Info("[KeyPool] Rotated credential",
		zap.Int("from", p.current),
		zap.Int("to", next),
		zap.String("reason", reason))
	p.current = next
	p.rotationCount++
}

// expireLocked clears cooldowns whose deadline has passed. A recovered
// credential starts again with a clean failure count.
func (p *Pool) expireLocked(now time.Time) {
	for i := range p.credentials {
		c := &p.credentials[i]
		if c.onCooldown && now.After(c.cooldownUntil) {
			c.onCooldown = false
			c.cooldownUntil = time.Time{}
			c.consecutiveFailures = 0
		}
	}
}

func (p *Pool) indexOfLocked(secret string) int {
	return slices.IndexFunc(p.credentials, func(c credential) bool { return c.secret == secret })
}

// ReportFailure records a failed call. A rate limit puts the credential on
// cooldown immediately; other failures do so once the retry threshold is hit.
func (p *Pool) ReportFailure(ctx context.Context, secret string, isRateLimit bool) {
	tracer := otel.Tracer("keypool/ReportFailure")
	ctx, span := tracer.Start(ctx, "ReportFailure")
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOfLocked(secret)
	if i < 0 {
		return
	}
	p.failedRequests++
	if isRateLimit {
		p.rateLimitHitCount++
	}
	now := p.now()
	p.expireLocked(now)

	c := &p.credentials[i]
	c.consecutiveFailures++
	span.SetAttributes(
		attribute.Int("index", i),
		attribute.Bool("rateLimit", isRateLimit),
		attribute.Int("consecutiveFailures", c.consecutiveFailures),
	)
	p.logger.Logger(ctx).Warn("[KeyPool] Credential failure",
		zap.Int("index", i),
		zap.Bool("rateLimit", isRateLimit),
		zap.Int("consecutiveFailures", c.consecutiveFailures))

	if !isRateLimit && c.consecutiveFailures < p.retryAttempts {
		return
	}
	if !c.onCooldown {
		c.onCooldown = true
		c.cooldownUntil = now.Add(p.cooldown)
		p.logger.Logger(ctx).Warn("[KeyPool] Credential on cooldown",
			zap.Int("index", i),
			zap.Time("until", c.cooldownUntil))
	}

	if i == p.current && p.rotationEnabled {
		if next, ok := p.leastRecentlyUsedLocked(i); ok {
			p.rotateLocked(ctx, next, "cooldown")
		}
	}
}

// ReportSuccess records a successful call and eases the failure count by one.
func (p *Pool) ReportSuccess(ctx context.Context, secret string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successfulRequests++
	i := p.indexOfLocked(secret)
	if i < 0 {
		return
	}
	if p.credentials[i].consecutiveFailures > 0 {
		p.credentials[i].consecutiveFailures--
	}
}

// AvailableCount counts credentials not on cooldown.
func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.expireLocked(p.now())
	n := 0
	for _, c := range p.credentials {
		if !c.onCooldown {
			n++
		}
	}
	return n
}

// ForceRotate moves to the least recently used usable credential other than
// the current one. With rotation disabled it just returns the current one.
func (p *Pool) ForceRotate(ctx context.Context) string {
	tracer := otel.Tracer("keypool/ForceRotate")
	ctx, span := tracer.Start(ctx, "ForceRotate")
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.credentials) == 0 {
		return ""
	}
	if !p.rotationEnabled {
		p.logger.Logger(ctx).Info("[KeyPool] Rotation disabled, keeping current credential")
		return p.credentials[p.current].secret
	}
	p.expireLocked(p.now())
	if next, ok := p.leastRecentlyUsedLocked(p.current); ok {
		p.rotateLocked(ctx, next, "forced")
	}
	span.SetAttributes(attribute.Int("index", p.current))
	return p.credentials[p.current].secret
}

// ResetAllCooldowns returns every credential to a usable, failure-free state.
func (p *Pool) ResetAllCooldowns(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.credentials {
		c := &p.credentials[i]
		c.onCooldown = false
		c.cooldownUntil = time.Time{}
		c.consecutiveFailures = 0
	}
	p.logger.Logger(ctx).Info("[KeyPool] All cooldowns reset", zap.Int("credentials", len(p.credentials)))
}

type CredentialStats struct {
	Index               int        `json:"index"`
	Current             bool       `json:"current"`
	LastUsedAt          *time.Time `json:"lastUsedAt,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	OnCooldown          bool       `json:"onCooldown"`
	CooldownUntil       *time.Time `json:"cooldownUntil,omitempty"`
}

type Stats struct {
	TotalCredentials   int               `json:"totalCredentials"`
	AvailableCount     int               `json:"availableCount"`
	CurrentIndex       int               `json:"currentIndex"`
	RotationEnabled    bool              `json:"rotationEnabled"`
	TotalRequests      int               `json:"totalRequests"`
	SuccessfulRequests int               `json:"successfulRequests"`
	FailedRequests     int               `json:"failedRequests"`
	RotationCount      int               `json:"rotationCount"`
	RateLimitHitCount  int               `json:"rateLimitHitCount"`
	PerCredential      []CredentialStats `json:"perCredential"`
}

// Stats is a snapshot; secrets are never included.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.expireLocked(p.now())
	s := Stats{
		TotalCredentials:   len(p.credentials),
		CurrentIndex:       -1,
		RotationEnabled:    p.rotationEnabled,
		TotalRequests:      p.totalRequests,
		SuccessfulRequests: p.successfulRequests,
		FailedRequests:     p.failedRequests,
		RotationCount:      p.rotationCount,
		RateLimitHitCount:  p.rateLimitHitCount,
		PerCredential:      make([]CredentialStats, 0, len(p.credentials)),
	}
	if len(p.credentials) > 0 {
		s.CurrentIndex = p.current
	}
	for i, c := range p.credentials {
		cs := CredentialStats{
			Index:               c.index,
			Current:             i == p.current,
			ConsecutiveFailures: c.consecutiveFailures,
			OnCooldown:          c.onCooldown,
		}
		if !c.lastUsedAt.IsZero() {
			t := c.lastUsedAt
			cs.LastUsedAt = &t
		}
		if c.onCooldown {
			t := c.cooldownUntil
			cs.CooldownUntil = &t
		}
		if !c.onCooldown {
			s.AvailableCount++
		}
		s.PerCredential = append(s.PerCredential, cs)
	}
	return s
}
