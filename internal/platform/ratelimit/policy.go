// Package ratelimit implements the per-scope backoff and cooldown policy that
// guards outbound fetch calls. A policy never fails a call itself; it only
// tells the caller how long to wait and whether the scope is cooling down.
package ratelimit

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/lueurxax/trendpulse/internal/platform/config"
)

// Level is the severity of an active cooldown.
type Level string

const (
	LevelSoft Level = "soft"
	LevelHard Level = "hard"
)

const (
	defaultBaseDelay       = 5 * time.Second
	defaultJitter          = 0.2
	defaultBackoffAttempts = 3
	defaultCooldownWindow  = time.Hour
	defaultSoftThreshold   = 2

	minBaseDelay = 100 * time.Millisecond
)

var (
	defaultSoftRange = [2]time.Duration{300 * time.Second, 900 * time.Second}
	defaultHardRange = [2]time.Duration{1800 * time.Second, 3600 * time.Second}
)

// Cooldown reports a cooldown entered by RecordFailure.
type Cooldown struct {
	Level    Level
	Duration time.Duration
}

// Options configures a Policy. Zero values fall back to defaults.
type Options struct {
	BaseDelay       time.Duration
	Jitter          float64
	BackoffAttempts int
	SoftRange       [2]time.Duration
	HardRange       [2]time.Duration
	CooldownWindow  time.Duration
	SoftThreshold   int
}

// Policy tracks failures for one scope and escalates delays into soft and
// then hard cooldown windows. Safe for concurrent use.
type Policy struct {
	mu sync.Mutex

	scope string
	opts  Options

	attempts      int
	failures      int
	cooldownUntil time.Time
	cooldownLevel Level
	lastFailure   time.Time
	softHits      []time.Time

	now       func() time.Time
	randFloat func() float64
}

// New builds a policy for the given scope.
func New(scope string, opts Options) *Policy {
	if opts.BaseDelay < minBaseDelay {
		if opts.BaseDelay <= 0 {
			opts.BaseDelay = defaultBaseDelay
		} else {
			opts.BaseDelay = minBaseDelay
		}
	}

	if opts.Jitter < 0 {
		opts.Jitter = 0
	}

	if opts.BackoffAttempts < 1 {
		opts.BackoffAttempts = defaultBackoffAttempts
	}

	if opts.SoftRange[1] <= 0 {
		opts.SoftRange = defaultSoftRange
	}

	if opts.HardRange[1] <= 0 {
		opts.HardRange = defaultHardRange
	}

	if opts.CooldownWindow < opts.SoftRange[0] {
		opts.CooldownWindow = maxDuration(opts.SoftRange[0], defaultCooldownWindow)
	}

	if opts.SoftThreshold < 1 {
		opts.SoftThreshold = defaultSoftThreshold
	}

	return &Policy{
		scope:     scope,
		opts:      opts,
		now:       time.Now,
		randFloat: rand.Float64,
	}
}

// NewFromEnv builds a policy, letting RATE_LIMIT_<SCOPE>_* variables override
// the supplied options per scope.
func NewFromEnv(scope string, opts Options) *Policy {
	if raw, ok := config.ScopeOverride(scope, "BASE_DELAY"); ok {
		if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
			opts.BaseDelay = time.Duration(secs * float64(time.Second))
		}
	}

	if raw, ok := config.ScopeOverride(scope, "JITTER"); ok {
		if jitter, err := strconv.ParseFloat(raw, 64); err == nil && jitter >= 0 {
			opts.Jitter = jitter
		}
	}

	if raw, ok := config.ScopeOverride(scope, "BACKOFF_ATTEMPTS"); ok {
		if attempts, err := strconv.Atoi(raw); err == nil && attempts > 0 {
			opts.BackoffAttempts = attempts
		}
	}

	if raw, ok := config.ScopeOverride(scope, "SOFT_RANGE"); ok {
		opts.SoftRange = config.ParseRange(raw, opts.SoftRange)
	}

	if raw, ok := config.ScopeOverride(scope, "HARD_RANGE"); ok {
		opts.HardRange = config.ParseRange(raw, opts.HardRange)
	}

	if raw, ok := config.ScopeOverride(scope, "COOLDOWN_WINDOW"); ok {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			opts.CooldownWindow = time.Duration(secs) * time.Second
		}
	}

	if raw, ok := config.ScopeOverride(scope, "SOFT_THRESHOLD"); ok {
		if threshold, err := strconv.Atoi(raw); err == nil && threshold > 0 {
			opts.SoftThreshold = threshold
		}
	}

	return New(scope, opts)
}

// NextDelay returns the next backoff delay with multiplicative jitter and
// increments the attempt counter.
func (p *Policy) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	exp := p.attempts
	if exp > p.opts.BackoffAttempts-1 {
		exp = p.opts.BackoffAttempts - 1
	}

	delay := float64(p.opts.BaseDelay) * float64(int64(1)<<exp)

	if p.opts.Jitter > 0 {
		factor := 1 - p.opts.Jitter + 2*p.opts.Jitter*p.randFloat()
		delay *= factor
	}

	p.attempts++

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// RecordSuccess resets the failure streak and prunes stale soft-cooldown hits.
func (p *Policy) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts = 0
	p.failures = 0
	p.lastFailure = time.Time{}
	p.pruneSoftHits()
}

// RecordFailure notes a failure. Once the attempt counter reaches the backoff
// ceiling it enters a soft cooldown; repeated soft cooldowns inside the
// rolling window escalate to a hard one. Returns nil when no cooldown starts.
func (p *Policy) RecordFailure() *Cooldown {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastFailure = p.now()
	p.failures++

	if p.attempts < p.opts.BackoffAttempts && p.failures < p.opts.BackoffAttempts {
		return nil
	}

	cd := p.enterCooldown(LevelSoft)

	return &cd
}

// InCooldown reports whether the scope is cooling down and for how much longer.
// An expired cooldown is cleared as a side effect.
func (p *Policy) InCooldown() (bool, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.inCooldownLocked()
}

// Level returns the active cooldown level, or empty when not cooling down.
func (p *Policy) Level() Level {
	p.mu.Lock()
	defer p.mu.Unlock()

	if active, _ := p.inCooldownLocked(); !active {
		return ""
	}

	return p.cooldownLevel
}

// Describe renders a compact state summary for logs.
func (p *Policy) Describe() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	active, remaining := p.inCooldownLocked()
	if !active {
		return fmt.Sprintf("scope=%s attempts=%d", p.scope, p.attempts)
	}

	return fmt.Sprintf("scope=%s attempts=%d cooldown=%s:%.0fs", p.scope, p.attempts, p.cooldownLevel, remaining.Seconds())
}

func (p *Policy) inCooldownLocked() (bool, time.Duration) {
	if p.cooldownUntil.IsZero() {
		return false, 0
	}

	remaining := p.cooldownUntil.Sub(p.now())
	if remaining <= 0 {
		p.cooldownUntil = time.Time{}
		p.cooldownLevel = ""

		return false, 0
	}

	return true, remaining
}

func (p *Policy) enterCooldown(level Level) Cooldown {
	now := p.now()

	var duration time.Duration

	if level == LevelSoft {
		duration = p.randomInRange(p.opts.SoftRange)
		p.softHits = append(p.softHits, now)
		p.pruneSoftHits()

		if len(p.softHits) >= p.opts.SoftThreshold {
			return p.enterCooldown(LevelHard)
		}
	} else {
		duration = p.randomInRange(p.opts.HardRange)
		p.softHits = nil
	}

	p.cooldownUntil = now.Add(duration)
	p.cooldownLevel = level
	p.attempts = 0
	p.failures = 0

	return Cooldown{Level: level, Duration: duration}
}

func (p *Policy) randomInRange(r [2]time.Duration) time.Duration {
	low, high := r[0], r[1]
	if high <= low {
		return low
	}

	return low + time.Duration(p.randFloat()*float64(high-low))
}

func (p *Policy) pruneSoftHits() {
	if len(p.softHits) == 0 {
		return
	}

	threshold := p.now().Add(-p.opts.CooldownWindow)

	kept := p.softHits[:0]

	for _, hit := range p.softHits {
		if !hit.Before(threshold) {
			kept = append(kept, hit)
		}
	}

	p.softHits = kept
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}

	return b
}
