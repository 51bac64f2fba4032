// Package credentials manages the pool of session credentials used for
// remote snapshot fetches. Entries are loaded from the environment and from
// JSON files, rotated on failure, and cooled down temporarily when a source
// rejects them.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCooldown is how long a failed credential sits out before it is
// eligible for rotation again.
const DefaultCooldown = 600 * time.Second

// fallbackCredential is used only when nothing is configured at all.
const fallbackCredential = "SCF=anonymous;"

// Choice is a credential handed to a caller, with the label it was loaded under.
type Choice struct {
	Value string
	Label string
}

type entry struct {
	value   string
	label   string
	lastBad time.Time
}

func (e *entry) available(now time.Time, cooldown time.Duration) bool {
	return e.lastBad.IsZero() || now.Sub(e.lastBad) >= cooldown
}

// Pool rotates among credentials, skipping entries in cooldown. When every
// entry is cooling it degrades to returning a stale one rather than failing.
type Pool struct {
	mu sync.Mutex

	entries  []*entry
	fallback string
	cooldown time.Duration
	index    int

	logger *zerolog.Logger
	now    func() time.Time
}

// Sources describes where credentials are loaded from.
type Sources struct {
	// Multi holds several credentials separated by '|' or newlines.
	Multi string
	// Single holds one credential.
	Single string
	// Files are JSON files holding credential strings or cookie objects.
	Files []string
}

// NewPool loads, normalizes and deduplicates credentials from all sources.
// An empty pool is not an error; the embedded fallback is used instead.
func NewPool(src Sources, cooldown time.Duration, logger *zerolog.Logger) *Pool {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	p := &Pool{
		fallback: strings.TrimSpace(fallbackCredential),
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}

	seen := make(map[string]struct{})

	add := func(raw, label string) {
		value := normalize(raw)
		if value == "" {
			return
		}

		if _, ok := seen[value]; ok {
			return
		}

		seen[value] = struct{}{}
		p.entries = append(p.entries, &entry{value: value, label: label})
	}

	for i, raw := range splitMulti(src.Multi) {
		add(raw, fmt.Sprintf("SOURCE_CREDENTIALS[%d]", i+1))
	}

	if src.Single != "" {
		add(src.Single, "SOURCE_CREDENTIAL")
	}

	for _, path := range src.Files {
		for i, raw := range loadFile(path, logger) {
			add(raw, fmt.Sprintf("%s[%d]", path, i+1))
		}
	}

	if len(p.entries) == 0 {
		logger.Warn().Msg("no credentials configured; using embedded fallback only")
	} else {
		labels := make([]string, len(p.entries))
		for i, e := range p.entries {
			labels[i] = e.label
		}

		logger.Info().Int("count", len(p.entries)).Strs("labels", labels).Msg("loaded credential pool")
	}

	return p
}

// Len returns the number of configured entries, excluding the fallback.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.entries)
}

// Current returns the credential at the cursor if it is usable, otherwise the
// next non-cooling entry. With an empty pool the fallback is returned.
func (p *Pool) Current() Choice {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return Choice{Value: p.fallback, Label: "fallback"}
	}

	now := p.now()

	if p.entries[p.index].available(now, p.cooldown) {
		e := p.entries[p.index]

		return Choice{Value: e.value, Label: e.label}
	}

	p.index = p.pickAvailable(p.index+1, now)
	e := p.entries[p.index]

	return Choice{Value: e.value, Label: e.label}
}

// MarkBad records a failure against the matching entry and rotates to the
// next candidate, which is returned.
func (p *Pool) MarkBad(choice Choice, reason string) Choice {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return Choice{Value: p.fallback, Label: "fallback"}
	}

	idx := p.findIndex(choice)
	if idx < 0 {
		idx = p.index
	}

	now := p.now()
	p.entries[idx].lastBad = now
	p.index = idx

	if reason != "" {
		p.logger.Warn().Str("label", p.entries[idx].label).Str("reason", reason).Msg("marking credential as bad")
	}

	p.index = p.pickAvailable(p.index+1, now)
	e := p.entries[p.index]

	return Choice{Value: e.value, Label: e.label}
}

// pickAvailable returns the first non-cooling index at or after start,
// wrapping around. If every entry is cooling it returns start itself so the
// caller still gets a usable, if stale, credential.
func (p *Pool) pickAvailable(start int, now time.Time) int {
	n := len(p.entries)

	for offset := 0; offset < n; offset++ {
		idx := (start + offset) % n
		if p.entries[idx].available(now, p.cooldown) {
			return idx
		}
	}

	return start % n
}

func (p *Pool) findIndex(choice Choice) int {
	for idx, e := range p.entries {
		if e.value == choice.Value {
			return idx
		}
	}

	return -1
}

func normalize(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimSuffix(value, ";")

	return strings.TrimSpace(value)
}

func splitMulti(raw string) []string {
	if raw == "" {
		return nil
	}

	var values []string

	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == '|' || r == '\n' }) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}

	return values
}

// loadFile reads credential strings from a JSON file. Supported shapes: a
// bare string, a {"cookies": ...} wrapper, a name/value object, and lists of
// any of those.
func loadFile(path string, logger *zerolog.Logger) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", path).Msg("failed to read credential file")
		}

		return nil
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to parse credential file")

		return nil
	}

	return coerceStrings(payload)
}

func coerceStrings(data any) []string {
	switch v := data.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}

		return []string{v}
	case map[string]any:
		if cookies, ok := v["cookies"]; ok {
			return coerceStrings(cookies)
		}

		if joined, ok := joinNameValue([]any{v}); ok {
			return []string{joined}
		}

		return nil
	case []any:
		if len(v) == 0 {
			return nil
		}

		if joined, ok := joinNameValue(v); ok {
			return []string{joined}
		}

		var result []string
		for _, item := range v {
			result = append(result, coerceStrings(item)...)
		}

		return result
	default:
		return nil
	}
}

// joinNameValue renders a list of {"name": ..., "value": ...} objects as one
// "name=value; ..." credential string. Returns false unless every element has
// a name.
func joinNameValue(items []any) (string, bool) {
	parts := make([]string, 0, len(items))

	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return "", false
		}

		name, ok := obj["name"].(string)
		if !ok || name == "" {
			return "", false
		}

		value, ok := obj["value"]
		if !ok || value == nil {
			continue
		}

		parts = append(parts, fmt.Sprintf("%s=%v", name, value))
	}

	if len(parts) == 0 {
		return "", false
	}

	return strings.Join(parts, "; "), true
}
