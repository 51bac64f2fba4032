package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/trendpulse/internal/archive"
)

// CommandSource runs the local crawler command and parses the topic list it
// prints on stdout. It is the expensive acquisition path; the fetcher only
// reaches for it once the fallback policy fires.
type CommandSource struct {
	command string
	timeout time.Duration
	logger  *zerolog.Logger
}

// NewCommandSource builds a LocalSource around a shell command template with
// {date} and {hour} placeholders. Returns nil when the command is empty so
// callers can pass the result straight to New.
func NewCommandSource(command string, timeout time.Duration, logger *zerolog.Logger) *CommandSource {
	if strings.TrimSpace(command) == "" {
		return nil
	}

	return &CommandSource{
		command: command,
		timeout: timeout,
		logger:  logger,
	}
}

func (c *CommandSource) FetchHour(ctx context.Context, date string, hour int) ([]archive.TopicEntry, error) {
	rendered := strings.NewReplacer("{date}", date, "{hour}", archive.HourKey(hour)).Replace(c.command)

	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Info().Str("date", date).Int("hour", hour).Msg("running local crawler")

	started := time.Now()

	output, err := exec.CommandContext(ctx, "sh", "-c", rendered).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("local crawler exited: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}

		return nil, fmt.Errorf("running local crawler: %w", err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("local crawler output is not a topic list: %w", err)
	}

	entries := NormalizeEntries(raw)
	if len(entries) == 0 {
		return nil, ErrEmptyPayload
	}

	c.logger.Info().
		Int("topics", len(entries)).
		Dur("took", time.Since(started)).
		Msg("local crawler finished")

	return entries, nil
}
