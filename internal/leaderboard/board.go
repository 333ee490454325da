package leaderboard

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	MaxNameLength  = 24
	MaxScore       = 1_000_000
	DefaultName    = "Player"
	DefaultTopSize = 10
)

var (
	urlPattern     = regexp.MustCompile(`(?i)https?://\S+`)
	spacePattern   = regexp.MustCompile(`\s+`)
	invalidPattern = regexp.MustCompile(`[^\w .\-]`)
)

// SanitizeName strips links and anything outside [A-Za-z0-9_ .-], capped at MaxNameLength.
func SanitizeName(raw string) string {
	n := strings.TrimSpace(raw)
	n = urlPattern.ReplaceAllString(n, "")
	n = spacePattern.ReplaceAllString(n, " ")
	n = strings.TrimSpace(invalidPattern.ReplaceAllString(n, ""))
	if len(n) > MaxNameLength {
		n = strings.TrimSpace(n[:MaxNameLength])
	}
	if n == "" {
		return DefaultName
	}
	return n
}

func clampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > MaxScore:
		return MaxScore
	}
	return score
}

// Status of a submission as shown on the post-run panel.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusSkipped     Status = "skipped"
)

// Standing is the result of a submission.
type Standing struct {
	Status Status  `json:"status"`
	Entry  Entry   `json:"entry"`
	Rank   int     `json:"rank,omitempty"` // 1-based, 0 when outside the top list
	Top    []Entry `json:"top,omitempty"`
}

// Board applies the submission policy in front of a Client. It is safe for concurrent use.
type Board struct {
	client   Client
	log      zerolog.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

type BoardOption func(*Board)

// WithThrottle sets the minimum gap between submissions.
func WithThrottle(d time.Duration) BoardOption { return func(b *Board) { b.interval = d } }

func WithTimeout(d time.Duration) BoardOption { return func(b *Board) { b.timeout = d } }

func WithClock(now func() time.Time) BoardOption { return func(b *Board) { b.now = now } }

func NewBoard(client Client, logger zerolog.Logger, opts ...BoardOption) *Board {
	if client == nil {
		client = Disabled{}
	}
	b := &Board{
		client:   client,
		log:      logger.With().Str("component", "leaderboard").Logger(),
		interval: 5 * time.Second,
		timeout:  2 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Submit records a score and fetches the top list. Zero scores are skipped without a call.
func (b *Board) Submit(ctx context.Context, name string, score int, runID string) (Standing, error) {
	e := Entry{Name: SanitizeName(name), Score: clampScore(score), RunID: runID}
	if e.Score == 0 {
		return Standing{Status: StatusSkipped, Entry: e}, nil
	}

	b.mu.Lock()
	now := b.now()
	if !b.last.IsZero() && now.Sub(b.last) < b.interval {
		b.mu.Unlock()
		return Standing{Status: StatusUnavailable, Entry: e}, ErrThrottled
	}
	b.last = now
	b.mu.Unlock()
	e.At = now

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	if err := b.client.Submit(ctx, e); err != nil {
		b.log.Warn().Err(err).Str("run", runID).Msg("score submit failed")
		return Standing{Status: StatusUnavailable, Entry: e}, err
	}

	st := Standing{Status: StatusAvailable, Entry: e}
	top, err := b.client.Top(ctx, DefaultTopSize)
	if err != nil {
		b.log.Warn().Err(err).Msg("top scores unavailable")
		return st, nil
	}
	st.Top = top
	for i, t := range top {
		if t.Name == e.Name && t.Score == e.Score && t.RunID == e.RunID {
			st.Rank = i + 1
			break
		}
	}
	return st, nil
}

// Top returns the best limit scores.
func (b *Board) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultTopSize
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	return b.client.Top(ctx, limit)
}

func (b *Board) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}
