// Package poller watches an analysis record until it reaches a terminal state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supercv-backend/internal/analyses"
	"supercv-backend/internal/shared/telemetry"
)

var (
	// ErrGaveUp is returned when the attempt ceiling is reached before the
	// record turns terminal.
	ErrGaveUp = errors.New("poller: gave up before terminal state")
	// ErrNotFound is returned by fetchers for unknown records. It stops polling.
	ErrNotFound = errors.New("poller: analysis not found")
)

// Snapshot is one observation of a record.
type Snapshot struct {
	ID            string                  `json:"id"`
	Status        analyses.Status         `json:"status"`
	FailureReason string                  `json:"failureReason,omitempty"`
	Result        *analyses.ResultPayload `json:"result,omitempty"`
	Customization *analyses.Customization `json:"customization,omitempty"`
}

// Fetcher reads the current state of a record.
type Fetcher interface {
	Fetch(ctx context.Context, recordID string) (Snapshot, error)
}

// retryAfterCeiling bounds a server-requested wait to this many times Config.Max.
const retryAfterCeiling = 3

// RetryAfterError lets a fetcher ask for a longer wait before the next attempt.
// The wait is honored up to retryAfterCeiling times Config.Max.
type RetryAfterError struct {
	Wait time.Duration
	Err  error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s: %v", e.Wait, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

// Config controls backoff and the attempt ceiling.
type Config struct {
	Initial     time.Duration
	Factor      float64
	Max         time.Duration
	MaxAttempts int
}

// DefaultConfig starts at one second, doubles up to ten seconds and stops
// after sixty reads.
func DefaultConfig() Config {
	return Config{Initial: time.Second, Factor: 2, Max: 10 * time.Second, MaxAttempts: 60}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Initial <= 0 {
		c.Initial = d.Initial
	}
	if c.Factor < 1 {
		c.Factor = d.Factor
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// Poller issues reads with capped exponential backoff between them.
type Poller struct {
	fetcher Fetcher
	cfg     Config
	wait    func(ctx context.Context, d time.Duration) error

	// OnSnapshot, if set, is called after every successful read.
	OnSnapshot func(Snapshot)
}

// New constructs a Poller.
func New(fetcher Fetcher, cfg Config) *Poller {
	return &Poller{fetcher: fetcher, cfg: cfg.normalized(), wait: sleep}
}

// Poll reads the record until it is COMPLETED or FAILED. It returns the
// context error on cancellation, ErrNotFound for unknown records and ErrGaveUp
// once MaxAttempts reads did not observe a terminal state. Failed reads count
// toward the ceiling.
func (p *Poller) Poll(ctx context.Context, recordID string) (Snapshot, error) {
	delay := p.cfg.Initial
	var last Snapshot
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		snap, err := p.fetcher.Fetch(ctx, recordID)
		switch {
		case err == nil:
			last, lastErr = snap, nil
			if p.OnSnapshot != nil {
				p.OnSnapshot(snap)
			}
			if snap.Status.Terminal() {
				return snap, nil
			}
		case errors.Is(err, ErrNotFound):
			return last, err
		case ctx.Err() != nil:
			return last, ctx.Err()
		default:
			lastErr = err
			telemetry.Warn("poller.fetch_failed", map[string]any{
				"analysis_id": recordID,
				"attempt":     attempt,
				"error":       err,
			})
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}

		wait := delay
		var ra *RetryAfterError
		if errors.As(err, &ra) && ra.Wait > wait {
			wait = min(ra.Wait, retryAfterCeiling*p.cfg.Max)
		}
		if err := p.wait(ctx, wait); err != nil {
			return last, err
		}
		delay = p.next(delay)
	}
	if lastErr != nil {
		return last, fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, p.cfg.MaxAttempts, lastErr)
	}
	return last, fmt.Errorf("%w after %d attempts", ErrGaveUp, p.cfg.MaxAttempts)
}

func (p *Poller) next(d time.Duration) time.Duration {
	n := time.Duration(float64(d) * p.cfg.Factor)
	if n > p.cfg.Max {
		return p.cfg.Max
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
