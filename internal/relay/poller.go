package relay

import (
	"context"
	"errors"
	"time"

	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// OutcomeKind is the terminal result of a polling run.
type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota
	OutcomeFailed
	OutcomeTimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Outcome is what a polling run resolved to. Code is set only on success.
type Outcome struct {
	Kind     OutcomeKind
	Code     string
	Reason   string
	Attempts int
}

// Checker is the subset of Client the poller needs.
type Checker interface {
	Check(ctx context.Context, state string) (*CheckResult, error)
	Clear(ctx context.Context, state string) error
}

// Poller runs the bounded polling loop. Concurrent Poll calls for the same
// state share one loop; different states run independently.
type Poller struct {
	client      Checker
	clock       Clock
	interval    time.Duration
	maxAttempts int
	group       singleflight.Group
}

// NewPoller creates a poller. A nil clock uses the system clock.
func NewPoller(client Checker, cfg *config.RelayConfig, clock Clock) *Poller {
	if clock == nil {
		clock = RealClock{}
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultMaxAttempts
	}
	return &Poller{
		client:      client,
		clock:       clock,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Poll waits for the relay to report a terminal status for state. The error
// is non-nil only when ctx ends first.
func (p *Poller) Poll(ctx context.Context, state string) (*Outcome, error) {
	if state == "" {
		return nil, errors.New("relay: state is required")
	}

	ch := p.group.DoChan(state, func() (interface{}, error) {
		return p.run(ctx, state)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Outcome), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context, state string) (*Outcome, error) {
	log := logger.With(logger.Fingerprint("state", state))
	defer p.clear(state)

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Debug("relay polling cancelled", zap.Int("attempt", attempt))
			return nil, ctx.Err()
		case <-p.clock.After(p.interval):
		}

		result, err := p.client.Check(ctx, state)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug("relay check failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		outcome := resolve(result)
		if outcome == nil {
			if result.Status != StatusPending {
				log.Warn("relay returned unknown status", zap.String("status", string(result.Status)))
			}
			continue
		}

		outcome.Attempts = attempt
		log.Info("relay polling finished",
			zap.Stringer("outcome", outcome.Kind),
			zap.Int("attempts", attempt),
		)
		return outcome, nil
	}

	log.Info("relay polling timed out", zap.Int("attempts", p.maxAttempts))
	return &Outcome{
		Kind:     OutcomeTimedOut,
		Reason:   "relay did not deliver a result in time",
		Attempts: p.maxAttempts,
	}, nil
}

// resolve maps a relay response to an outcome, or nil while still pending.
func resolve(result *CheckResult) *Outcome {
	if !result.Status.Terminal() {
		return nil
	}
	switch result.Status {
	case StatusReady:
		if result.Code == "" {
			return &Outcome{Kind: OutcomeFailed, Reason: "relay reported ready without a code"}
		}
		return &Outcome{Kind: OutcomeSucceeded, Code: result.Code}
	case StatusError:
		reason := result.Error
		if reason == "" {
			reason = "authorization was not granted"
		}
		return &Outcome{Kind: OutcomeFailed, Reason: reason}
	}
	return &Outcome{Kind: OutcomeTimedOut, Reason: "authorization request expired"}
}

// clear runs detached from the attempt's context so it still happens after
// cancellation.
func (p *Poller) clear(state string) {
	if err := p.client.Clear(context.Background(), state); err != nil {
		logger.Debug("relay cleanup failed", logger.Fingerprint("state", state), zap.Error(err))
	}
}
