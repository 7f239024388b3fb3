package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dukex/devflow/pkg/persistence"
)

// Match describes how a duplicate was detected.
type Match string

const (
	MatchNone        Match = ""
	MatchEventID     Match = "event_id"
	MatchFingerprint Match = "fingerprint"
)

// Lookup finds executions created by earlier deliveries.
type Lookup interface {
	ExecutionBySourceEventID(ctx context.Context, sourceEventID string) (string, error)
	ExecutionByFingerprint(ctx context.Context, fingerprint string) (string, error)
}

// Cache is an optional fast path in front of the Lookup.
type Cache interface {
	Lookup(ctx context.Context, eventID, fingerprint string) (string, Match, error)
	Remember(ctx context.Context, eventID, fingerprint, executionID string) error
}

// Result of a duplicate check. A failed lookup is reported in LookupErr and
// never counts as a duplicate.
type Result struct {
	Fingerprint string
	ExecutionID string
	MatchedBy   Match
	LookupErr   error
}

func (r Result) IsDuplicate() bool {
	return r.LookupErr == nil && r.MatchedBy != MatchNone
}

type Guard struct {
	store  Lookup
	cache  Cache
	logger *slog.Logger
}

type Option func(*Guard)

func WithCache(cache Cache) Option {
	return func(g *Guard) {
		g.cache = cache
	}
}

func NewGuard(store Lookup, logger *slog.Logger, opts ...Option) *Guard {
	guard := &Guard{
		store:  store,
		logger: logger.With("module", "idempotency"),
	}

	for _, opt := range opts {
		opt(guard)
	}

	return guard
}

// Check reports whether the event was already accepted. Only malformed input
// returns an error.
func (g *Guard) Check(ctx context.Context, payload json.RawMessage, eventID string) (Result, error) {
	if eventID == "" {
		return Result{}, ErrEmptyEventID
	}

	fingerprint, err := Fingerprint(payload)
	if err != nil {
		return Result{}, err
	}

	result := Result{Fingerprint: fingerprint}
	logger := g.logger.With("event_id", eventID, "fingerprint", fingerprint)

	if g.cache != nil {
		executionID, match, err := g.cache.Lookup(ctx, eventID, fingerprint)
		if err != nil {
			logger.WarnContext(ctx, "Idempotency cache lookup failed, using store", "error", err)
		} else if match != MatchNone {
			result.ExecutionID = executionID
			result.MatchedBy = match

			return result, nil
		}
	}

	executionID, err := g.store.ExecutionBySourceEventID(ctx, eventID)
	switch {
	case err == nil:
		result.ExecutionID = executionID
		result.MatchedBy = MatchEventID

		return result, nil
	case !errors.Is(err, persistence.ErrEventNotFound):
		return g.failOpen(ctx, logger, result, err), nil
	}

	executionID, err = g.store.ExecutionByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		result.ExecutionID = executionID
		result.MatchedBy = MatchFingerprint
	case !errors.Is(err, persistence.ErrEventNotFound):
		return g.failOpen(ctx, logger, result, err), nil
	}

	return result, nil
}

// Remember records an accepted event in the cache, if one is configured.
func (g *Guard) Remember(ctx context.Context, eventID, fingerprint, executionID string) {
	if g.cache == nil {
		return
	}

	if err := g.cache.Remember(ctx, eventID, fingerprint, executionID); err != nil {
		g.logger.WarnContext(ctx, "Failed to cache accepted event", "event_id", eventID, "error", err)
	}
}

func (g *Guard) failOpen(ctx context.Context, logger *slog.Logger, result Result, err error) Result {
	logger.WarnContext(ctx, "Idempotency lookup failed, treating event as new", "error", err)

	result.LookupErr = err

	return result
}
