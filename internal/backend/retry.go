package backend

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/lox/dealproof/internal/fault"
	"github.com/lox/dealproof/internal/round"
)

// RetryConfig controls exponential backoff for transport failures.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxTries        uint
}

// DefaultRetryConfig returns the retry settings used when none are configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxTries:        5,
	}
}

// Retrying wraps a Source and retries transport failures with exponential
// backoff. Every other error, integrity and not-found included, is returned
// on first sight.
type Retrying struct {
	source Source
	cfg    RetryConfig
	logger zerolog.Logger
}

var _ Source = (*Retrying)(nil)

// NewRetrying wraps src.
func NewRetrying(src Source, cfg RetryConfig, logger zerolog.Logger) *Retrying {
	def := DefaultRetryConfig()
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = def.MaxTries
	}
	return &Retrying{
		source: src,
		cfg:    cfg,
		logger: logger.With().Str("component", "backend").Logger(),
	}
}

func retry[T any](ctx context.Context, r *Retrying, op string, id round.ID, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !fault.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn().
				Err(err).
				Str("op", op).
				Uint64("round", uint64(id)).
				Dur("retry_in", next).
				Msg("Backend request failed, retrying")
		}),
	)
}

// RngMetadata implements Source.
func (r *Retrying) RngMetadata(ctx context.Context, id round.ID) (round.RngMetadata, error) {
	return retry(ctx, r, MethodRngMetadata, id, func() (round.RngMetadata, error) {
		return r.source.RngMetadata(ctx, id)
	})
}

// CardProvenance implements Source.
func (r *Retrying) CardProvenance(ctx context.Context, id round.ID) ([]round.CardProvenance, error) {
	return retry(ctx, r, MethodCardProvenance, id, func() ([]round.CardProvenance, error) {
		return r.source.CardProvenance(ctx, id)
	})
}

// ServerVerification implements Source.
func (r *Retrying) ServerVerification(ctx context.Context, id round.ID) (Attestation, error) {
	return retry(ctx, r, MethodServerVerification, id, func() (Attestation, error) {
		return r.source.ServerVerification(ctx, id)
	})
}
