package vault

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/remsec/connwarden/internal/config"
	"github.com/remsec/connwarden/internal/domain/credential"
	"github.com/remsec/connwarden/pkg/common"
	"github.com/remsec/connwarden/pkg/common/logger"
)

type timeProvider interface {
	Now() time.Time
}

// realTimeProvider is a real implementation of the timeProvider interface.
type realTimeProvider struct{}

// Now returns the current time.
func (realTimeProvider) Now() time.Time { return time.Now().UTC() }

// Coordinator registers, extends, and withdraws ephemeral credentials in a
// secret store. It never self-extends: callers drive extension cadence from
// supervision progress. All store writes are best-effort; a failed write is
// logged and the session proceeds unvaulted.
type Coordinator struct {
	store   SecretStore
	limiter *common.RateLimiter

	// baseTTL is the configured credential lifetime; increment is derived
	// from it once (half, rounded up to a whole second).
	baseTTL   time.Duration
	increment time.Duration

	timeProvider timeProvider

	tracer trace.Tracer
	logger *logger.Logger
}

// NewCoordinator builds a Coordinator over the given store. The extension
// increment is derived here and never changes afterwards.
func NewCoordinator(
	store SecretStore,
	baseTTL time.Duration,
	limiter *common.RateLimiter,
	tracer trace.Tracer,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		store:        store,
		limiter:      limiter,
		baseTTL:      baseTTL,
		increment:    deriveIncrement(baseTTL),
		timeProvider: realTimeProvider{},
		tracer:       tracer,
		logger:       log.With("component", "vault.coordinator"),
	}
}

// NewCoordinatorFromConfig builds a Coordinator with a write limiter derived
// from the vault configuration. A non-positive write rate disables pacing.
func NewCoordinatorFromConfig(
	store SecretStore,
	cfg config.Vault,
	tracer trace.Tracer,
	log *logger.Logger,
) *Coordinator {
	var limiter *common.RateLimiter
	if cfg.WriteOps > 0 {
		limiter = common.NewRateLimiter(cfg.WriteOps, cfg.WriteBurst)
	}
	return NewCoordinator(store, cfg.TTL, limiter, tracer, log)
}

// deriveIncrement halves the base TTL, rounding up to a whole second so
// sub-second configurations still make observable progress.
func deriveIncrement(baseTTL time.Duration) time.Duration {
	if baseTTL <= 0 {
		return time.Second
	}
	return time.Duration(math.Ceil(baseTTL.Seconds()/2)) * time.Second
}

// Increment returns the derived extension step.
func (c *Coordinator) Increment() time.Duration { return c.increment }

// Register writes the credential to the secret store. Failure is logged, not
// returned: the session continues without a vaulted secret.
func (c *Coordinator) Register(ctx context.Context, cred *credential.Credential) {
	if cred == nil {
		return
	}

	ctx, span := c.tracer.Start(ctx, "vault.register",
		trace.WithAttributes(
			attribute.String("target_host", cred.TargetHost()),
			attribute.String("kind", cred.Kind().String()),
		))
	defer span.End()

	if err := c.write(ctx, cred); err != nil {
		c.logger.Warn(ctx, "Secret store registration failed, session continues unvaulted",
			"target_host", cred.TargetHost(),
			"kind", cred.Kind().String(),
			"err", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "registration failed")
		return
	}

	span.AddEvent("credential_registered")
	span.SetStatus(codes.Ok, "credential registered")
}

// ExtendTTL pushes the credential's expiry forward by the derived increment
// and refreshes the store record. Expiry only ever grows. Disposed or nil
// credentials are ignored so supervision loops can call this unconditionally.
func (c *Coordinator) ExtendTTL(ctx context.Context, cred *credential.Credential) {
	if cred == nil || cred.Disposed() {
		return
	}

	ctx, span := c.tracer.Start(ctx, "vault.extend_ttl",
		trace.WithAttributes(
			attribute.String("target_host", cred.TargetHost()),
			attribute.String("increment", c.increment.String()),
		))
	defer span.End()

	expiry := cred.Extend(c.increment)
	span.SetAttributes(attribute.String("expires_at", expiry.Format(time.RFC3339)))

	if err := c.write(ctx, cred); err != nil {
		c.logger.Debug(ctx, "Secret store refresh failed during extension",
			"target_host", cred.TargetHost(),
			"err", err,
		)
		span.RecordError(err)
	}
	span.AddEvent("ttl_extended")
}

// ResetTTL restores the originally configured TTL, discarding accumulated
// extensions, and refreshes the store record.
func (c *Coordinator) ResetTTL(ctx context.Context, cred *credential.Credential) {
	if cred == nil || cred.Disposed() {
		return
	}

	ctx, span := c.tracer.Start(ctx, "vault.reset_ttl",
		trace.WithAttributes(attribute.String("target_host", cred.TargetHost())))
	defer span.End()

	expiry := cred.Reset(c.timeProvider.Now())
	span.SetAttributes(attribute.String("expires_at", expiry.Format(time.RFC3339)))

	if err := c.write(ctx, cred); err != nil {
		c.logger.Debug(ctx, "Secret store refresh failed during reset",
			"target_host", cred.TargetHost(),
			"err", err,
		)
		span.RecordError(err)
	}
	span.AddEvent("ttl_reset")
}

// Withdraw removes the store entry and wipes the secret material. Used when
// the remove-on-exit policy is set or the credential only served connection
// setup. Idempotent.
func (c *Coordinator) Withdraw(ctx context.Context, cred *credential.Credential) {
	if cred == nil {
		return
	}

	ctx, span := c.tracer.Start(ctx, "vault.withdraw",
		trace.WithAttributes(attribute.String("target_host", cred.TargetHost())))
	defer span.End()

	if err := c.store.Delete(ctx, cred.TargetHost(), cred.Kind()); err != nil {
		c.logger.Warn(ctx, "Secret store removal failed",
			"target_host", cred.TargetHost(),
			"err", err,
		)
		span.RecordError(err)
	}
	cred.Wipe()

	span.AddEvent("credential_withdrawn")
	span.SetStatus(codes.Ok, "credential withdrawn")
}

// write refreshes the store record with the credential's current expiry,
// pacing writes through the shared limiter.
func (c *Coordinator) write(ctx context.Context, cred *credential.Credential) error {
	secret, err := cred.Secret()
	if err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	return c.store.Write(ctx, Record{
		TargetHost: cred.TargetHost(),
		Kind:       cred.Kind(),
		Username:   cred.Username(),
		Secret:     secret,
		ExpiresAt:  cred.ExpiresAt(),
	})
}
