package accountclient

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/harborbank/transaction-engine/internal/cache"
	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/models"
)

const (
	accountIDKeyPrefix     = "account:id:"
	accountNumberKeyPrefix = "account:number:"
)

// Policy tunes the resilience chain around the account service.
type Policy struct {
	RetryMaxAttempts int
	RetryInterval    time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
	RateLimitPerSec  float64
	RateLimitBurst   int
}

// Resilient decorates a Client with, outermost to innermost: a rate
// limiter, a circuit breaker, bounded retry with backoff, and a short-TTL
// read cache. The cache is invalidated on any credit or debit issued
// through this client; it is never the source of truth.
type Resilient struct {
	inner   Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	policy  Policy
	cache   *cache.ViewCache[models.AccountInfo]
	logger  *logrus.Logger
}

// NewResilient wraps inner in the full policy chain. accounts may be nil to
// disable the read cache.
func NewResilient(inner Client, policy Policy, accounts *cache.ViewCache[models.AccountInfo], logger *logrus.Logger) *Resilient {
	// A zero or negative budget would underflow the retry counter.
	if policy.RetryMaxAttempts < 1 {
		policy.RetryMaxAttempts = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "account-service",
		MaxRequests: 1,
		Timeout:     policy.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= policy.BreakerThreshold
		},
		// Business rejections are final answers from a healthy
		// dependency; only infrastructure failures count against it.
		IsSuccessful: func(err error) bool {
			return err == nil || !errs.Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	return &Resilient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(policy.RateLimitPerSec), policy.RateLimitBurst),
		breaker: breaker,
		policy:  policy,
		cache:   accounts,
		logger:  logger,
	}
}

func (c *Resilient) GetAccount(ctx context.Context, accountID string) (*models.AccountInfo, error) {
	return c.getAccount(ctx, accountIDKeyPrefix+accountID, func(ctx context.Context) (*models.AccountInfo, error) {
		return c.inner.GetAccount(ctx, accountID)
	})
}

func (c *Resilient) GetAccountByNumber(ctx context.Context, accountNumber string) (*models.AccountInfo, error) {
	return c.getAccount(ctx, accountNumberKeyPrefix+accountNumber, func(ctx context.Context) (*models.AccountInfo, error) {
		return c.inner.GetAccountByNumber(ctx, accountNumber)
	})
}

func (c *Resilient) Credit(ctx context.Context, accountID string, amount int64) error {
	_, err := c.execute(ctx, true, func(ctx context.Context) (any, error) {
		return nil, c.inner.Credit(ctx, accountID, amount)
	})
	c.invalidate(ctx, accountID)
	return err
}

func (c *Resilient) Debit(ctx context.Context, accountID string, amount int64) error {
	_, err := c.execute(ctx, true, func(ctx context.Context) (any, error) {
		return nil, c.inner.Debit(ctx, accountID, amount)
	})
	c.invalidate(ctx, accountID)
	return err
}

func (c *Resilient) AccountExists(ctx context.Context, accountID string) (bool, error) {
	out, err := c.execute(ctx, false, func(ctx context.Context) (any, error) {
		return c.inner.AccountExists(ctx, accountID)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (c *Resilient) HasAccountAccess(ctx context.Context, accountID, userID string) (bool, error) {
	out, err := c.execute(ctx, false, func(ctx context.Context) (any, error) {
		return c.inner.HasAccountAccess(ctx, accountID, userID)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (c *Resilient) getAccount(ctx context.Context, key string, fetch func(context.Context) (*models.AccountInfo, error)) (*models.AccountInfo, error) {
	out, err := c.execute(ctx, false, func(ctx context.Context) (any, error) {
		if c.cache != nil {
			if account, ok := c.cache.Get(ctx, key); ok {
				return account, nil
			}
		}
		account, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Set(ctx, accountIDKeyPrefix+account.ID, account)
			c.cache.Set(ctx, accountNumberKeyPrefix+account.Number, account)
		}
		return account, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.AccountInfo), nil
}

// invalidate drops both cache keys for the account after a mutation. The
// number key is recoverable only through the cached projection itself.
func (c *Resilient) invalidate(ctx context.Context, accountID string) {
	if c.cache == nil {
		return
	}
	if account, ok := c.cache.Get(ctx, accountIDKeyPrefix+accountID); ok {
		c.cache.Delete(ctx, accountNumberKeyPrefix+account.Number)
	}
	c.cache.Delete(ctx, accountIDKeyPrefix+accountID)
}

func (c *Resilient) execute(ctx context.Context, mutation bool, op func(context.Context) (any, error)) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeUnavailable, "rate limit wait aborted", err)
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.withRetry(ctx, mutation, op)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeUnavailable, "account service circuit open", err)
	}
	return out, err
}

func (c *Resilient) withRetry(ctx context.Context, mutation bool, op func(context.Context) (any, error)) (any, error) {
	var out any
	attempt := func() error {
		result, err := op(ctx)
		if err != nil {
			if !c.shouldRetry(err, mutation) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = result
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.policy.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.policy.RetryMaxAttempts-1)), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}
	return out, nil
}

// shouldRetry applies the failure classification. Reads retry on any
// infrastructure failure. Credits and debits retry only when the request
// demonstrably never reached the service, since a timed-out mutation may
// already have been applied remotely.
func (c *Resilient) shouldRetry(err error, mutation bool) bool {
	if !errs.Retryable(err) {
		return false
	}
	if !mutation {
		return true
	}
	return notSent(err)
}

// notSent reports whether the failure happened before any byte reached the
// remote side: connection refused or dial-phase errors.
func notSent(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}
