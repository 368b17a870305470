package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/backchannelauth/ciba/pkg/ciba"
)

// ErrNotFound is returned by the Get* methods of a Bank when no entry exists
// for the given auth_req_id in the addressed store.
var ErrNotFound = errors.New("storage: entry not found")

// NeverPolled is the lastPollAt sentinel recorded at transaction creation,
// before the first poll. Any real poll time is after it, so the first poll is
// never throttled.
var NeverPolled = time.Unix(0, 0)

// Bank is the capability surface over the eight parallel stores tracking one
// CIBA transaction: the original authentication request, the device's
// response, the latest token request, the issued token response, the absolute
// expiry, the last poll time, the issuance time and the minimum poll
// interval.
//
// The per-artifact methods operate on a single store. CreateTransaction and
// PurgeTransaction are the only operations that may touch more than one
// store; callers must hold the transaction lock (Lock/Unlock) around them
// and around any read-then-write sequence spanning stores, most importantly
// the token endpoint's poll transition.
type Bank interface {
	AddAuthRequest(ctx context.Context, id string, req *ciba.AuthenticationRequest) error
	GetAuthRequest(ctx context.Context, id string) (*ciba.AuthenticationRequest, error)
	RemoveAuthRequest(ctx context.Context, id string) error

	AddAuthResponse(ctx context.Context, id string, res *ciba.AuthenticationResult) error
	GetAuthResponse(ctx context.Context, id string) (*ciba.AuthenticationResult, error)
	RemoveAuthResponse(ctx context.Context, id string) error

	AddTokenRequest(ctx context.Context, id string, req *ciba.TokenRequest) error
	GetTokenRequest(ctx context.Context, id string) (*ciba.TokenRequest, error)
	RemoveTokenRequest(ctx context.Context, id string) error

	AddTokenResponse(ctx context.Context, id string, res *ciba.TokenResponse) error
	GetTokenResponse(ctx context.Context, id string) (*ciba.TokenResponse, error)
	RemoveTokenResponse(ctx context.Context, id string) error

	AddExpiresAt(ctx context.Context, id string, expiresAt time.Time) error
	GetExpiresAt(ctx context.Context, id string) (time.Time, error)
	RemoveExpiresAt(ctx context.Context, id string) error

	AddLastPollAt(ctx context.Context, id string, lastPollAt time.Time) error
	GetLastPollAt(ctx context.Context, id string) (time.Time, error)
	RemoveLastPollAt(ctx context.Context, id string) error

	AddIssuedAt(ctx context.Context, id string, issuedAt time.Time) error
	GetIssuedAt(ctx context.Context, id string) (time.Time, error)
	RemoveIssuedAt(ctx context.Context, id string) error

	AddInterval(ctx context.Context, id string, interval time.Duration) error
	GetInterval(ctx context.Context, id string) (time.Duration, error)
	RemoveInterval(ctx context.Context, id string) error

	// CreateTransaction writes the anchor authRequest record together with
	// expiresAt, interval and the NeverPolled sentinel. Caller must hold the
	// transaction lock for id.
	CreateTransaction(ctx context.Context, id string, req *ciba.AuthenticationRequest, expiresAt time.Time, interval time.Duration) error

	// PurgeTransaction removes all eight records of id. Caller must hold the
	// transaction lock for id.
	PurgeTransaction(ctx context.Context, id string) error

	// Lock and Unlock serialize all state transitions of one transaction.
	// Distinct ids never contend.
	Lock(id string)
	Unlock(id string)

	RegisterAuthRequestListener(listener Listener[*ciba.AuthenticationRequest])
	RegisterAuthResponseListener(listener Listener[*ciba.AuthenticationResult])
	RegisterTokenRequestListener(listener Listener[*ciba.TokenRequest])
	RegisterTokenResponseListener(listener Listener[*ciba.TokenResponse])
	RegisterExpiresAtListener(listener Listener[time.Time])
	RegisterLastPollAtListener(listener Listener[time.Time])
	RegisterIssuedAtListener(listener Listener[time.Time])
	RegisterIntervalListener(listener Listener[time.Duration])

	Health(ctx context.Context) error
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and parameterizes a Bank backend.
type Config struct {
	Backend string

	Redis RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Open returns the Bank backend named by cfg.Backend. Callers depend only on
// the Bank interface, so a distributed backend can be substituted without
// changing the handlers.
func Open(cfg Config) (Bank, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryBank(), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisBank(client), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

// RegisterAudit attaches a debug-logging listener to every store of the
// bank, so that mutations can be observed (audit, cache replication) without
// sitting in the request path.
func RegisterAudit(bank Bank, logger *slog.Logger) {
	bank.RegisterAuthRequestListener(NewAuditListener[*ciba.AuthenticationRequest](logger, "authRequest"))
	bank.RegisterAuthResponseListener(NewAuditListener[*ciba.AuthenticationResult](logger, "authResponse"))
	bank.RegisterTokenRequestListener(NewAuditListener[*ciba.TokenRequest](logger, "tokenRequest"))
	bank.RegisterTokenResponseListener(NewAuditListener[*ciba.TokenResponse](logger, "tokenResponse"))
	bank.RegisterExpiresAtListener(NewAuditListener[time.Time](logger, "expiresAt"))
	bank.RegisterLastPollAtListener(NewAuditListener[time.Time](logger, "lastPollAt"))
	bank.RegisterIssuedAtListener(NewAuditListener[time.Time](logger, "issuedAt"))
	bank.RegisterIntervalListener(NewAuditListener[time.Duration](logger, "interval"))
}

// NewAuditListener returns a listener logging every mutation of the named
// store.
func NewAuditListener[V any](logger *slog.Logger, store string) Listener[V] {
	return func(key string, _ V, present bool) {
		if present {
			logger.Debug("store entry written", "store", store, "auth_req_id", key)
			return
		}
		logger.Debug("store entry removed", "store", store, "auth_req_id", key)
	}
}
