package storage

import (
	"context"
	"time"

	"github.com/backchannelauth/ciba/pkg/ciba"
)

// MemoryBank keeps the eight artifact stores in process memory. It is the
// default backend; state does not survive a restart and is not shared
// between nodes.
type MemoryBank struct {
	authRequests  *Store[*ciba.AuthenticationRequest]
	authResponses *Store[*ciba.AuthenticationResult]
	tokenRequests *Store[*ciba.TokenRequest]
	tokenResponse *Store[*ciba.TokenResponse]
	expiresAt     *Store[time.Time]
	lastPollAt    *Store[time.Time]
	issuedAt      *Store[time.Time]
	interval      *Store[time.Duration]

	locks *KeyMutex
}

var _ Bank = (*MemoryBank)(nil)

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		authRequests:  NewStore[*ciba.AuthenticationRequest](),
		authResponses: NewStore[*ciba.AuthenticationResult](),
		tokenRequests: NewStore[*ciba.TokenRequest](),
		tokenResponse: NewStore[*ciba.TokenResponse](),
		expiresAt:     NewStore[time.Time](),
		lastPollAt:    NewStore[time.Time](),
		issuedAt:      NewStore[time.Time](),
		interval:      NewStore[time.Duration](),
		locks:         NewKeyMutex(),
	}
}

func (b *MemoryBank) AddAuthRequest(_ context.Context, id string, req *ciba.AuthenticationRequest) error {
	b.authRequests.Add(id, req)
	return nil
}

func (b *MemoryBank) GetAuthRequest(_ context.Context, id string) (*ciba.AuthenticationRequest, error) {
	req, ok := b.authRequests.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return req, nil
}

func (b *MemoryBank) RemoveAuthRequest(_ context.Context, id string) error {
	b.authRequests.Remove(id)
	return nil
}

func (b *MemoryBank) AddAuthResponse(_ context.Context, id string, res *ciba.AuthenticationResult) error {
	b.authResponses.Add(id, res)
	return nil
}

func (b *MemoryBank) GetAuthResponse(_ context.Context, id string) (*ciba.AuthenticationResult, error) {
	res, ok := b.authResponses.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return res, nil
}

func (b *MemoryBank) RemoveAuthResponse(_ context.Context, id string) error {
	b.authResponses.Remove(id)
	return nil
}

func (b *MemoryBank) AddTokenRequest(_ context.Context, id string, req *ciba.TokenRequest) error {
	b.tokenRequests.Add(id, req)
	return nil
}

func (b *MemoryBank) GetTokenRequest(_ context.Context, id string) (*ciba.TokenRequest, error) {
	req, ok := b.tokenRequests.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return req, nil
}

func (b *MemoryBank) RemoveTokenRequest(_ context.Context, id string) error {
	b.tokenRequests.Remove(id)
	return nil
}

func (b *MemoryBank) AddTokenResponse(_ context.Context, id string, res *ciba.TokenResponse) error {
	b.tokenResponse.Add(id, res)
	return nil
}

func (b *MemoryBank) GetTokenResponse(_ context.Context, id string) (*ciba.TokenResponse, error) {
	res, ok := b.tokenResponse.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return res, nil
}

func (b *MemoryBank) RemoveTokenResponse(_ context.Context, id string) error {
	b.tokenResponse.Remove(id)
	return nil
}

func (b *MemoryBank) AddExpiresAt(_ context.Context, id string, expiresAt time.Time) error {
	b.expiresAt.Add(id, expiresAt)
	return nil
}

func (b *MemoryBank) GetExpiresAt(_ context.Context, id string) (time.Time, error) {
	t, ok := b.expiresAt.Get(id)
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return t, nil
}

func (b *MemoryBank) RemoveExpiresAt(_ context.Context, id string) error {
	b.expiresAt.Remove(id)
	return nil
}

func (b *MemoryBank) AddLastPollAt(_ context.Context, id string, lastPollAt time.Time) error {
	b.lastPollAt.Add(id, lastPollAt)
	return nil
}

func (b *MemoryBank) GetLastPollAt(_ context.Context, id string) (time.Time, error) {
	t, ok := b.lastPollAt.Get(id)
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return t, nil
}

func (b *MemoryBank) RemoveLastPollAt(_ context.Context, id string) error {
	b.lastPollAt.Remove(id)
	return nil
}

func (b *MemoryBank) AddIssuedAt(_ context.Context, id string, issuedAt time.Time) error {
	b.issuedAt.Add(id, issuedAt)
	return nil
}

func (b *MemoryBank) GetIssuedAt(_ context.Context, id string) (time.Time, error) {
	t, ok := b.issuedAt.Get(id)
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return t, nil
}

func (b *MemoryBank) RemoveIssuedAt(_ context.Context, id string) error {
	b.issuedAt.Remove(id)
	return nil
}

func (b *MemoryBank) AddInterval(_ context.Context, id string, interval time.Duration) error {
	b.interval.Add(id, interval)
	return nil
}

func (b *MemoryBank) GetInterval(_ context.Context, id string) (time.Duration, error) {
	d, ok := b.interval.Get(id)
	if !ok {
		return 0, ErrNotFound
	}
	return d, nil
}

func (b *MemoryBank) RemoveInterval(_ context.Context, id string) error {
	b.interval.Remove(id)
	return nil
}

func (b *MemoryBank) CreateTransaction(_ context.Context, id string, req *ciba.AuthenticationRequest, expiresAt time.Time, interval time.Duration) error {
	b.authRequests.Add(id, req)
	b.expiresAt.Add(id, expiresAt)
	b.interval.Add(id, interval)
	b.lastPollAt.Add(id, NeverPolled)
	return nil
}

func (b *MemoryBank) PurgeTransaction(_ context.Context, id string) error {
	b.authRequests.Remove(id)
	b.authResponses.Remove(id)
	b.tokenRequests.Remove(id)
	b.tokenResponse.Remove(id)
	b.expiresAt.Remove(id)
	b.lastPollAt.Remove(id)
	b.issuedAt.Remove(id)
	b.interval.Remove(id)
	return nil
}

func (b *MemoryBank) Lock(id string)   { b.locks.Lock(id) }
func (b *MemoryBank) Unlock(id string) { b.locks.Unlock(id) }

func (b *MemoryBank) RegisterAuthRequestListener(listener Listener[*ciba.AuthenticationRequest]) {
	b.authRequests.Register(listener)
}

func (b *MemoryBank) RegisterAuthResponseListener(listener Listener[*ciba.AuthenticationResult]) {
	b.authResponses.Register(listener)
}

func (b *MemoryBank) RegisterTokenRequestListener(listener Listener[*ciba.TokenRequest]) {
	b.tokenRequests.Register(listener)
}

func (b *MemoryBank) RegisterTokenResponseListener(listener Listener[*ciba.TokenResponse]) {
	b.tokenResponse.Register(listener)
}

func (b *MemoryBank) RegisterExpiresAtListener(listener Listener[time.Time]) {
	b.expiresAt.Register(listener)
}

func (b *MemoryBank) RegisterLastPollAtListener(listener Listener[time.Time]) {
	b.lastPollAt.Register(listener)
}

func (b *MemoryBank) RegisterIssuedAtListener(listener Listener[time.Time]) {
	b.issuedAt.Register(listener)
}

func (b *MemoryBank) RegisterIntervalListener(listener Listener[time.Duration]) {
	b.interval.Register(listener)
}

func (b *MemoryBank) Health(context.Context) error {
	return nil
}
