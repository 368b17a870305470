package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/backchannelauth/ciba/pkg/ciba"
)

// expiredGrace keeps records in Redis past their transaction expiry so the
// poll state machine can still observe the expiry and answer expired_token
// before the backend reclaims them. After the grace window Redis drops
// whatever was never polled again.
const expiredGrace = 5 * time.Minute

// RedisBank stores the eight artifact stores under namespaced Redis keys
// with a TTL derived from the transaction expiry. Listener fan-out and the
// per-transaction lock are process local; running several proxy nodes
// against one Redis requires an external lock and is not supported by this
// backend.
type RedisBank struct {
	client *redis.Client
	locks  *KeyMutex

	authRequests  notifier[*ciba.AuthenticationRequest]
	authResponses notifier[*ciba.AuthenticationResult]
	tokenRequests notifier[*ciba.TokenRequest]
	tokenResponse notifier[*ciba.TokenResponse]
	expiresAt     notifier[time.Time]
	lastPollAt    notifier[time.Time]
	issuedAt      notifier[time.Time]
	interval      notifier[time.Duration]
}

var _ Bank = (*RedisBank)(nil)

func NewRedisBank(client *redis.Client) *RedisBank {
	return &RedisBank{
		client: client,
		locks:  NewKeyMutex(),
	}
}

const (
	keyAuthRequest   = "ciba:authreq:"
	keyAuthResponse  = "ciba:authres:"
	keyTokenRequest  = "ciba:tokenreq:"
	keyTokenResponse = "ciba:tokenres:"
	keyExpiresAt     = "ciba:expires:"
	keyLastPollAt    = "ciba:lastpoll:"
	keyIssuedAt      = "ciba:issued:"
	keyInterval      = "ciba:interval:"
)

type notifier[V any] struct {
	mu        sync.Mutex
	listeners []Listener[V]
}

func (n *notifier[V]) register(listener Listener[V]) {
	n.mu.Lock()
	defer n.mu.Unlock()
	listeners := make([]Listener[V], len(n.listeners), len(n.listeners)+1)
	copy(listeners, n.listeners)
	n.listeners = append(listeners, listener)
}

func (n *notifier[V]) added(key string, value V) {
	n.mu.Lock()
	listeners := n.listeners
	n.mu.Unlock()
	for _, notify := range listeners {
		notify(key, value, true)
	}
}

func (n *notifier[V]) removed(key string) {
	n.mu.Lock()
	listeners := n.listeners
	n.mu.Unlock()
	var zero V
	for _, notify := range listeners {
		notify(key, zero, false)
	}
}

// ttlFor derives the remaining lifetime of a record from the transaction's
// stored expiry. Records written before the expiry record exists (or after
// it is gone) get the grace window.
func (b *RedisBank) ttlFor(ctx context.Context, id string) time.Duration {
	expiresAt, err := b.GetExpiresAt(ctx, id)
	if err != nil {
		return expiredGrace
	}
	ttl := time.Until(expiresAt) + expiredGrace
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

func (b *RedisBank) setJSON(ctx context.Context, key, id string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: marshal %s%s: %w", key, id, err)
	}
	if err := b.client.Set(ctx, key+id, data, ttl).Err(); err != nil {
		return fmt.Errorf("storage: set %s%s: %w", key, id, err)
	}
	return nil
}

func (b *RedisBank) getJSON(ctx context.Context, key, id string, value any) error {
	data, err := b.client.Get(ctx, key+id).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: get %s%s: %w", key, id, err)
	}
	if err := json.Unmarshal([]byte(data), value); err != nil {
		return fmt.Errorf("storage: unmarshal %s%s: %w", key, id, err)
	}
	return nil
}

func (b *RedisBank) del(ctx context.Context, key, id string) error {
	if err := b.client.Del(ctx, key+id).Err(); err != nil {
		return fmt.Errorf("storage: del %s%s: %w", key, id, err)
	}
	return nil
}

func (b *RedisBank) AddAuthRequest(ctx context.Context, id string, req *ciba.AuthenticationRequest) error {
	if err := b.setJSON(ctx, keyAuthRequest, id, req, b.ttlFor(ctx, id)); err != nil {
		return err
	}
	b.authRequests.added(id, req)
	return nil
}

func (b *RedisBank) GetAuthRequest(ctx context.Context, id string) (*ciba.AuthenticationRequest, error) {
	req := new(ciba.AuthenticationRequest)
	if err := b.getJSON(ctx, keyAuthRequest, id, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (b *RedisBank) RemoveAuthRequest(ctx context.Context, id string) error {
	if err := b.del(ctx, keyAuthRequest, id); err != nil {
		return err
	}
	b.authRequests.removed(id)
	return nil
}

func (b *RedisBank) AddAuthResponse(ctx context.Context, id string, res *ciba.AuthenticationResult) error {
	if err := b.setJSON(ctx, keyAuthResponse, id, res, b.ttlFor(ctx, id)); err != nil {
		return err
	}
	b.authResponses.added(id, res)
	return nil
}

func (b *RedisBank) GetAuthResponse(ctx context.Context, id string) (*ciba.AuthenticationResult, error) {
	res := new(ciba.AuthenticationResult)
	if err := b.getJSON(ctx, keyAuthResponse, id, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (b *RedisBank) RemoveAuthResponse(ctx context.Context, id string) error {
	if err := b.del(ctx, keyAuthResponse, id); err != nil {
		return err
	}
	b.authResponses.removed(id)
	return nil
}

func (b *RedisBank) AddTokenRequest(ctx context.Context, id string, req *ciba.TokenRequest) error {
	if err := b.setJSON(ctx, keyTokenRequest, id, req, b.ttlFor(ctx, id)); err != nil {
		return err
	}
	b.tokenRequests.added(id, req)
	return nil
}

func (b *RedisBank) GetTokenRequest(ctx context.Context, id string) (*ciba.TokenRequest, error) {
	req := new(ciba.TokenRequest)
	if err := b.getJSON(ctx, keyTokenRequest, id, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (b *RedisBank) RemoveTokenRequest(ctx context.Context, id string) error {
	if err := b.del(ctx, keyTokenRequest, id); err != nil {
		return err
	}
	b.tokenRequests.removed(id)
	return nil
}

func (b *RedisBank) AddTokenResponse(ctx context.Context, id string, res *ciba.TokenResponse) error {
	if err := b.setJSON(ctx, keyTokenResponse, id, res, b.ttlFor(ctx, id)); err != nil {
		return err
	}
	b.tokenResponse.added(id, res)
	return nil
}

func (b *RedisBank) GetTokenResponse(ctx context.Context, id string) (*ciba.TokenResponse, error) {
	res := new(ciba.TokenResponse)
	if err := b.getJSON(ctx, keyTokenResponse, id, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (b *RedisBank) RemoveTokenResponse(ctx context.Context, id string) error {
	if err := b.del(ctx, keyTokenResponse, id); err != nil {
		return err
	}
	b.tokenResponse.removed(id)
	return nil
}

func (b *RedisBank) AddExpiresAt(ctx context.Context, id string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt) + expiredGrace
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := b.setJSON(ctx, keyExpiresAt, id, expiresAt, ttl); err != nil {
		return err
	}
	b.expiresAt.added(id, expiresAt)
	return nil
}

func (b *RedisBank) GetExpiresAt(ctx context.Context, id string) (time.Time, error) {
	var t time.Time
	if err := b.getJSON(ctx, keyExpiresAt, id, &t); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func (b *RedisBank) RemoveExpiresAt(ctx context.Context, id string) error {
	if err := b.del(ctx, keyExpiresAt, id); err != nil {
		return err
	}
	b.expiresAt.removed(id)
	return nil
}

func (b *RedisBank) AddLastPollAt(ctx context.Context, id string, lastPollAt time.Time) error {
	if err := b.setJSON(ctx, keyLastPollAt, id, lastPollAt, b.ttlFor(ctx, id)); err != nil {
		return err
	}
	b.lastPollAt.added(id, lastPollAt)
	return nil
}

func (b *RedisBank) GetLastPollAt(ctx context.Context, id string) (time.Time, error) {
	var t time.Time
	if err := b.getJSON(ctx, keyLastPollAt, id, &t); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func (b *RedisBank) RemoveLastPollAt(ctx context.Context, id string) error {
	if err := b.del(ctx, keyLastPollAt, id); err != nil {
		return err
	}
	b.lastPollAt.removed(id)
	return nil
}

func (b *RedisBank) AddIssuedAt(ctx context.Context, id string, issuedAt time.Time) error {
	if err := b.setJSON(ctx, keyIssuedAt, id, issuedAt, b.ttlFor(ctx, id)); err != nil {
		return err
	}
	b.issuedAt.added(id, issuedAt)
	return nil
}

func (b *RedisBank) GetIssuedAt(ctx context.Context, id string) (time.Time, error) {
	var t time.Time
	if err := b.getJSON(ctx, keyIssuedAt, id, &t); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func (b *RedisBank) RemoveIssuedAt(ctx context.Context, id string) error {
	if err := b.del(ctx, keyIssuedAt, id); err != nil {
		return err
	}
	b.issuedAt.removed(id)
	return nil
}

func (b *RedisBank) AddInterval(ctx context.Context, id string, interval time.Duration) error {
	if err := b.setJSON(ctx, keyInterval, id, interval, b.ttlFor(ctx, id)); err != nil {
		return err
	}
	b.interval.added(id, interval)
	return nil
}

func (b *RedisBank) GetInterval(ctx context.Context, id string) (time.Duration, error) {
	var d time.Duration
	if err := b.getJSON(ctx, keyInterval, id, &d); err != nil {
		return 0, err
	}
	return d, nil
}

func (b *RedisBank) RemoveInterval(ctx context.Context, id string) error {
	if err := b.del(ctx, keyInterval, id); err != nil {
		return err
	}
	b.interval.removed(id)
	return nil
}

func (b *RedisBank) CreateTransaction(ctx context.Context, id string, req *ciba.AuthenticationRequest, expiresAt time.Time, interval time.Duration) error {
	if err := b.AddExpiresAt(ctx, id, expiresAt); err != nil {
		return err
	}
	if err := b.AddAuthRequest(ctx, id, req); err != nil {
		return err
	}
	if err := b.AddInterval(ctx, id, interval); err != nil {
		return err
	}
	return b.AddLastPollAt(ctx, id, NeverPolled)
}

func (b *RedisBank) PurgeTransaction(ctx context.Context, id string) error {
	keys := []string{
		keyAuthRequest + id,
		keyAuthResponse + id,
		keyTokenRequest + id,
		keyTokenResponse + id,
		keyExpiresAt + id,
		keyLastPollAt + id,
		keyIssuedAt + id,
		keyInterval + id,
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("storage: purge %s: %w", id, err)
	}
	b.authRequests.removed(id)
	b.authResponses.removed(id)
	b.tokenRequests.removed(id)
	b.tokenResponse.removed(id)
	b.expiresAt.removed(id)
	b.lastPollAt.removed(id)
	b.issuedAt.removed(id)
	b.interval.removed(id)
	return nil
}

func (b *RedisBank) Lock(id string)   { b.locks.Lock(id) }
func (b *RedisBank) Unlock(id string) { b.locks.Unlock(id) }

func (b *RedisBank) RegisterAuthRequestListener(listener Listener[*ciba.AuthenticationRequest]) {
	b.authRequests.register(listener)
}

func (b *RedisBank) RegisterAuthResponseListener(listener Listener[*ciba.AuthenticationResult]) {
	b.authResponses.register(listener)
}

func (b *RedisBank) RegisterTokenRequestListener(listener Listener[*ciba.TokenRequest]) {
	b.tokenRequests.register(listener)
}

func (b *RedisBank) RegisterTokenResponseListener(listener Listener[*ciba.TokenResponse]) {
	b.tokenResponse.register(listener)
}

func (b *RedisBank) RegisterExpiresAtListener(listener Listener[time.Time]) {
	b.expiresAt.register(listener)
}

func (b *RedisBank) RegisterLastPollAtListener(listener Listener[time.Time]) {
	b.lastPollAt.register(listener)
}

func (b *RedisBank) RegisterIssuedAtListener(listener Listener[time.Time]) {
	b.issuedAt.register(listener)
}

func (b *RedisBank) RegisterIntervalListener(listener Listener[time.Duration]) {
	b.interval.register(listener)
}

func (b *RedisBank) Health(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
