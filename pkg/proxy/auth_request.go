package proxy

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/backchannelauth/ciba/pkg/ciba"
	"github.com/backchannelauth/ciba/pkg/storage"
)

const (
	DefaultLifetime = 600 * time.Second
	DefaultInterval = 5 * time.Second
)

// 16 bytes gives 128 bit of entropy.
// results in a 22 character base64 encoded string.
const RecommendedAuthReqIDBytes = 16

// NewAuthReqID mints a fresh auth_req_id. The identifier is an untrusted
// bearer credential for the transaction, so it carries real entropy.
func NewAuthReqID(nBytes int) (string, error) {
	bytes := make([]byte, nBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("%w getting entropy for auth_req_id", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// AuthRequestPolicy bounds the timing parameters a client may request.
// A requested_expiry or requested_interval outside the configured bounds
// rejects the request; absent overrides fall back to the defaults.
type AuthRequestPolicy struct {
	Lifetime    time.Duration
	MinLifetime time.Duration
	MaxLifetime time.Duration

	Interval    time.Duration
	MinInterval time.Duration
	MaxInterval time.Duration
}

func DefaultAuthRequestPolicy() AuthRequestPolicy {
	return AuthRequestPolicy{
		Lifetime:    DefaultLifetime,
		MinLifetime: 30 * time.Second,
		MaxLifetime: time.Hour,
		Interval:    DefaultInterval,
		MinInterval: time.Second,
		MaxInterval: time.Minute,
	}
}

func (p AuthRequestPolicy) lifetime(requested *int) (time.Duration, error) {
	if requested == nil {
		return p.Lifetime, nil
	}
	lifetime := time.Duration(*requested) * time.Second
	if lifetime < p.MinLifetime || lifetime > p.MaxLifetime {
		return 0, ciba.ErrInvalidRequest().WithDescription("requested_expiry must be between %d and %d seconds",
			int(p.MinLifetime.Seconds()), int(p.MaxLifetime.Seconds()))
	}
	return lifetime, nil
}

func (p AuthRequestPolicy) interval(requested *int) (time.Duration, error) {
	if requested == nil {
		return p.Interval, nil
	}
	interval := time.Duration(*requested) * time.Second
	if interval < p.MinInterval || interval > p.MaxInterval {
		return 0, ciba.ErrInvalidRequest().WithDescription("requested_interval must be between %d and %d seconds",
			int(p.MinInterval.Seconds()), int(p.MaxInterval.Seconds()))
	}
	return interval, nil
}

// AuthRequestHandler creates a transaction from a signed authentication
// request and challenges the out-of-band device.
type AuthRequestHandler struct {
	bank     storage.Bank
	verifier SignatureVerifier
	channel  DeviceChannel
	policy   AuthRequestPolicy
	logger   *slog.Logger
	clock    func() time.Time
}

func NewAuthRequestHandler(bank storage.Bank, verifier SignatureVerifier, channel DeviceChannel, policy AuthRequestPolicy, logger *slog.Logger) *AuthRequestHandler {
	return &AuthRequestHandler{
		bank:     bank,
		verifier: verifier,
		channel:  channel,
		policy:   policy,
		logger:   logger,
		clock:    time.Now,
	}
}

func (h *AuthRequestHandler) Kind() RequestKind {
	return KindAuthRequest
}

func (h *AuthRequestHandler) Handle(ctx context.Context, req any) (any, error) {
	signedRequest, ok := req.(string)
	if !ok {
		return nil, ciba.ErrInvalidRequest().WithDescription("signed request expected")
	}
	return h.Submit(ctx, signedRequest)
}

// Submit verifies the signed request, creates the transaction and forwards
// the approval challenge to the authentication device channel. The channel
// call is fire-and-forget; the device's answer arrives asynchronously as the
// transaction's authResponse.
func (h *AuthRequestHandler) Submit(ctx context.Context, signedRequest string) (*ciba.AuthenticationResponse, error) {
	ctx, span := tracer.Start(ctx, "Submit")
	defer span.End()

	if h.channel == nil {
		return nil, ciba.ErrServerError().WithDescription("no authentication device channel reachable")
	}
	if signedRequest == "" {
		return nil, ciba.ErrInvalidRequest().WithDescription("request missing")
	}

	req, err := h.verifier.Verify(ctx, signedRequest)
	if err != nil {
		return nil, ciba.DefaultToServerError(err, "request verification failed")
	}
	if req.ClientID == "" {
		return nil, ciba.ErrInvalidRequest().WithDescription("client_id missing")
	}
	if len(req.Scopes) == 0 {
		return nil, ciba.ErrInvalidRequest().WithDescription("scope missing")
	}

	lifetime, err := h.policy.lifetime(req.RequestedExpiry)
	if err != nil {
		return nil, err
	}
	interval, err := h.policy.interval(req.RequestedInterval)
	if err != nil {
		return nil, err
	}

	id, err := NewAuthReqID(RecommendedAuthReqIDBytes)
	if err != nil {
		return nil, ciba.ErrServerError().WithDescription("generating auth_req_id failed").WithParent(err)
	}

	expiresAt := h.clock().Add(lifetime)

	h.bank.Lock(id)
	err = h.bank.CreateTransaction(ctx, id, req, expiresAt, interval)
	h.bank.Unlock(id)
	if err != nil {
		return nil, ciba.ErrServerError().WithDescription("storing transaction failed").WithParent(err)
	}

	go h.challenge(id, req, expiresAt)

	return &ciba.AuthenticationResponse{
		AuthReqID: id,
		ExpiresIn: int(lifetime.Seconds()),
		Interval:  int(interval.Seconds()),
	}, nil
}

func (h *AuthRequestHandler) challenge(id string, req *ciba.AuthenticationRequest, expiresAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := h.channel.Challenge(ctx, &ChallengeSummary{
		AuthReqID:      id,
		ClientID:       req.ClientID,
		Scopes:         req.Scopes,
		BindingMessage: req.BindingMessage,
		LoginHint:      req.LoginHint,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		h.logger.Error("challenge delivery failed", "auth_req_id", id, "error", err)
	}
}
