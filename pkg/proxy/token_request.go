package proxy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/backchannelauth/ciba/pkg/ciba"
	"github.com/backchannelauth/ciba/pkg/storage"
)

// TokenRequestHandler implements the polling protocol of the token endpoint.
//
// A transaction's state is never stored as an enum; it is derived from the
// record contents and the clock on every poll: pending while no authResponse
// exists, approved-unissued once the device approved, issued once a
// tokenResponse exists, denied or expired as terminal failures. Terminal
// transitions purge all eight records of the auth_req_id.
type TokenRequestHandler struct {
	bank   storage.Bank
	issuer TokenIssuer
	logger *slog.Logger
	clock  func() time.Time
}

func NewTokenRequestHandler(bank storage.Bank, issuer TokenIssuer, logger *slog.Logger) *TokenRequestHandler {
	return &TokenRequestHandler{
		bank:   bank,
		issuer: issuer,
		logger: logger,
		clock:  time.Now,
	}
}

func (h *TokenRequestHandler) Kind() RequestKind {
	return KindTokenRequest
}

func (h *TokenRequestHandler) Handle(ctx context.Context, req any) (any, error) {
	tokenReq, ok := req.(*ciba.TokenRequest)
	if !ok {
		return nil, ciba.ErrInvalidRequest().WithDescription("token request expected")
	}
	return h.Poll(ctx, tokenReq)
}

// Poll runs one state-machine transition for the transaction. The whole
// read-then-write sequence holds the transaction lock, so concurrent polls
// on the same auth_req_id serialize and the token is issued at most once.
func (h *TokenRequestHandler) Poll(ctx context.Context, req *ciba.TokenRequest) (*ciba.TokenResponse, error) {
	ctx, span := tracer.Start(ctx, "Poll")
	defer span.End()

	// a wrong grant type leaves the transaction untouched and pollable
	if req.GrantType != ciba.GrantTypeCIBA {
		return nil, ciba.ErrUnsupportedGrantType().WithDescription("%s not supported", req.GrantType)
	}

	id := req.AuthReqID
	if id == "" {
		return nil, ciba.ErrInvalidGrant().WithDescription("auth_req_id missing")
	}

	h.bank.Lock(id)
	defer h.bank.Unlock(id)

	// unknown and already-consumed ids are indistinguishable to the caller,
	// so auth_req_id values cannot be enumerated
	authReq, err := h.bank.GetAuthRequest(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ciba.ErrInvalidGrant().WithDescription("unknown auth_req_id")
		}
		return nil, ciba.DefaultToServerError(err, "reading transaction failed")
	}

	now := h.clock()

	// expiry is the cancellation mechanism: once passed, the transaction is
	// terminal regardless of any pending device response
	expiresAt, err := h.bank.GetExpiresAt(ctx, id)
	if err != nil {
		return nil, ciba.DefaultToServerError(err, "reading transaction failed")
	}
	if !now.Before(expiresAt) {
		h.purge(ctx, id)
		return nil, ciba.ErrExpiredToken().WithDescription("transaction expired")
	}

	lastPollAt, err := h.bank.GetLastPollAt(ctx, id)
	if err != nil {
		return nil, ciba.DefaultToServerError(err, "reading transaction failed")
	}
	interval, err := h.bank.GetInterval(ctx, id)
	if err != nil {
		return nil, ciba.DefaultToServerError(err, "reading transaction failed")
	}

	// every attempt resets the throttle window, throttled ones included, so
	// rapid bursts cannot wait out the interval
	if err := h.bank.AddLastPollAt(ctx, id, now); err != nil {
		return nil, ciba.DefaultToServerError(err, "recording poll failed")
	}
	if err := h.bank.AddTokenRequest(ctx, id, req); err != nil {
		return nil, ciba.DefaultToServerError(err, "recording poll failed")
	}
	if now.Sub(lastPollAt) < interval {
		return nil, ciba.ErrSlowDown().WithDescription("polled before the minimum interval of %d seconds", int(interval.Seconds()))
	}

	authRes, err := h.bank.GetAuthResponse(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ciba.ErrAuthorizationPending().WithDescription("user has not yet responded")
	}
	if err != nil {
		return nil, ciba.DefaultToServerError(err, "reading transaction failed")
	}
	if authRes.Outcome == ciba.OutcomeDenied {
		h.purge(ctx, id)
		return nil, ciba.ErrAccessDenied().WithDescription("user denied the authentication request")
	}

	// a present tokenResponse means the success path already ran once;
	// any further poll is a replay and consumes the transaction
	if _, err := h.bank.GetTokenResponse(ctx, id); err == nil {
		h.purge(ctx, id)
		return nil, ciba.ErrInvalidGrant().WithDescription("token already retrieved")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, ciba.DefaultToServerError(err, "reading transaction failed")
	}

	material, err := h.issuer.Mint(ctx, id, authReq, authRes)
	if err != nil {
		return nil, ciba.DefaultToServerError(err, "minting token failed")
	}
	if err := h.bank.AddTokenResponse(ctx, id, material); err != nil {
		return nil, ciba.DefaultToServerError(err, "recording token failed")
	}
	if err := h.bank.AddIssuedAt(ctx, id, now); err != nil {
		return nil, ciba.DefaultToServerError(err, "recording token failed")
	}

	// no purge here: the records stay so the follow-up poll is recognizable
	// as a replay instead of an unknown id
	return CreateTokenResponse(material), nil
}

func (h *TokenRequestHandler) purge(ctx context.Context, id string) {
	if err := h.bank.PurgeTransaction(ctx, id); err != nil {
		h.logger.ErrorContext(ctx, "purging transaction failed", "auth_req_id", id, "error", err)
	}
}
