package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/backchannelauth/ciba/pkg/ciba"
	httphelper "github.com/backchannelauth/ciba/pkg/http"
	"github.com/backchannelauth/ciba/pkg/storage"
)

// ChallengeSummary is what the authentication device needs to render an
// approval prompt. It never contains token material.
type ChallengeSummary struct {
	AuthReqID      string                   `json:"auth_req_id"`
	ClientID       string                   `json:"client_id"`
	Scopes         ciba.SpaceDelimitedArray `json:"scope"`
	BindingMessage string                   `json:"binding_message,omitempty"`
	LoginHint      string                   `json:"login_hint,omitempty"`
	ExpiresAt      time.Time                `json:"expires_at"`
}

// DeviceChannel delivers approval challenges to the user's out-of-band
// authentication device.
type DeviceChannel interface {
	Challenge(ctx context.Context, summary *ChallengeSummary) error
}

// HTTPDeviceChannel posts challenges to a configured device gateway URL.
type HTTPDeviceChannel struct {
	endpoint string
	client   *http.Client
}

func NewHTTPDeviceChannel(endpoint string, client *http.Client) *HTTPDeviceChannel {
	if client == nil {
		client = httphelper.DefaultHTTPClient
	}
	return &HTTPDeviceChannel{endpoint: endpoint, client: client}
}

func (c *HTTPDeviceChannel) Challenge(ctx context.Context, summary *ChallengeSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding challenge: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating challenge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering challenge: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("device gateway answered %s", resp.Status)
	}
	return nil
}

// DeviceResponseHandler accepts the device's answer to a challenge and
// records it as the transaction's authResponse.
type DeviceResponseHandler struct {
	bank   storage.Bank
	logger *slog.Logger
	clock  func() time.Time
}

func NewDeviceResponseHandler(bank storage.Bank, logger *slog.Logger) *DeviceResponseHandler {
	return &DeviceResponseHandler{
		bank:   bank,
		logger: logger,
		clock:  time.Now,
	}
}

// CompleteAuthentication deposits the device's verdict. The first verdict
// per transaction wins; a second deposit is rejected so a late approval
// cannot overwrite a denial.
func (h *DeviceResponseHandler) CompleteAuthentication(ctx context.Context, res *ciba.AuthenticationResult) error {
	ctx, span := tracer.Start(ctx, "CompleteAuthentication")
	defer span.End()

	if res.AuthReqID == "" {
		return ciba.ErrInvalidRequest().WithDescription("auth_req_id missing")
	}
	if res.Outcome != ciba.OutcomeApproved && res.Outcome != ciba.OutcomeDenied {
		return ciba.ErrInvalidRequest().WithDescription("outcome must be approved or denied")
	}
	if res.Outcome == ciba.OutcomeApproved && res.Subject == "" {
		return ciba.ErrInvalidRequest().WithDescription("subject missing for approval")
	}

	id := res.AuthReqID
	h.bank.Lock(id)
	defer h.bank.Unlock(id)

	if _, err := h.bank.GetAuthRequest(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ciba.ErrInvalidGrant().WithDescription("unknown auth_req_id")
		}
		return ciba.DefaultToServerError(err, "reading transaction failed")
	}
	expiresAt, err := h.bank.GetExpiresAt(ctx, id)
	if err != nil {
		return ciba.DefaultToServerError(err, "reading transaction failed")
	}
	if !h.clock().Before(expiresAt) {
		return ciba.ErrExpiredToken().WithDescription("transaction expired")
	}
	if _, err := h.bank.GetAuthResponse(ctx, id); err == nil {
		return ciba.ErrInvalidRequest().WithDescription("authentication result already recorded")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return ciba.DefaultToServerError(err, "reading transaction failed")
	}

	if err := h.bank.AddAuthResponse(ctx, id, res); err != nil {
		return ciba.DefaultToServerError(err, "recording authentication result failed")
	}
	h.logger.InfoContext(ctx, "authentication result recorded", "auth_req_id", id, "outcome", res.Outcome)
	return nil
}
