package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/muhlemmer/gu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backchannelauth/ciba/pkg/ciba"
	"github.com/backchannelauth/ciba/pkg/storage"
)

type staticVerifier struct {
	req *ciba.AuthenticationRequest
}

func (v staticVerifier) Verify(ctx context.Context, signedRequest string) (*ciba.AuthenticationRequest, error) {
	return v.req, nil
}

type recordingChannel struct {
	challenges chan *ChallengeSummary
}

func newRecordingChannel() *recordingChannel {
	return &recordingChannel{challenges: make(chan *ChallengeSummary, 16)}
}

func (c *recordingChannel) Challenge(ctx context.Context, summary *ChallengeSummary) error {
	c.challenges <- summary
	return nil
}

func (c *recordingChannel) wait(t *testing.T) *ChallengeSummary {
	t.Helper()
	select {
	case summary := <-c.challenges:
		return summary
	case <-time.After(time.Second):
		t.Fatal("no challenge delivered")
		return nil
	}
}

func TestNewAuthReqID(t *testing.T) {
	id, err := NewAuthReqID(RecommendedAuthReqIDBytes)
	require.NoError(t, err)
	assert.Len(t, id, 22)
}

func TestSubmitDefaults(t *testing.T) {
	bank := storage.NewMemoryBank()
	channel := newRecordingChannel()
	verifier := staticVerifier{req: &ciba.AuthenticationRequest{
		ClientID:       "client",
		Scopes:         ciba.SpaceDelimitedArray{"openid"},
		BindingMessage: "W4SCT",
	}}
	handler := NewAuthRequestHandler(bank, verifier, channel, DefaultAuthRequestPolicy(), discardLogger())

	res, err := handler.Submit(context.Background(), "signed")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AuthReqID)
	assert.Equal(t, 600, res.ExpiresIn)
	assert.Equal(t, 5, res.Interval)

	ctx := context.Background()
	_, err = bank.GetAuthRequest(ctx, res.AuthReqID)
	require.NoError(t, err)
	interval, err := bank.GetInterval(ctx, res.AuthReqID)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, interval)
	lastPollAt, err := bank.GetLastPollAt(ctx, res.AuthReqID)
	require.NoError(t, err)
	assert.Equal(t, storage.NeverPolled, lastPollAt)

	summary := channel.wait(t)
	assert.Equal(t, res.AuthReqID, summary.AuthReqID)
	assert.Equal(t, "W4SCT", summary.BindingMessage)
}

func TestSubmitRequestedTiming(t *testing.T) {
	tests := []struct {
		name     string
		expiry   *int
		interval *int
		wantErr  bool
	}{
		{name: "within bounds", expiry: gu.Ptr(120), interval: gu.Ptr(2)},
		{name: "expiry too short", expiry: gu.Ptr(10), wantErr: true},
		{name: "expiry too long", expiry: gu.Ptr(7200), wantErr: true},
		{name: "interval too long", interval: gu.Ptr(120), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := staticVerifier{req: &ciba.AuthenticationRequest{
				ClientID:          "client",
				Scopes:            ciba.SpaceDelimitedArray{"openid"},
				RequestedExpiry:   tt.expiry,
				RequestedInterval: tt.interval,
			}}
			handler := NewAuthRequestHandler(storage.NewMemoryBank(), verifier, newRecordingChannel(), DefaultAuthRequestPolicy(), discardLogger())

			res, err := handler.Submit(context.Background(), "signed")
			if tt.wantErr {
				require.ErrorIs(t, err, ciba.ErrInvalidRequest())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, *tt.expiry, res.ExpiresIn)
			assert.Equal(t, *tt.interval, res.Interval)
		})
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		req  *ciba.AuthenticationRequest
	}{
		{name: "missing client_id", req: &ciba.AuthenticationRequest{Scopes: ciba.SpaceDelimitedArray{"openid"}}},
		{name: "missing scope", req: &ciba.AuthenticationRequest{ClientID: "client"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthRequestHandler(storage.NewMemoryBank(), staticVerifier{req: tt.req}, newRecordingChannel(), DefaultAuthRequestPolicy(), discardLogger())

			_, err := handler.Submit(context.Background(), "signed")
			require.ErrorIs(t, err, ciba.ErrInvalidRequest())
		})
	}
}

func TestSubmitEmptyRequest(t *testing.T) {
	handler := NewAuthRequestHandler(storage.NewMemoryBank(), staticVerifier{}, newRecordingChannel(), DefaultAuthRequestPolicy(), discardLogger())

	_, err := handler.Submit(context.Background(), "")
	require.ErrorIs(t, err, ciba.ErrInvalidRequest())
}

func TestSubmitNoChannel(t *testing.T) {
	handler := NewAuthRequestHandler(storage.NewMemoryBank(), staticVerifier{}, nil, DefaultAuthRequestPolicy(), discardLogger())

	_, err := handler.Submit(context.Background(), "signed")
	require.ErrorIs(t, err, ciba.ErrServerError())
}

func TestSubmitUniqueIDs(t *testing.T) {
	verifier := staticVerifier{req: &ciba.AuthenticationRequest{
		ClientID: "client",
		Scopes:   ciba.SpaceDelimitedArray{"openid"},
	}}
	handler := NewAuthRequestHandler(storage.NewMemoryBank(), verifier, newRecordingChannel(), DefaultAuthRequestPolicy(), discardLogger())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		res, err := handler.Submit(context.Background(), "signed")
		require.NoError(t, err)
		require.False(t, seen[res.AuthReqID])
		seen[res.AuthReqID] = true
	}
}
