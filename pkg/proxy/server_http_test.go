package proxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backchannelauth/ciba/pkg/ciba"
	"github.com/backchannelauth/ciba/pkg/storage"
)

func newTestProvider(t *testing.T) (*Provider, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	issuer := &staticIssuer{material: &ciba.TokenResponse{
		AccessToken:    "access",
		TokenType:      ciba.BearerToken,
		TokenExpiresIn: 3600,
		IDToken:        "id",
	}}
	verifier := staticVerifier{req: &ciba.AuthenticationRequest{
		ClientID: "client",
		Scopes:   ciba.SpaceDelimitedArray{"openid"},
	}}
	provider, err := NewProvider(
		DefaultConfig("https://proxy.example.com"),
		storage.NewMemoryBank(),
		issuer,
		newRecordingChannel(),
		WithLogger(discardLogger()),
		WithVerifier(verifier),
		WithClock(clock.Now),
	)
	require.NoError(t, err)
	return provider, clock
}

func postForm(t *testing.T, router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestRouterBackchannelFlow(t *testing.T) {
	provider, clock := newTestProvider(t)
	router := provider.Router()

	w := postForm(t, router, "/CIBAEndPoint", url.Values{"request": {"signed"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var authRes ciba.AuthenticationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &authRes))
	assert.NotEmpty(t, authRes.AuthReqID)
	assert.Equal(t, 600, authRes.ExpiresIn)
	assert.Equal(t, 5, authRes.Interval)

	pollForm := url.Values{
		"grant_type":  {string(ciba.GrantTypeCIBA)},
		"auth_req_id": {authRes.AuthReqID},
	}

	w = postForm(t, router, "/TokenEndPoint", pollForm)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "authorization_pending", errorType(t, w))

	w = postJSON(t, router, "/DeviceEndPoint", &ciba.AuthenticationResult{
		AuthReqID: authRes.AuthReqID,
		Outcome:   ciba.OutcomeApproved,
		Subject:   "user",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	clock.Advance(6 * time.Second)
	w = postForm(t, router, "/TokenEndPoint", pollForm)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tokenRes ciba.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokenRes))
	assert.Equal(t, "access", tokenRes.AccessToken)

	clock.Advance(6 * time.Second)
	w = postForm(t, router, "/TokenEndPoint", pollForm)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_grant", errorType(t, w))
}

func TestRouterTokenErrors(t *testing.T) {
	provider, _ := newTestProvider(t)
	router := provider.Router()

	w := postForm(t, router, "/TokenEndPoint", url.Values{
		"grant_type":  {string(ciba.GrantTypeCode)},
		"auth_req_id": {"tx"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unsupported_grant_type", errorType(t, w))

	w = postForm(t, router, "/TokenEndPoint", url.Values{
		"grant_type":  {string(ciba.GrantTypeCIBA)},
		"auth_req_id": {"missing"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_grant", errorType(t, w))
}

func TestRouterRegistration(t *testing.T) {
	provider, _ := newTestProvider(t)
	router := provider.Router()

	w := postJSON(t, router, "/RegistrationEndPoint", &ClientRegistrationRequest{Name: "example rp"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var clientRes ClientRegistrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &clientRes))
	assert.NotEmpty(t, clientRes.ClientID)

	w = postJSON(t, router, "/UserRegistrationEndPoint", &UserRegistrationRequest{
		Subject:       "user",
		DeviceAddress: "https://device.example.com/challenge",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = postJSON(t, router, "/RegistrationEndPoint", &ClientRegistrationRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorType(t, w))
}

func TestRouterHealth(t *testing.T) {
	provider, _ := newTestProvider(t)
	router := provider.Router()

	for _, path := range []string{"/healthz", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
