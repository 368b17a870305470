package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/backchannelauth/ciba/pkg/ciba"
	httphelper "github.com/backchannelauth/ciba/pkg/http"
)

var allowAllOrigins = &cors.Options{
	AllowedOrigins: []string{"*"},
	AllowedHeaders: []string{"authorization", "content-type"},
	AllowedMethods: []string{http.MethodGet, http.MethodPost},
}

// Router builds the HTTP surface of the provider.
func (p *Provider) Router() chi.Router {
	router := chi.NewRouter()
	router.Use(cors.New(*allowAllOrigins).Handler)
	router.Use(logRequests(p.logger))

	router.Get("/healthz", p.healthHandler)
	router.Get("/ready", p.readyHandler)
	router.Post(p.config.AuthEndpoint.Relative(), p.authHandler)
	router.Post(p.config.TokenEndpoint.Relative(), p.tokenHandler)
	router.Post(p.config.ClientRegistrationEndpoint.Relative(), p.clientRegistrationHandler)
	router.Post(p.config.UserRegistrationEndpoint.Relative(), p.userRegistrationHandler)
	router.Post(p.config.DeviceEndpoint.Relative(), p.deviceHandler)
	return router
}

func (p *Provider) healthHandler(w http.ResponseWriter, r *http.Request) {
	httphelper.MarshalJSON(w, status{"ok"})
}

func (p *Provider) readyHandler(w http.ResponseWriter, r *http.Request) {
	if err := p.bank.Health(r.Context()); err != nil {
		httphelper.MarshalJSONWithStatus(w, status{"storage unreachable"}, http.StatusServiceUnavailable)
		return
	}
	httphelper.MarshalJSON(w, status{"ok"})
}

type status struct {
	Status string `json:"status"`
}

// authHandler accepts the signed authentication request, either as the
// `request` form parameter or as the raw body.
func (p *Provider) authHandler(w http.ResponseWriter, r *http.Request) {
	signedRequest, err := readSignedRequest(r)
	if err != nil {
		WriteError(w, r, err, p.logger)
		return
	}
	res, err := p.dispatcher.Dispatch(r.Context(), KindAuthRequest, signedRequest)
	if err != nil {
		WriteError(w, r, err, p.logger)
		return
	}
	httphelper.MarshalJSON(w, res)
}

func readSignedRequest(r *http.Request) (string, error) {
	if err := r.ParseForm(); err != nil {
		return "", ciba.ErrInvalidRequest().WithDescription("cannot parse form").WithParent(err)
	}
	if signed := r.PostForm.Get("request"); signed != "" {
		return signed, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", ciba.ErrInvalidRequest().WithDescription("cannot read body").WithParent(err)
	}
	return strings.TrimSpace(string(body)), nil
}

func (p *Provider) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, r, ciba.ErrInvalidRequest().WithDescription("cannot parse form").WithParent(err), p.logger)
		return
	}
	req := new(ciba.TokenRequest)
	if err := p.decoder.Decode(req, r.PostForm); err != nil {
		WriteError(w, r, ciba.ErrInvalidRequest().WithDescription("cannot parse request").WithParent(err), p.logger)
		return
	}
	res, err := p.dispatcher.Dispatch(r.Context(), KindTokenRequest, req)
	if err != nil {
		WriteError(w, r, err, p.logger)
		return
	}
	httphelper.MarshalJSON(w, res)
}

func (p *Provider) clientRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	req := new(ClientRegistrationRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		WriteError(w, r, ciba.ErrInvalidRequest().WithDescription("cannot parse request").WithParent(err), p.logger)
		return
	}
	res, err := p.dispatcher.Dispatch(r.Context(), KindClientRegistration, req)
	if err != nil {
		WriteError(w, r, err, p.logger)
		return
	}
	httphelper.MarshalJSONWithStatus(w, res, http.StatusCreated)
}

func (p *Provider) userRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	req := new(UserRegistrationRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		WriteError(w, r, ciba.ErrInvalidRequest().WithDescription("cannot parse request").WithParent(err), p.logger)
		return
	}
	res, err := p.dispatcher.Dispatch(r.Context(), KindUserRegistration, req)
	if err != nil {
		WriteError(w, r, err, p.logger)
		return
	}
	httphelper.MarshalJSONWithStatus(w, res, http.StatusCreated)
}

// deviceHandler receives the authentication device's verdict for a pending
// transaction.
func (p *Provider) deviceHandler(w http.ResponseWriter, r *http.Request) {
	res := new(ciba.AuthenticationResult)
	if err := json.NewDecoder(r.Body).Decode(res); err != nil {
		WriteError(w, r, ciba.ErrInvalidRequest().WithDescription("cannot parse request").WithParent(err), p.logger)
		return
	}
	if err := p.device.CompleteAuthentication(r.Context(), res); err != nil {
		WriteError(w, r, err, p.logger)
		return
	}
	httphelper.MarshalJSON(w, status{"recorded"})
}
