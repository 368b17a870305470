package proxy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-jose/go-jose/v3"
	"github.com/google/uuid"

	"github.com/backchannelauth/ciba/pkg/ciba"
)

// ClientRegistrationRequest registers a relying party and the key set it
// will sign authentication requests with.
type ClientRegistrationRequest struct {
	Name string              `json:"client_name" schema:"client_name"`
	JWKS *jose.JSONWebKeySet `json:"jwks,omitempty" schema:"-"`
}

type ClientRegistrationResponse struct {
	ClientID string `json:"client_id"`
	Name     string `json:"client_name"`
}

// UserRegistrationRequest binds an end-user identifier to a device channel
// address, so login hints can be resolved to a reachable device.
type UserRegistrationRequest struct {
	Subject       string `json:"sub" schema:"sub"`
	DeviceAddress string `json:"device_address" schema:"device_address"`
}

type UserRegistrationResponse struct {
	Subject string `json:"sub"`
}

// IdentityStore keeps the registered clients and users.
type IdentityStore interface {
	RegisterClient(ctx context.Context, req *ClientRegistrationRequest) (*ClientRegistrationResponse, error)
	RegisterUser(ctx context.Context, req *UserRegistrationRequest) (*UserRegistrationResponse, error)
	ClientKeys(ctx context.Context) jose.JSONWebKeySet
}

// MemoryIdentityStore is the in-process IdentityStore.
type MemoryIdentityStore struct {
	mu      sync.RWMutex
	clients map[string]*ClientRegistrationRequest
	users   map[string]*UserRegistrationRequest
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		clients: make(map[string]*ClientRegistrationRequest),
		users:   make(map[string]*UserRegistrationRequest),
	}
}

func (s *MemoryIdentityStore) RegisterClient(ctx context.Context, req *ClientRegistrationRequest) (*ClientRegistrationResponse, error) {
	if req.Name == "" {
		return nil, ciba.ErrInvalidRequest().WithDescription("client_name missing")
	}
	clientID := uuid.NewString()
	s.mu.Lock()
	s.clients[clientID] = req
	s.mu.Unlock()
	return &ClientRegistrationResponse{ClientID: clientID, Name: req.Name}, nil
}

func (s *MemoryIdentityStore) RegisterUser(ctx context.Context, req *UserRegistrationRequest) (*UserRegistrationResponse, error) {
	if req.Subject == "" {
		return nil, ciba.ErrInvalidRequest().WithDescription("sub missing")
	}
	s.mu.Lock()
	s.users[req.Subject] = req
	s.mu.Unlock()
	return &UserRegistrationResponse{Subject: req.Subject}, nil
}

func (s *MemoryIdentityStore) ClientKeys(ctx context.Context) jose.JSONWebKeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var set jose.JSONWebKeySet
	for _, client := range s.clients {
		if client.JWKS != nil {
			set.Keys = append(set.Keys, client.JWKS.Keys...)
		}
	}
	return set
}

// ClientRegistrationHandler serves client registration through the
// dispatcher.
type ClientRegistrationHandler struct {
	store  IdentityStore
	logger *slog.Logger
}

func NewClientRegistrationHandler(store IdentityStore, logger *slog.Logger) *ClientRegistrationHandler {
	return &ClientRegistrationHandler{store: store, logger: logger}
}

func (h *ClientRegistrationHandler) Kind() RequestKind {
	return KindClientRegistration
}

func (h *ClientRegistrationHandler) Handle(ctx context.Context, req any) (any, error) {
	registration, ok := req.(*ClientRegistrationRequest)
	if !ok {
		return nil, ciba.ErrInvalidRequest().WithDescription("client registration request expected")
	}
	res, err := h.store.RegisterClient(ctx, registration)
	if err != nil {
		return nil, err
	}
	h.logger.InfoContext(ctx, "client registered", "client_id", res.ClientID)
	return res, nil
}

// UserRegistrationHandler serves user registration through the dispatcher.
type UserRegistrationHandler struct {
	store  IdentityStore
	logger *slog.Logger
}

func NewUserRegistrationHandler(store IdentityStore, logger *slog.Logger) *UserRegistrationHandler {
	return &UserRegistrationHandler{store: store, logger: logger}
}

func (h *UserRegistrationHandler) Kind() RequestKind {
	return KindUserRegistration
}

func (h *UserRegistrationHandler) Handle(ctx context.Context, req any) (any, error) {
	registration, ok := req.(*UserRegistrationRequest)
	if !ok {
		return nil, ciba.ErrInvalidRequest().WithDescription("user registration request expected")
	}
	res, err := h.store.RegisterUser(ctx, registration)
	if err != nil {
		return nil, err
	}
	h.logger.InfoContext(ctx, "user registered", "sub", res.Subject)
	return res, nil
}
