package proxy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/zitadel/schema"
	"go.opentelemetry.io/otel"

	httphelper "github.com/backchannelauth/ciba/pkg/http"
	"github.com/backchannelauth/ciba/pkg/storage"
)

var tracer = otel.Tracer("github.com/backchannelauth/ciba/pkg/proxy")

const (
	defaultAuthEndpoint             = "CIBAEndPoint"
	defaultTokenEndpoint            = "TokenEndPoint"
	defaultClientRegistrationPoint  = "RegistrationEndPoint"
	defaultUserRegistrationEndpoint = "UserRegistrationEndPoint"
	defaultDeviceEndpoint           = "DeviceEndPoint"
)

// Config carries the static parameters of a Provider.
type Config struct {
	Issuer string

	AuthEndpoint               Endpoint
	TokenEndpoint              Endpoint
	ClientRegistrationEndpoint Endpoint
	UserRegistrationEndpoint   Endpoint
	DeviceEndpoint             Endpoint

	Policy AuthRequestPolicy
}

func DefaultConfig(issuer string) *Config {
	return &Config{
		Issuer:                     issuer,
		AuthEndpoint:               defaultAuthEndpoint,
		TokenEndpoint:              defaultTokenEndpoint,
		ClientRegistrationEndpoint: defaultClientRegistrationPoint,
		UserRegistrationEndpoint:   defaultUserRegistrationEndpoint,
		DeviceEndpoint:             defaultDeviceEndpoint,
		Policy:                     DefaultAuthRequestPolicy(),
	}
}

func (c *Config) validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("proxy: issuer missing")
	}
	for _, e := range []Endpoint{
		c.AuthEndpoint,
		c.TokenEndpoint,
		c.ClientRegistrationEndpoint,
		c.UserRegistrationEndpoint,
		c.DeviceEndpoint,
	} {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Provider assembles the transaction engine with its collaborators and
// exposes it as an http.Handler. All collaborators are injected; nothing is
// read from process-global state, so several providers can live in one
// process and tests can swap any part.
type Provider struct {
	config     *Config
	bank       storage.Bank
	dispatcher *Dispatcher
	device     *DeviceResponseHandler
	identity   IdentityStore
	logger     *slog.Logger
	decoder    httphelper.Decoder

	verifier SignatureVerifier
	issuer   TokenIssuer
	channel  DeviceChannel
	clock    func() time.Time
}

type Option func(p *Provider) error

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) error {
		p.logger = logger
		return nil
	}
}

func WithVerifier(verifier SignatureVerifier) Option {
	return func(p *Provider) error {
		p.verifier = verifier
		return nil
	}
}

func WithTokenIssuer(issuer TokenIssuer) Option {
	return func(p *Provider) error {
		p.issuer = issuer
		return nil
	}
}

func WithDeviceChannel(channel DeviceChannel) Option {
	return func(p *Provider) error {
		p.channel = channel
		return nil
	}
}

func WithIdentityStore(store IdentityStore) Option {
	return func(p *Provider) error {
		p.identity = store
		return nil
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Provider) error {
		p.clock = clock
		return nil
	}
}

func NewProvider(config *Config, bank storage.Bank, issuer TokenIssuer, channel DeviceChannel, opts ...Option) (*Provider, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if bank == nil {
		return nil, fmt.Errorf("proxy: bank missing")
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	p := &Provider{
		config:     config,
		bank:       bank,
		dispatcher: NewDispatcher(),
		identity:   NewMemoryIdentityStore(),
		logger:     slog.Default(),
		decoder:    decoder,
		issuer:     issuer,
		channel:    channel,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.verifier == nil {
		p.verifier = InsecureSkipVerifier{}
		p.logger.Warn("no signature verifier configured, request signatures are not checked")
	}

	authHandler := NewAuthRequestHandler(p.bank, p.verifier, p.channel, p.config.Policy, p.logger)
	authHandler.clock = p.clock
	tokenHandler := NewTokenRequestHandler(p.bank, p.issuer, p.logger)
	tokenHandler.clock = p.clock
	p.device = NewDeviceResponseHandler(p.bank, p.logger)
	p.device.clock = p.clock

	for _, h := range []Handler{
		authHandler,
		tokenHandler,
		NewClientRegistrationHandler(p.identity, p.logger),
		NewUserRegistrationHandler(p.identity, p.logger),
	} {
		if err := p.dispatcher.Register(h); err != nil {
			return nil, err
		}
	}

	storage.RegisterAudit(p.bank, p.logger)

	return p, nil
}

func (p *Provider) Dispatcher() *Dispatcher {
	return p.dispatcher
}

func (p *Provider) Storage() storage.Bank {
	return p.bank
}

func (p *Provider) Logger() *slog.Logger {
	return p.logger
}
