package proxy

import (
	"context"
	"encoding/json"

	"github.com/go-jose/go-jose/v3"

	"github.com/backchannelauth/ciba/pkg/ciba"
)

// SignatureVerifier checks an incoming signed authentication request and
// returns its verified claims.
type SignatureVerifier interface {
	Verify(ctx context.Context, signedRequest string) (*ciba.AuthenticationRequest, error)
}

// JWSVerifier verifies the request signature against a static key set of
// registered client keys.
type JWSVerifier struct {
	keys jose.JSONWebKeySet
}

func NewJWSVerifier(keys jose.JSONWebKeySet) *JWSVerifier {
	return &JWSVerifier{keys: keys}
}

func (v *JWSVerifier) Verify(ctx context.Context, signedRequest string) (*ciba.AuthenticationRequest, error) {
	jws, err := jose.ParseSigned(signedRequest)
	if err != nil {
		return nil, ciba.ErrInvalidRequest().WithDescription("cannot parse signed request").WithParent(err)
	}

	payload, err := v.verify(jws)
	if err != nil {
		return nil, err
	}

	req := new(ciba.AuthenticationRequest)
	if err := json.Unmarshal(payload, req); err != nil {
		return nil, ciba.ErrInvalidRequest().WithDescription("cannot parse request claims").WithParent(err)
	}
	return req, nil
}

func (v *JWSVerifier) verify(jws *jose.JSONWebSignature) ([]byte, error) {
	if len(jws.Signatures) == 0 {
		return nil, ciba.ErrInvalidRequest().WithDescription("request is not signed")
	}
	keyID := jws.Signatures[0].Header.KeyID

	candidates := v.keys.Keys
	if keyID != "" {
		candidates = v.keys.Key(keyID)
	}
	for _, key := range candidates {
		if payload, err := jws.Verify(key); err == nil {
			return payload, nil
		}
	}
	return nil, ciba.ErrInvalidRequest().WithDescription("signature verification failed")
}

// InsecureSkipVerifier decodes the request claims without checking the
// signature. Development use only; never run it facing untrusted clients.
type InsecureSkipVerifier struct{}

func (InsecureSkipVerifier) Verify(ctx context.Context, signedRequest string) (*ciba.AuthenticationRequest, error) {
	jws, err := jose.ParseSigned(signedRequest)
	if err != nil {
		return nil, ciba.ErrInvalidRequest().WithDescription("cannot parse signed request").WithParent(err)
	}
	req := new(ciba.AuthenticationRequest)
	if err := json.Unmarshal(jws.UnsafePayloadWithoutVerification(), req); err != nil {
		return nil, ciba.ErrInvalidRequest().WithDescription("cannot parse request claims").WithParent(err)
	}
	return req, nil
}
