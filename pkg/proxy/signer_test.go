package proxy

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backchannelauth/ciba/pkg/ciba"
)

func TestJOSEIssuerMint(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	issuer, err := NewJOSEIssuer("https://proxy.example.com", key, "key1", time.Hour)
	require.NoError(t, err)

	req := &ciba.AuthenticationRequest{
		ClientID: "client",
		Scopes:   ciba.SpaceDelimitedArray{"openid", "profile"},
	}
	res := &ciba.AuthenticationResult{AuthReqID: "tx", Outcome: ciba.OutcomeApproved, Subject: "user"}

	material, err := issuer.Mint(context.Background(), "tx", req, res)
	require.NoError(t, err)
	assert.Equal(t, ciba.BearerToken, material.TokenType)
	assert.Equal(t, uint64(3600), material.TokenExpiresIn)
	assert.Empty(t, material.RefreshToken)

	parsed, err := jwt.ParseSigned(material.AccessToken)
	require.NoError(t, err)
	claims := jwt.Claims{}
	require.NoError(t, parsed.Claims(&key.PublicKey, &claims))
	assert.Equal(t, "https://proxy.example.com", claims.Issuer)
	assert.Equal(t, "user", claims.Subject)
	assert.Equal(t, jwt.Audience{"client"}, claims.Audience)
	assert.NotEmpty(t, claims.ID)
}

func TestJOSEIssuerMintRefreshToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	issuer, err := NewJOSEIssuer("https://proxy.example.com", key, "key1", time.Hour)
	require.NoError(t, err)

	req := &ciba.AuthenticationRequest{
		ClientID: "client",
		Scopes:   ciba.SpaceDelimitedArray{"openid", "offline_access"},
	}
	res := &ciba.AuthenticationResult{AuthReqID: "tx", Outcome: ciba.OutcomeApproved, Subject: "user"}

	material, err := issuer.Mint(context.Background(), "tx", req, res)
	require.NoError(t, err)
	assert.NotEmpty(t, material.RefreshToken)
}

func TestJWSVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, nil)
	require.NoError(t, err)

	signed, err := jwt.Signed(signer).Claims(map[string]any{
		"client_id": "client",
		"scope":     "openid profile",
	}).CompactSerialize()
	require.NoError(t, err)

	verifier := NewJWSVerifier(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: &key.PublicKey, Use: "sig", Algorithm: string(jose.RS256)},
	}})

	req, err := verifier.Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "client", req.ClientID)
	assert.Equal(t, ciba.SpaceDelimitedArray{"openid", "profile"}, req.Scopes)
}

func TestJWSVerifierRejectsWrongKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, nil)
	require.NoError(t, err)

	signed, err := jwt.Signed(signer).Claims(map[string]any{"client_id": "client"}).CompactSerialize()
	require.NoError(t, err)

	verifier := NewJWSVerifier(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: &otherKey.PublicKey, Use: "sig", Algorithm: string(jose.RS256)},
	}})

	_, err = verifier.Verify(context.Background(), signed)
	require.ErrorIs(t, err, ciba.ErrInvalidRequest())
}

func TestJWSVerifierRejectsGarbage(t *testing.T) {
	verifier := NewJWSVerifier(jose.JSONWebKeySet{})

	_, err := verifier.Verify(context.Background(), "not a jws")
	require.ErrorIs(t, err, ciba.ErrInvalidRequest())
}

func TestInsecureSkipVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, nil)
	require.NoError(t, err)

	signed, err := jwt.Signed(signer).Claims(map[string]any{"client_id": "client"}).CompactSerialize()
	require.NoError(t, err)

	req, err := InsecureSkipVerifier{}.Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "client", req.ClientID)
}
