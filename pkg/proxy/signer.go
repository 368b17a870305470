package proxy

import (
	"context"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/google/uuid"

	"github.com/backchannelauth/ciba/pkg/ciba"
)

// offlineAccessScope marks a request as refreshable; only then does the
// minted material carry a refresh token.
const offlineAccessScope = "offline_access"

// JOSEIssuer is the default TokenIssuer. It signs JWT access and ID tokens
// with a single RSA key.
type JOSEIssuer struct {
	issuer   string
	signer   jose.Signer
	validity time.Duration
	clock    func() time.Time
}

func NewJOSEIssuer(issuer string, key *rsa.PrivateKey, keyID string, validity time.Duration) (*JOSEIssuer, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyID),
	)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}
	if validity <= 0 {
		validity = time.Hour
	}
	return &JOSEIssuer{
		issuer:   issuer,
		signer:   signer,
		validity: validity,
		clock:    time.Now,
	}, nil
}

func (i *JOSEIssuer) Mint(ctx context.Context, authReqID string, req *ciba.AuthenticationRequest, res *ciba.AuthenticationResult) (*ciba.TokenResponse, error) {
	now := i.clock()
	claims := jwt.Claims{
		Issuer:    i.issuer,
		Subject:   res.Subject,
		Audience:  jwt.Audience{req.ClientID},
		Expiry:    jwt.NewNumericDate(now.Add(i.validity)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}

	accessToken, err := jwt.Signed(i.signer).
		Claims(claims).
		Claims(map[string]any{"scope": req.Scopes.String()}).
		CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	idToken, err := jwt.Signed(i.signer).
		Claims(claims).
		Claims(map[string]any{"auth_req_id": authReqID}).
		CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("signing id token: %w", err)
	}

	material := &ciba.TokenResponse{
		AccessToken:    accessToken,
		TokenType:      ciba.BearerToken,
		TokenExpiresIn: uint64(i.validity.Seconds()),
		IDToken:        idToken,
	}
	for _, scope := range req.Scopes {
		if scope == offlineAccessScope {
			material.RefreshToken = uuid.NewString()
			break
		}
	}
	return material, nil
}
