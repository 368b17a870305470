package proxy

import (
	"context"

	"github.com/backchannelauth/ciba/pkg/ciba"
)

// TokenIssuer mints the token material for an approved transaction.
// It is an external collaborator of the state engine; the engine only
// guarantees that Mint runs at most once per auth_req_id.
type TokenIssuer interface {
	Mint(ctx context.Context, authReqID string, req *ciba.AuthenticationRequest, res *ciba.AuthenticationResult) (*ciba.TokenResponse, error)
}

// CreateTokenResponse assembles the claim set returned to the polling
// client. refresh_token is included if and only if the stored material
// carries one.
func CreateTokenResponse(material *ciba.TokenResponse) *ciba.TokenResponse {
	response := &ciba.TokenResponse{
		AccessToken:    material.AccessToken,
		TokenType:      material.TokenType,
		TokenExpiresIn: material.TokenExpiresIn,
		IDToken:        material.IDToken,
	}
	if material.RefreshToken != "" {
		response.RefreshToken = material.RefreshToken
	}
	return response
}
