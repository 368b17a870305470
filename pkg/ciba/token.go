package ciba

// TokenResponse is the claim set returned on a successful poll.
//
// RefreshToken is included if and only if the issued token material carries
// one; the conditional inclusion is an observable contract of the token
// endpoint, relied on by clients to decide whether the grant is refreshable.
type TokenResponse struct {
	AccessToken    string `json:"access_token"`
	TokenType      string `json:"token_type"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	TokenExpiresIn uint64 `json:"token_expires_in"`
	IDToken        string `json:"id_token"`
}

const BearerToken = "Bearer"
