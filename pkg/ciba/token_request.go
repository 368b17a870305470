package ciba

type GrantType string

const (
	// GrantTypeCIBA defines the grant_type `urn:openid:params:grant-type:ciba`
	// used when polling the token endpoint for a backchannel authentication
	GrantTypeCIBA GrantType = "urn:openid:params:grant-type:ciba"

	// GrantTypeCode defines the grant_type `authorization_code`; it is not
	// served by the proxy and is only known so it can be rejected by name
	GrantTypeCode GrantType = "authorization_code"
)

// TokenRequest represents a token request using the CIBA grant type.
// The client polls the token endpoint with the auth_req_id until the
// authentication reaches a terminal outcome.
type TokenRequest struct {
	// GrantType must be urn:openid:params:grant-type:ciba
	GrantType GrantType `json:"grant_type" schema:"grant_type"`

	// AuthReqID is the unique identifier received from the backchannel
	// authentication endpoint
	AuthReqID string `json:"auth_req_id" schema:"auth_req_id"`
}
