package ciba

// AuthenticationRequest represents a request to the backchannel
// authentication endpoint as defined in the CIBA (Client Initiated
// Backchannel Authentication) specification.
//
// Note: the request reaches the proxy as a signed JWT; this struct holds the
// verified claims. Signature verification is the job of the
// SignatureVerifier collaborator, not of this package.
type AuthenticationRequest struct {
	// Scopes is a space-delimited list of requested scopes
	Scopes SpaceDelimitedArray `json:"scope" schema:"scope"`

	// ClientID is the OAuth 2.0 Client Identifier
	ClientID string `json:"client_id" schema:"client_id"`

	// LoginHint is a hint to the authorization server about the login
	// identifier the end-user might use to log in
	LoginHint string `json:"login_hint,omitempty" schema:"login_hint,omitempty"`

	// BindingMessage is a human-readable identifier or message intended to be
	// displayed on both the consumption device and the authentication device
	// to ensure the user is approving the correct request.
	BindingMessage string `json:"binding_message,omitempty" schema:"binding_message,omitempty"`

	// UserCode is a secret code used to authorize the backchannel
	// authentication request
	UserCode string `json:"user_code,omitempty" schema:"user_code,omitempty"`

	// RequestedExpiry allows the client to request the expires_in value for
	// the auth_req_id the server will return (in seconds)
	RequestedExpiry *int `json:"requested_expiry,omitempty" schema:"requested_expiry,omitempty"`

	// RequestedInterval allows the client to request the minimum polling
	// interval for the auth_req_id (in seconds)
	RequestedInterval *int `json:"requested_interval,omitempty" schema:"requested_interval,omitempty"`
}

// AuthenticationResponse represents the successful response from the
// backchannel authentication endpoint. The client polls the token endpoint
// with the returned auth_req_id.
type AuthenticationResponse struct {
	// AuthReqID is a unique identifier to identify the authentication request
	// made by the client
	AuthReqID string `json:"auth_req_id"`

	// ExpiresIn is the expiration time of the auth_req_id in seconds
	ExpiresIn int `json:"expires_in"`

	// Interval is the minimum amount of time in seconds that the client
	// should wait between polling requests to the token endpoint
	Interval int `json:"interval"`
}

// AuthenticationOutcome is the decision deposited by the out-of-band
// authentication device for a pending transaction.
type AuthenticationOutcome string

const (
	OutcomeApproved AuthenticationOutcome = "approved"
	OutcomeDenied   AuthenticationOutcome = "denied"
)

// AuthenticationResult is the authResponse artifact of a transaction,
// written at most once by the device collaborator.
type AuthenticationResult struct {
	AuthReqID string                `json:"auth_req_id" schema:"auth_req_id"`
	Outcome   AuthenticationOutcome `json:"outcome" schema:"outcome"`

	// Subject is the authenticated end-user identifier, set on approval.
	Subject string `json:"sub,omitempty" schema:"sub,omitempty"`
}
