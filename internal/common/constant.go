package common

const (
	// AuthorizationHeaderName carries the session token on inbound requests.
	AuthorizationHeaderName = "Authorization"

	// BearerScheme is the only accepted authorization scheme. Matching is
	// case-sensitive.
	BearerScheme = "Bearer"
)
