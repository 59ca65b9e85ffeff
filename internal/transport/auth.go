package transport

import (
	"net/http"
)

// Authenticator applies authentication to HTTP requests.
type Authenticator interface {
	Apply(req *http.Request)
}

// NoAuth implements no authentication.
type NoAuth struct{}

// Apply implements the Authenticator interface for NoAuth.
func (a *NoAuth) Apply(_ *http.Request) {
	// No authentication applied
}

// BearerAuth implements Bearer token authentication.
type BearerAuth struct {
	Token string
}

// Apply implements the Authenticator interface for BearerAuth.
func (a *BearerAuth) Apply(req *http.Request) {
	if a.Token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
}

// HeaderAuth implements custom header authentication, such as an API key header.
type HeaderAuth struct {
	Header string
	Value  string
}

// Apply implements the Authenticator interface for HeaderAuth.
func (a *HeaderAuth) Apply(req *http.Request) {
	if a.Header == "" || a.Value == "" {
		return
	}
	req.Header.Set(a.Header, a.Value)
}

// QueryAuth implements API key as query parameter authentication.
type QueryAuth struct {
	Param string
	Value string
}

// Apply implements the Authenticator interface for QueryAuth.
func (a *QueryAuth) Apply(req *http.Request) {
	if req.URL == nil || a.Value == "" {
		return
	}

	query := req.URL.Query()
	query.Set(a.Param, a.Value)
	req.URL.RawQuery = query.Encode()
}

// ChainAuth applies several authenticators in order. The remote CRM and the
// store both expect a bearer token alongside an API key header.
type ChainAuth []Authenticator

// Apply implements the Authenticator interface for ChainAuth.
func (a ChainAuth) Apply(req *http.Request) {
	for _, auth := range a {
		if auth != nil {
			auth.Apply(req)
		}
	}
}

// BearerWithKey returns the bearer-plus-API-key combination used by both endpoints.
func BearerWithKey(token, header, key string) Authenticator {
	return ChainAuth{
		&BearerAuth{Token: token},
		&HeaderAuth{Header: header, Value: key},
	}
}
