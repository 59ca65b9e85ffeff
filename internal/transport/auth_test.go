package transport

import (
	"net/http"
	"net/url"
	"testing"
)

// TestNoAuth tests that NoAuth applies no authentication.
func TestNoAuth(t *testing.T) {
	auth := &NoAuth{}
	req := &http.Request{
		Header: make(http.Header),
	}

	auth.Apply(req)

	if len(req.Header) != 0 {
		t.Errorf("Expected no headers, got %d", len(req.Header))
	}
}

// TestBearerAuth tests Bearer token authentication.
func TestBearerAuth(t *testing.T) {
	auth := &BearerAuth{Token: "test-token"}
	req := &http.Request{
		Header: make(http.Header),
	}

	auth.Apply(req)

	authHeader := req.Header.Get("Authorization")
	expected := "Bearer test-token"
	if authHeader != expected {
		t.Errorf("Expected Authorization header '%s', got '%s'", expected, authHeader)
	}
}

// TestBearerAuthEmptyToken tests that an empty token sets nothing.
func TestBearerAuthEmptyToken(t *testing.T) {
	auth := &BearerAuth{}
	req := &http.Request{
		Header: make(http.Header),
	}

	auth.Apply(req)

	if req.Header.Get("Authorization") != "" {
		t.Error("Should not have Authorization header")
	}
}

// TestHeaderAuth tests custom header authentication.
func TestHeaderAuth(t *testing.T) {
	auth := &HeaderAuth{Header: "x-api-key", Value: "test-api-key"}
	req := &http.Request{
		Header: make(http.Header),
	}

	auth.Apply(req)

	headerValue := req.Header.Get("x-api-key")
	if headerValue != "test-api-key" {
		t.Errorf("Expected x-api-key header 'test-api-key', got '%s'", headerValue)
	}

	if req.Header.Get("Authorization") != "" {
		t.Error("Should not have Authorization header")
	}
}

// TestQueryAuth tests query parameter authentication.
func TestQueryAuth(t *testing.T) {
	auth := &QueryAuth{Param: "key", Value: "test-api-key"}

	reqURL, _ := url.Parse("https://example.com/api/clients?page=2")
	req := &http.Request{
		URL:    reqURL,
		Header: make(http.Header),
	}

	auth.Apply(req)

	query := req.URL.Query()
	if query.Get("key") != "test-api-key" {
		t.Errorf("Expected key query param 'test-api-key', got '%s'", query.Get("key"))
	}
	if query.Get("page") != "2" {
		t.Errorf("Existing query params should be preserved, got page='%s'", query.Get("page"))
	}
}

// TestQueryAuthNilURL tests that a nil URL is tolerated.
func TestQueryAuthNilURL(t *testing.T) {
	auth := &QueryAuth{Param: "key", Value: "v"}
	req := &http.Request{Header: make(http.Header)}

	auth.Apply(req)
}

// TestBearerWithKey tests the combined bearer and API key authenticator.
func TestBearerWithKey(t *testing.T) {
	auth := BearerWithKey("tok", "apikey", "anon-key")
	req := &http.Request{
		Header: make(http.Header),
	}

	auth.Apply(req)

	if got := req.Header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Expected bearer token, got '%s'", got)
	}
	if got := req.Header.Get("apikey"); got != "anon-key" {
		t.Errorf("Expected apikey header 'anon-key', got '%s'", got)
	}
}
