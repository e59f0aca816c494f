package server

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"http://localhost:8080", "http://localhost:8080", true},
		{"HTTPS://Example.COM", "https://example.com", true},
		{"example.com", "", false},
		{"://bad", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := normalizeOrigin(tt.in)
		if ok != tt.valid || got != tt.want {
			t.Errorf("normalizeOrigin(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.valid)
		}
	}
}

func TestOriginPolicyAllowList(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost:8080", " ", "bogus"}, zerolog.Nop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://LOCALHOST:8080")
	if !policy.checkOrigin(r) {
		t.Error("configured origin was rejected")
	}

	r.Header.Set("Origin", "http://evil.example")
	if policy.checkOrigin(r) {
		t.Error("unconfigured origin was allowed")
	}

	r.Header.Del("Origin")
	if policy.checkOrigin(r) {
		t.Error("missing origin header was allowed")
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	policy := newOriginPolicy([]string{"*"}, zerolog.Nop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://anywhere.example")
	if !policy.checkOrigin(r) {
		t.Error("wildcard policy rejected an origin")
	}
}
