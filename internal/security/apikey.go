package security

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/hibernaut/hibernaut/internal/core/domain"
	"github.com/hibernaut/hibernaut/internal/core/ports"
)

// APIKeyValidator implements ports.SecurityValidator for spec.md §6's
// dashboard-API authentication: a single SHA-256-hashed key compared in
// constant time against the x-api-key request header. An empty configured
// hash disables authentication entirely, matching spec.md's "auth is
// optional" wording.
type APIKeyValidator struct {
	keySHA256Hex string
}

func NewAPIKeyValidator(keySHA256Hex string) *APIKeyValidator {
	return &APIKeyValidator{keySHA256Hex: keySHA256Hex}
}

func (v *APIKeyValidator) Name() string { return "api_key" }

func (v *APIKeyValidator) Enabled() bool { return v.keySHA256Hex != "" }

// Check hashes candidate and compares it in constant time against the
// configured digest. It does not implement ports.SecurityValidator
// directly (it needs the raw header value, not a SecurityRequest), so
// CreateMiddleware below is the one the dashboard actually chains.
func (v *APIKeyValidator) Check(candidate string) bool {
	if !v.Enabled() {
		return true
	}
	if candidate == "" {
		return false
	}
	sum := sha256.Sum256([]byte(candidate))
	got := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(v.keySHA256Hex)) == 1
}

// Validate implements ports.SecurityValidator so APIKeyValidator can sit
// in the same ports.SecurityChain as the rate/size validators.
func (v *APIKeyValidator) Validate(_ context.Context, req ports.SecurityRequest) (ports.SecurityResult, error) {
	if v.Check(req.ClientID) {
		return ports.SecurityResult{Allowed: true}, nil
	}
	return ports.SecurityResult{Allowed: false, Reason: "invalid or missing api key"}, nil
}

// CreateMiddleware rejects requests lacking a valid x-api-key header,
// mapping failure to domain.ErrAuthFailed's 401 per spec.md §6.
func (v *APIKeyValidator) CreateMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !v.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.Check(r.Header.Get("x-api-key")) {
				http.Error(w, domain.ErrAuthFailed.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
