package ports

import (
	"context"
	"time"
)

// SecurityRequest is the subject of a SecurityValidator check: the
// dashboard-API request attributes a validator cares about, carried as a
// plain struct so a validator never needs the live *http.Request (and so
// tests can construct one without a socket).
type SecurityRequest struct {
	ClientID      string
	Endpoint      string
	Method        string
	BodySize      int64
	HeaderSize    int64
	Headers       map[string][]string
	IsHealthCheck bool
}

// SecurityResult is a SecurityValidator's verdict, carrying enough detail
// to populate rate-limit response headers even when Allowed is true.
type SecurityResult struct {
	Allowed    bool
	Reason     string
	RetryAfter int
	RateLimit  int
	Remaining  int
	ResetTime  time.Time
}

// SecurityViolation is recorded whenever a validator rejects a request.
type SecurityViolation struct {
	ClientID      string
	ViolationType string
	Endpoint      string
	Size          int64
	Timestamp     time.Time
}

// SecurityValidator is one link of a SecurityChain: size limiting, rate
// limiting, or (via internal/security.APIKeyValidator) authentication.
type SecurityValidator interface {
	Validate(ctx context.Context, req SecurityRequest) (SecurityResult, error)
	Name() string
}

// SecurityChain runs validators in order, short-circuiting on the first
// rejection, per spec.md §6's dashboard-API request path.
type SecurityChain struct {
	validators []SecurityValidator
}

func NewSecurityChain(validators ...SecurityValidator) *SecurityChain {
	return &SecurityChain{validators: validators}
}

func (sc *SecurityChain) Validate(ctx context.Context, req SecurityRequest) (SecurityResult, error) {
	for _, validator := range sc.validators {
		result, err := validator.Validate(ctx, req)
		if err != nil {
			return result, err
		}
		if !result.Allowed {
			return result, nil
		}
	}
	return SecurityResult{Allowed: true}, nil
}

func (sc *SecurityChain) GetValidators() []SecurityValidator {
	return sc.validators
}
