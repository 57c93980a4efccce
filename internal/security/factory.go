package security

import (
	"net/http"

	"github.com/hibernaut/hibernaut/internal/config"
	"github.com/hibernaut/hibernaut/internal/core/ports"
	"github.com/hibernaut/hibernaut/internal/logger"
)

// Services wires the dashboard API's authentication and hardening
// validators into a single chain.
type Services struct {
	APIKey    *APIKeyValidator
	RateLimit *RateLimitValidator
	Size      *SizeValidator
	Chain     *ports.SecurityChain
}

// NewServices creates and wires the validators so they're easy to chain
// into the dashboard's middleware stack.
func NewServices(cfg *config.Config, log *logger.StyledLogger) *Services {
	apiKey := NewAPIKeyValidator(cfg.APIKeySHA256)
	rateLimit := NewRateLimitValidator(cfg.Server.RateLimits, log)
	size := NewSizeValidator(cfg.Server.RequestLimits, log)

	chain := ports.NewSecurityChain(rateLimit, size, apiKey)

	return &Services{
		APIKey:    apiKey,
		RateLimit: rateLimit,
		Size:      size,
		Chain:     chain,
	}
}

func (s *Services) Stop() {
	if s.RateLimit != nil {
		s.RateLimit.Stop()
	}
}

// CreateMiddleware composes rate limiting, size limiting, then API-key
// authentication (cheapest checks first) into a single http.Handler
// wrapper for the dashboard API.
func (s *Services) CreateMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return s.RateLimit.CreateMiddleware()(
			s.Size.CreateMiddleware()(
				s.APIKey.CreateMiddleware()(next),
			),
		)
	}
}
