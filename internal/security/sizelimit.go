package security

import (
	"context"
	"fmt"
	"net/http"

	units "github.com/docker/go-units"
	"github.com/hibernaut/hibernaut/internal/config"
	"github.com/hibernaut/hibernaut/internal/core/ports"
	"github.com/hibernaut/hibernaut/internal/logger"
)

const defaultProtocol = "HTTP/1.1"

// SizeValidator enforces request size limits for headers and body content
// on the dashboard API. It checks early in the chain to avoid wasting
// resources on oversized requests. Thread-safe, it carries no mutable
// state.
type SizeValidator struct {
	logger        *logger.StyledLogger
	maxBodySize   int64
	maxHeaderSize int64
}

func NewSizeValidator(limits config.ServerRequestLimits, log *logger.StyledLogger) *SizeValidator {
	return &SizeValidator{
		maxBodySize:   limits.MaxBodySize,
		maxHeaderSize: limits.MaxHeaderSize,
		logger:        log,
	}
}

func (sv *SizeValidator) Name() string { return "size_limit" }

func (sv *SizeValidator) Validate(_ context.Context, req ports.SecurityRequest) (ports.SecurityResult, error) {
	if err := sv.validateHeaderSize(req); err != nil {
		return ports.SecurityResult{Allowed: false, Reason: fmt.Sprintf("request headers too large: %v", err)}, nil
	}
	if err := sv.validateBodySize(req); err != nil {
		return ports.SecurityResult{Allowed: false, Reason: fmt.Sprintf("request body too large: %v", err)}, nil
	}
	return ports.SecurityResult{Allowed: true}, nil
}

func (sv *SizeValidator) validateHeaderSize(req ports.SecurityRequest) error {
	if sv.maxHeaderSize <= 0 {
		return nil
	}
	total := estimateHeaderSize(req.Headers, req.Method, req.Endpoint, defaultProtocol)
	if total > sv.maxHeaderSize {
		return fmt.Errorf("header size %s exceeds limit %s", units.HumanSize(float64(total)), units.HumanSize(float64(sv.maxHeaderSize)))
	}
	return nil
}

func (sv *SizeValidator) validateBodySize(req ports.SecurityRequest) error {
	if sv.maxBodySize <= 0 {
		return nil
	}
	if req.BodySize > sv.maxBodySize {
		return fmt.Errorf("content-length %s exceeds limit %s", units.HumanSize(float64(req.BodySize)), units.HumanSize(float64(sv.maxBodySize)))
	}
	return nil
}

// CreateMiddleware validates the live request and, when the body limit is
// set, wraps the body in an http.MaxBytesReader so a lying Content-Length
// header cannot bypass the limit.
func (sv *SizeValidator) CreateMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := ports.SecurityRequest{
				Endpoint:   r.URL.Path,
				Method:     r.Method,
				BodySize:   r.ContentLength,
				HeaderSize: estimateHeaderSize(r.Header, r.Method, r.URL.RequestURI(), r.Proto),
				Headers:    r.Header,
			}

			result, err := sv.Validate(r.Context(), req)
			if err != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			if !result.Allowed {
				sv.logger.Warn("request rejected", "reason", result.Reason, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				if sv.maxBodySize > 0 && r.ContentLength > sv.maxBodySize {
					http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				} else {
					http.Error(w, "request headers too large", http.StatusRequestHeaderFieldsTooLarge)
				}
				return
			}

			if sv.maxBodySize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, sv.maxBodySize)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func estimateHeaderSize(headers http.Header, method, uri, proto string) int64 {
	var total int64
	for name, values := range headers {
		total += int64(len(name))
		for _, v := range values {
			total += int64(len(v))
		}
		total += int64(len(values) * 4) // header overhead
	}
	total += int64(len(method) + len(uri) + len(proto) + 4) // request line
	return total
}
