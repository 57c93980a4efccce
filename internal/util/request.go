package util

import "github.com/google/uuid"

// GenerateRequestID returns a short correlation ID attached to every
// access-log record and proxied request, so an operator can trace one
// inbound connection across the front proxy's logs and the history sink.
func GenerateRequestID() string {
	return uuid.NewString()
}
