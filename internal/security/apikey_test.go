package security

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestAPIKeyValidator_DisabledWhenHashEmpty(t *testing.T) {
	v := NewAPIKeyValidator("")
	require.False(t, v.Enabled(), "expected validator to be disabled with an empty hash")
	assert.True(t, v.Check("anything"), "a disabled validator must accept every key")
}

func TestAPIKeyValidator_Check(t *testing.T) {
	v := NewAPIKeyValidator(sha256Hex("s3cret"))

	assert.True(t, v.Check("s3cret"), "expected the correct key to pass")
	assert.False(t, v.Check("wrong"), "expected an incorrect key to fail")
	assert.False(t, v.Check(""), "expected an empty key to fail when enabled")
}

func TestAPIKeyValidator_Middleware(t *testing.T) {
	v := NewAPIKeyValidator(sha256Hex("s3cret"))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := v.CreateMiddleware()(next)

	req := httptest.NewRequest(http.MethodGet, "/hibernator-api/services", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "expected 401 without a key")

	req.Header.Set("x-api-key", "s3cret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "expected 200 with a valid key")
}
