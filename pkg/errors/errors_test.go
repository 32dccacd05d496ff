package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublic(t *testing.T) {
	short := InsufficientStock("item-1", "FC-100M", "Fiber Cable", 2, 5)
	wrapped := fmt.Errorf("approve REQ-20260314-0001: %w", short)

	got := Public(wrapped)
	assert.Same(t, short, got)
	assert.Equal(t, http.StatusConflict, got.StatusCode)

	opaque := Public(fmt.Errorf("pq: relation \"ip_pools\" does not exist"))
	assert.Equal(t, http.StatusInternalServerError, opaque.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", opaque.Code)
	assert.NotContains(t, opaque.Message, "ip_pools")
}

func TestTokenErrorsAreUnauthorized(t *testing.T) {
	for _, err := range []*AppError{TokenExpired(), TokenInvalid()} {
		assert.True(t, Is(err, ErrUnauthorized))
		assert.Equal(t, http.StatusUnauthorized, err.StatusCode)
	}
	assert.Equal(t, "TOKEN_EXPIRED", TokenExpired().Code)
	assert.Equal(t, "TOKEN_INVALID", TokenInvalid().Code)
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("allocate: %w", PoolExhausted("pool-1", 6, 6))

	assert.True(t, Is(err, ErrPoolExhausted))
	assert.False(t, Is(err, ErrConflict))
	assert.Equal(t, "POOL_EXHAUSTED", Code(err))
	assert.Equal(t, "", Code(fmt.Errorf("plain")))
}
