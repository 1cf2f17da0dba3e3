package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("round trips a request ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	})

	t.Run("returns empty string when absent", func(t *testing.T) {
		assert.Equal(t, "", RequestIDFromContext(context.Background()))
	})
}

func TestSessionIDContext(t *testing.T) {
	t.Run("round trips a session ID", func(t *testing.T) {
		ctx := WithSessionID(context.Background(), "sess-456")
		assert.Equal(t, "sess-456", SessionIDFromContext(ctx))
	})

	t.Run("returns empty string when absent", func(t *testing.T) {
		assert.Equal(t, "", SessionIDFromContext(context.Background()))
	})

	t.Run("request and session IDs do not collide", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-1")
		ctx = WithSessionID(ctx, "sess-1")

		assert.Equal(t, "req-1", RequestIDFromContext(ctx))
		assert.Equal(t, "sess-1", SessionIDFromContext(ctx))
	})
}
