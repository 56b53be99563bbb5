package reqid

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, id, got)

	_, err := uuid.Parse(id)
	require.NoError(t, err)

	_, ok = FromContext(context.Background())
	require.False(t, ok)
}

func TestTokensAreUniquePerRequest(t *testing.T) {
	const upstream = "3f1c6a8e-8f0e-4c38-9a57-2a5f0bd1f2c4"
	a, _ := WithID(context.Background(), upstream)
	b, _ := WithID(context.Background(), upstream)

	ta, ok := Token(a)
	require.True(t, ok)
	tb, ok := Token(b)
	require.True(t, ok)
	require.NotEqual(t, ta, tb)

	_, ok = Token(context.Background())
	require.False(t, ok)
}

func TestWithID(t *testing.T) {
	const upstream = "3f1c6a8e-8f0e-4c38-9a57-2a5f0bd1f2c4"
	ctx, id := WithID(context.Background(), upstream)
	require.Equal(t, upstream, id)
	got, _ := FromContext(ctx)
	require.Equal(t, upstream, got)

	_, id = WithID(context.Background(), "bad\nvalue")
	require.NotEqual(t, "bad\nvalue", id)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
}
