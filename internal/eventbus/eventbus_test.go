package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ n int }
type pong struct{}

func withBus(t *testing.T) *Bus {
	t.Helper()
	b := New()
	Use(b)
	t.Cleanup(func() { Use(nil) })
	return b
}

func TestPublishSubscribe(t *testing.T) {
	b := withBus(t)

	var got []int
	unsubA := Subscribe(func(ctx context.Context, e ping) { got = append(got, e.n) })
	unsubB := Subscribe(func(ctx context.Context, e ping) { got = append(got, e.n*10) })
	require.Equal(t, 2, Len[ping](b))
	require.Equal(t, 0, Len[pong](b))

	Publish(context.Background(), ping{n: 1})
	Publish(context.Background(), pong{})
	require.Equal(t, []int{1, 10}, got)

	unsubA()
	unsubA()
	Publish(context.Background(), ping{n: 2})
	require.Equal(t, []int{1, 10, 20}, got)

	unsubB()
	require.Equal(t, 0, Len[ping](b))
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	withBus(t)

	called := false
	Subscribe(func(ctx context.Context, e ping) { panic("broken") })
	Subscribe(func(ctx context.Context, e ping) { called = true })

	require.NotPanics(t, func() { Publish(context.Background(), ping{}) })
	require.True(t, called)
}

func TestDisabledBus(t *testing.T) {
	Use(nil)
	require.Nil(t, Current())
	unsub := Subscribe(func(ctx context.Context, e ping) { t.Fatal("unexpected call") })
	Publish(context.Background(), ping{})
	unsub()
}
