package livesync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetachedConn() *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{ctx: ctx, cancel: cancel}
}

func TestHubRegisterAndCloseAll(t *testing.T) {
	hub := NewHub()
	a, b := newDetachedConn(), newDetachedConn()

	assert.True(t, hub.Register(a))
	assert.True(t, hub.Register(b))
	assert.Equal(t, 2, hub.Count())

	hub.Unregister(a)
	assert.Equal(t, 1, hub.Count())

	hub.CloseAll()
	assert.Equal(t, StateClosed, b.State())
	assert.Error(t, b.ctx.Err())
	assert.NoError(t, a.ctx.Err())

	assert.False(t, hub.Register(newDetachedConn()), "register after CloseAll")
}

func TestHubWaitBlocksUntilConnectionsUnregister(t *testing.T) {
	hub := NewHub()
	c := newDetachedConn()
	require.True(t, hub.Register(c))
	hub.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, hub.Wait(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- hub.Wait(context.Background()) }()
	hub.Unregister(c)
	hub.Unregister(c)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the last connection unregistered")
	}
}

func TestConnCloseIsIdempotent(t *testing.T) {
	c := newDetachedConn()
	c.Close()
	c.Close()
	assert.Equal(t, StateClosed, c.State())
}

func TestIsRefreshRequest(t *testing.T) {
	assert.True(t, isRefreshRequest([]byte(`{"message":"get_timers"}`)))
	assert.False(t, isRefreshRequest([]byte(`{"message":"other"}`)))
	assert.False(t, isRefreshRequest([]byte(`not json`)))
	assert.False(t, isRefreshRequest([]byte(`["get_timers"]`)))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "AUTHENTICATED", StateAuthenticated.String())
	assert.Equal(t, "STREAMING", StateStreaming.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
}
