package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	failing bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func TestHub_PublishReachesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(nil, nil)
	go h.Run(ctx)

	good := &fakeConn{}
	bad := &fakeConn{failing: true}
	h.Register <- good
	h.Register <- bad

	h.Publish(Event{Type: EventDirectoryChanged, Resource: "departments", IDs: []string{"d1"}})

	require.Eventually(t, func() bool { return len(good.Frames()) == 1 }, time.Second, 5*time.Millisecond)
	var got Event
	require.NoError(t, json.Unmarshal(good.Frames()[0], &got))
	assert.Equal(t, EventDirectoryChanged, got.Type)
	assert.Equal(t, []string{"d1"}, got.IDs)
	assert.False(t, got.At.IsZero())

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_UnregisterAndShutdownClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(nil, nil)
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	a, b := &fakeConn{}, &fakeConn{}
	h.Register <- a
	h.Register <- b
	h.Unregister <- a
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Zero(t, h.ClientCount())

	// returns immediately once the hub is gone
	h.Publish(Event{Type: EventPermissionsChanged})
}
