package hub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h *Hub, initial ...Message) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		NewClient(h, c, initial...).Run()
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/ws"
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	ws, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func read(t *testing.T, ws *gorilla.Conn) (int, string) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := ws.ReadMessage()
	require.NoError(t, err)
	return typ, string(data)
}

func TestBroadcast(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	url := serve(t, h, NewJSONMessage([]byte(`{"hello":true}`)))
	a := dial(t, url)
	b := dial(t, url)

	_, first := read(t, a)
	assert.Equal(t, `{"hello":true}`, first)
	_, _ = read(t, b)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]int{"n": 1}))
	for _, ws := range []*gorilla.Conn{a, b} {
		typ, got := read(t, ws)
		assert.Equal(t, gorilla.TextMessage, typ)
		assert.Equal(t, `{"n":1}`, got)
	}

	h.Broadcast(NewBinaryMessage([]byte{1, 2}))
	typ, got := read(t, a)
	assert.Equal(t, gorilla.BinaryMessage, typ)
	assert.Equal(t, "\x01\x02", got)
}

func TestClientDisconnect(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	ws := dial(t, serve(t, h))
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestRunStopClosesClients(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	ws := dial(t, serve(t, h))
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, h.IsRunning())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.False(t, h.IsRunning())
	assert.Equal(t, 0, h.ClientCount())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)

	// Late clients of a stopped hub are closed rather than blocking.
	late := dial(t, serve(t, h))
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
}

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	h := New("test", nil)
	for i := 0; i < cap(h.broadcast)+3; i++ {
		h.Broadcast(NewJSONMessage([]byte("{}")))
	}
	assert.Equal(t, uint64(3), h.Dropped())
}
