package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// attach registers a connection-less client directly, bypassing Run.
func attach(h *Hub, addr string) *Client {
	c := &Client{id: addr, addr: addr, send: make(chan []byte, 4), hub: h, log: zap.NewNop()}
	h.mutex.Lock()
	h.clients[c] = true
	h.mutex.Unlock()
	return c
}

func drain(c *Client) []string {
	var out []string
	for {
		select {
		case m, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, string(m))
		default:
			return out
		}
	}
}

func TestHubBindAndRoute(t *testing.T) {
	h := NewHub(nil, nil)
	p := attach(h, "p")
	a := attach(h, "a")
	other := attach(h, "o")

	h.Bind(p, "s1", "p")
	h.Bind(a, "s1", "a")
	h.Bind(other, "s2", "o")

	h.Broadcast("s1", []byte("room"))
	h.SendToUser("s1", "a", []byte("direct"))
	h.SendToUser("s1", "o", []byte("wrong room"))

	assert.Equal(t, []string{"room"}, drain(p))
	assert.Equal(t, []string{"room", "direct"}, drain(a))
	assert.Empty(t, drain(other))
	assert.Equal(t, 2, h.RoomSize("s1"))
}

func TestHubRebindMovesPlayer(t *testing.T) {
	h := NewHub(nil, nil)
	first := attach(h, "first")
	second := attach(h, "second")

	h.Bind(first, "s1", "u")
	h.Bind(second, "s1", "u")

	_, _, ok := h.release(first)
	assert.False(t, ok, "the old connection no longer owns the player")

	sessionID, userID, ok := h.release(second)
	require.True(t, ok)
	assert.Equal(t, "s1", sessionID)
	assert.Equal(t, "u", userID)
	assert.Equal(t, 0, h.RoomSize("s1"))
}

func TestHubBindToAnotherSessionLeavesOldRoom(t *testing.T) {
	h := NewHub(nil, nil)
	c := attach(h, "c")

	h.Bind(c, "s1", "u")
	h.Bind(c, "s2", "u")

	assert.Equal(t, 0, h.RoomSize("s1"))
	assert.Equal(t, 1, h.RoomSize("s2"))
}

func TestHubDetachAndCloseRoom(t *testing.T) {
	h := NewHub(nil, nil)
	p := attach(h, "p")
	a := attach(h, "a")
	h.Bind(p, "s1", "p")
	h.Bind(a, "s1", "a")

	h.Detach("s1", "a")
	h.Broadcast("s1", []byte("after detach"))
	assert.Empty(t, drain(a))
	assert.Equal(t, []string{"after detach"}, drain(p))

	h.CloseRoom("s1")
	assert.Equal(t, 0, h.RoomSize("s1"))
	_, _, ok := h.release(p)
	assert.False(t, ok)
}

func TestHubRemovesSlowClients(t *testing.T) {
	h := NewHub(nil, nil)
	slow := attach(h, "slow")
	h.Bind(slow, "s1", "u")

	for i := 0; i < cap(slow.send); i++ {
		slow.send <- []byte("x")
	}
	h.Broadcast("s1", []byte("overflow"))

	assert.Equal(t, 0, h.ClientCount())
	assert.Len(t, drain(slow), cap(slow.send), "channel is closed after the queued frames")
	assert.False(t, h.safeSend(slow, []byte("late")))
}

func TestHubShutdownWithoutClients(t *testing.T) {
	h := NewHub(nil, nil)
	go h.Run()

	require.NoError(t, h.Shutdown(time.Second))
	assert.False(t, h.registerClient(&Client{}), "registration fails once shut down")
}

func TestOriginPolicyNormalization(t *testing.T) {
	p := newOriginPolicy([]string{" http://Example.com ", "not-a-url", ""}, zap.NewNop())

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "HTTP://EXAMPLE.COM")
	assert.True(t, p.check(req))

	req.Header.Set("Origin", "http://example.com:8443")
	assert.False(t, p.check(req))

	req.Header.Del("Origin")
	assert.False(t, p.check(req))

	all := newOriginPolicy([]string{"*"}, zap.NewNop())
	req.Header.Set("Origin", "https://any.example")
	assert.True(t, all.check(req))
	req.Header.Set("Origin", "garbage")
	assert.False(t, all.check(req))
}

func TestEnvelope(t *testing.T) {
	withData := envelope{Action: "join-session", Data: []byte(`{"userId":"a"}`)}
	assert.Equal(t, "join-session", withData.name())
	assert.JSONEq(t, `{"userId":"a"}`, string(withData.payload([]byte(`{}`))))

	flat := envelope{Type: "get-state", Data: []byte(`{"x":1}`)}
	raw := []byte(`{"type":"get-state","userId":"a"}`)
	assert.Equal(t, "get-state", flat.name())
	assert.Equal(t, raw, []byte(flat.payload(raw)))

	noData := envelope{Action: "next-turn"}
	assert.Equal(t, raw, []byte(noData.payload(raw)))
}
