// Package testhelpers provides common utilities for testing the LSS server.
//
// It covers creating test servers, making HTTP requests, and exchanging
// JSON frames over WebSocket connections so that package tests stay short.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultOrigin is the origin the default server config allows.
const DefaultOrigin = "http://localhost:8080"

// Frame is a decoded server frame.
type Frame map[string]any

// String returns the string field key, or "" when absent.
func (f Frame) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// IsError reports whether f is an error frame carrying code.
func (f Frame) IsError(code string) bool {
	return f.String("type") == "error" && f.String("errorCode") == code
}

// IsState reports whether f is a state view with the given gameState.
func (f Frame) IsState(gameState string) bool {
	return f.String("type") == "ok" && f.String("gameState") == gameState
}

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// WebSocketURL turns an httptest URL into the game socket URL.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket dials url with the given Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Join dials the server, consumes the greeting and registers cleanup.
func Join(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()

	conn, _, err := ConnectWebSocket(WebSocketURL(serverURL), DefaultOrigin)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	greeting := Receive(t, conn)
	if greeting.String("status") != "connected" {
		t.Fatalf("Expected greeting, got %v", greeting)
	}
	return conn
}

// Send writes frame as JSON.
func Send(t *testing.T, conn *websocket.Conn, frame any) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to send frame: %v", err)
	}
}

// SendRaw writes data as a text frame.
func SendRaw(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		t.Fatalf("Failed to send raw frame: %v", err)
	}
}

// Receive reads the next frame, failing after two seconds.
func Receive(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Frame is not JSON: %v (%s)", err, data)
	}
	return frame
}

// Expect reads frames until match accepts one. Frames that do not match
// are skipped since pushes may interleave with replies.
func Expect(t *testing.T, conn *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		frame := Receive(t, conn)
		if match(frame) {
			return frame
		}
	}
	t.Fatal("Expected frame did not arrive")
	return nil
}

// ExpectError waits for an error frame with code.
func ExpectError(t *testing.T, conn *websocket.Conn, code string) Frame {
	t.Helper()
	return Expect(t, conn, func(f Frame) bool { return f.IsError(code) })
}

// ExpectState waits for a state view with gameState.
func ExpectState(t *testing.T, conn *websocket.Conn, gameState string) Frame {
	t.Helper()
	return Expect(t, conn, func(f Frame) bool { return f.IsState(gameState) })
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
