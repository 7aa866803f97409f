package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/eos/lss/internal/game"
	"github.com/eos/lss/internal/history"
)

// WebSocketHandler upgrades the request, greets the client and hands it
// to the hub, which starts the pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg, s.dispatch)

	greeting, err := json.Marshal(game.ConnectedView(client.ID()))
	if err != nil {
		s.log.Error("Failed to encode greeting", zap.Error(err))
		_ = conn.Close()
		return
	}
	client.send <- greeting

	if !s.hub.registerClient(client) {
		_ = conn.Close()
	}
}

// HealthHandler answers with a plain text liveness line.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "LSS server is running!")
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Clients  int    `json:"clients"`
}

// HealthzHandler reports counts as JSON.
func (s *Server) HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Sessions: s.game.SessionCount(),
		Clients:  s.hub.ClientCount(),
	})
}

// SessionHandler serves GET /api/sessions/{id}. An optional userId query
// parameter personalizes the view.
func (s *Server) SessionHandler(w http.ResponseWriter, r *http.Request) {
	v, err := s.game.State(r.PathValue("id"), r.URL.Query().Get("userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type historyResponse struct {
	SessionID string          `json:"sessionId"`
	Events    []history.Event `json:"events"`
}

// HistoryHandler serves GET /api/sessions/{id}/history.
func (s *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, err := s.game.History(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: id, Events: events})
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// writeError maps game errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	var ge *game.Error
	if errors.As(err, &ge) {
		msg = ge.Msg
		switch ge.Code {
		case game.CodeSessionNotFound, game.CodePlayerNotFound:
			status = http.StatusNotFound
		case game.CodePlayerAlreadyJoined:
			status = http.StatusConflict
		case game.CodeInternalServerError:
			status = http.StatusInternalServerError
		default:
			status = http.StatusBadRequest
		}
	} else {
		s.log.Error("Request failed", zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// TestPageHandler serves a small page for driving a game by hand.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.Warn("Error writing HTML response", zap.Error(err))
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>LSS WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log {
            border: 1px solid #ccc;
            height: 320px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
            white-space: pre-wrap;
        }
        input[type="text"] { width: 160px; padding: 5px; margin-right: 6px; }
        button {
            padding: 5px 12px;
            margin: 2px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>LSS WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="userId" placeholder="user id">
        <input type="text" id="name" placeholder="name">
        <input type="text" id="entryCode" placeholder="entry code">
        <input type="text" id="sessionId" placeholder="session id">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <button onclick="send('create-session')">Create</button>
        <button onclick="send('join-session')">Join</button>
        <button onclick="send('start-ordering')">Start ordering</button>
        <button onclick="send('register-order')">Register order</button>
        <button onclick="send('start-playing')">Start playing</button>
        <button onclick="coin('first', 'head')">1st head</button>
        <button onclick="coin('first', 'tail')">1st tail</button>
        <button onclick="coin('second', 'head')">2nd head</button>
        <button onclick="coin('second', 'tail')">2nd tail</button>
        <button onclick="send('next-turn')">Next turn</button>
        <button onclick="send('continue-lee-soon-sin')">Continue</button>
        <button onclick="send('get-state')">State</button>
        <button onclick="send('leave-session')">Leave</button>
        <button onclick="send('delete-session')">Delete</button>
    </div>

    <div id="log"></div>

    <script>
        let ws = null;
        const logDiv = document.getElementById('log');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');
        const field = (id) => document.getElementById(id).value.trim();

        function addLine(text) {
            const line = document.createElement('div');
            line.textContent = text;
            logDiv.appendChild(line);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => { addLine('connected'); updateStatus(true); };
            ws.onmessage = (event) => {
                addLine('<< ' + event.data);
                try {
                    const msg = JSON.parse(event.data);
                    if (msg.type === 'ok' && msg.entryCode) {
                        document.getElementById('sessionId').value = msg.sessionId;
                        document.getElementById('entryCode').value = msg.entryCode;
                    }
                } catch (e) {}
            };
            ws.onclose = () => { addLine('closed'); updateStatus(false); ws = null; };
            ws.onerror = (error) => { addLine('error: ' + error); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function frame(type, extra) {
            return Object.assign({
                type: type,
                userId: field('userId'),
                name: field('name'),
                entryCode: field('entryCode'),
                sessionId: field('sessionId')
            }, extra || {});
        }

        function send(type, extra) {
            if (!ws || ws.readyState !== WebSocket.OPEN) {
                addLine('not connected');
                return;
            }
            const text = JSON.stringify(frame(type, extra));
            addLine('>> ' + text);
            ws.send(text);
        }

        function coin(coinType, state) {
            send('coin-action', { coinType: coinType, state: state });
        }
    </script>
</body>
</html>`
