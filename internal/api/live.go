package api

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"camgrid/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The dashboard may be served from a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientMessage is the envelope browsers send over the live socket.
type clientMessage struct {
	Type    string `json:"type"`
	Visible bool   `json:"visible,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Message string `json:"message,omitempty"`
}

// registerLiveRoutes registers the per-slot websocket feed on the raw mux.
// Websocket upgrades cannot flow through Huma operations.
func (s *Server) registerLiveRoutes() {
	s.mux.HandleFunc("GET /api/live/{slot}", func(w http.ResponseWriter, r *http.Request) {
		if !s.rawRequestAuthorized(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="CamGrid API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		slot, err := strconv.Atoi(r.PathValue("slot"))
		if err != nil || slot < 0 || slot >= config.MaxSlots {
			http.Error(w, "invalid slot", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("Websocket upgrade failed", "slot", slot, "error", err)
			return
		}

		s.options.Hub.Join(slot, conn)
		s.logger.Debug("Live client joined", "slot", slot, "remote", r.RemoteAddr)

		defer func() {
			s.options.Hub.Leave(slot, conn)
			conn.Close()
			s.logger.Debug("Live client left", "slot", slot, "remote", r.RemoteAddr)
		}()

		relay := s.options.Hub.Sink(slot)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case "visibility":
				if s.options.Visibility != nil {
					s.options.Visibility.SetPageVisible(msg.Visible)
				}
			case "size":
				relay.SetSize(msg.Width, msg.Height)
			case "error":
				relay.ReportError(errClientPlayback(msg.Message))
			}
		}
	})
}

// rawRequestAuthorized checks basic auth on routes registered directly on
// the mux, honoring the same ?auth= fallback the SSE endpoints use since
// the browser WebSocket API cannot set headers.
func (s *Server) rawRequestAuthorized(r *http.Request) bool {
	if s.options.AuthUsername == "" || s.options.AuthPassword == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		if token := r.URL.Query().Get("auth"); token != "" {
			user, pass, ok = decodeAuthToken(token)
		}
	}
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(user), []byte(s.options.AuthUsername)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(s.options.AuthPassword)) == 1
}

// decodeAuthToken decodes a base64 "user:pass" query token.
func decodeAuthToken(token string) (user, pass string, ok bool) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

type errClientPlayback string

func (e errClientPlayback) Error() string { return "client playback error: " + string(e) }
