package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/itsvicky-dev/chatio/internal/auth"
	"github.com/itsvicky-dev/chatio/internal/database"
	"github.com/itsvicky-dev/chatio/internal/realtime"
	ws "github.com/itsvicky-dev/chatio/internal/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	core        *realtime.Core
	db          database.Database
	opts        ws.Options
	upgrader    websocket.Upgrader
	log         zerolog.Logger
}

func NewWebSocketHandlers(authService *auth.Service, core *realtime.Core, db database.Database, opts ws.Options, log zerolog.Logger) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		core:        core,
		db:          db,
		opts:        opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
		log: log.With().Str("component", "ws-handler").Logger(),
	}
}

// HandleWebSocket authenticates the connection attempt, upgrades it and
// hands the resulting client to the realtime core. Room subscriptions
// happen afterwards via join_room commands, never at upgrade time.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	identity, err := h.authService.Authenticate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(conn, identity.UserID, h.core, h.db, h.opts, h.log)
	if err := h.core.Connect(client); err != nil {
		h.log.Error().Err(err).Msg("connection registration failed")
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// bearerToken pulls the credential from the Authorization header, falling
// back to a query parameter for browser websocket clients that cannot set
// headers.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
