package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/itsvicky-dev/chatio/internal/realtime"
	"github.com/itsvicky-dev/chatio/internal/store"
)

// ActiveUser is one online room member as reported to HTTP clients.
type ActiveUser struct {
	UserID   realtime.UserID `json:"user_id"`
	LastSeen *time.Time      `json:"last_seen,omitempty"`
}

// UserPresence is the answer to a single-user presence query.
type UserPresence struct {
	UserID   realtime.UserID `json:"user_id"`
	Online   bool            `json:"online"`
	LastSeen *time.Time      `json:"last_seen,omitempty"`
}

type PresenceHandlers struct {
	core  *realtime.Core
	redis *store.RedisStore
	log   zerolog.Logger
}

// NewPresenceHandlers builds the read-only presence surface. redis may be
// nil; last-seen then only covers this process's lifetime.
func NewPresenceHandlers(core *realtime.Core, redis *store.RedisStore, log zerolog.Logger) *PresenceHandlers {
	return &PresenceHandlers{
		core:  core,
		redis: redis,
		log:   log.With().Str("component", "presence-handler").Logger(),
	}
}

// GetActiveUsers lists the distinct online users subscribed to a room.
func (h *PresenceHandlers) GetActiveUsers(w http.ResponseWriter, r *http.Request) {
	room := realtime.RoomID(chi.URLParam(r, "id"))
	if room == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	users := h.core.ActiveUsers(room)
	active := make([]ActiveUser, 0, len(users))
	for _, user := range users {
		entry := ActiveUser{UserID: user}
		if seen, ok := h.core.LastSeen(user); ok {
			entry.LastSeen = &seen
		}
		active = append(active, entry)
	}
	writeJSON(w, http.StatusOK, active)
}

// GetUserPresence reports one user's derived presence, consulting the
// last-seen store for users not seen by this process.
func (h *PresenceHandlers) GetUserPresence(w http.ResponseWriter, r *http.Request) {
	user := realtime.UserID(chi.URLParam(r, "id"))
	if user == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	presence := UserPresence{UserID: user, Online: h.core.IsOnline(user)}
	if seen, ok := h.core.LastSeen(user); ok {
		presence.LastSeen = &seen
	} else if h.redis != nil {
		seen, ok, err := h.redis.LastSeen(r.Context(), user)
		if err != nil {
			h.log.Error().Err(err).Str("user", string(user)).Msg("last-seen lookup failed")
		} else if ok {
			presence.LastSeen = &seen
		}
	}
	writeJSON(w, http.StatusOK, presence)
}

// Health reports liveness.
func (h *PresenceHandlers) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if h.redis != nil {
		if err := h.redis.Ping(r.Context()); err != nil {
			status["redis"] = "unreachable"
		} else {
			status["redis"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
