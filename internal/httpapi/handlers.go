package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/elpres-backend/internal/hub"
	"github.com/DoyleJ11/elpres-backend/internal/room"
)

var ErrNameLength = errors.New("Name must be 20 characters or less")

const (
	defaultPlayerName = "Player"
	maxPlayerName     = 20
	joinAttempts      = 3
)

// PlayerName trims and NFC-normalizes a display name, defaulting an empty one.
func PlayerName(raw string) (string, error) {
	name := norm.NFC.String(strings.TrimSpace(raw))
	if name == "" {
		return defaultPlayerName, nil
	}
	if utf8.RuneCountInString(name) > maxPlayerName {
		return "", ErrNameLength
	}
	return name, nil
}

// Join resolves a display name to a player id in a room, creating either as needed.
func Join(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomName, err := room.NormalizeName(r.URL.Query().Get("room"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		name, err := PlayerName(r.URL.Query().Get("name"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		// A room can close between lookup and register; the hub then hands out a fresh one.
		var id string
		for attempt := 0; attempt < joinAttempts; attempt++ {
			var rm *room.Room
			rm, err = h.Ensure(r.Context(), roomName)
			if err != nil {
				break
			}
			id, err = rm.Register(r.Context(), name)
			if !errors.Is(err, room.ErrClosed) {
				break
			}
		}
		if err != nil {
			log.Warn("join failed", zap.String("room", roomName), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}

		log.Info("player joined", zap.String("room", roomName), zap.String("name", name))
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, struct {
			ID string `json:"id"`
		}{ID: id})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}
