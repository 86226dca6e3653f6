package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/park285/tictac-relay/internal/auth"
	"github.com/park285/tictac-relay/internal/gamestore"
	"github.com/park285/tictac-relay/internal/obslog"
	"github.com/park285/tictac-relay/internal/wsgame"
)

const pingTimeout = 2 * time.Second

func Healthz(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				obslog.L().Warn("healthz_failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// GetGame returns the current snapshot to one of the game's players.
func GetGame(store GameStore, authn auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := authenticate(w, r, authn)
		if !ok {
			return
		}
		g, ok := loadGame(w, r, store)
		if !ok {
			return
		}
		if !g.IsParticipant(userID) {
			writeError(w, http.StatusForbidden, "only players may read a game")
			return
		}
		writeJSON(w, http.StatusOK, wsgame.Snapshot(g))
	}
}

// DeleteGame lets a participant remove a Finished or Abandoned game ahead of its TTL.
func DeleteGame(store GameStore, authn auth.Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := authenticate(w, r, authn)
		if !ok {
			return
		}
		g, ok := loadGame(w, r, store)
		if !ok {
			return
		}
		if !g.IsParticipant(userID) {
			writeError(w, http.StatusForbidden, "only players may delete a game")
			return
		}
		if !g.Status.Terminal() {
			writeError(w, http.StatusConflict, "game is still active")
			return
		}
		if err := store.DeleteGame(r.Context(), g.ID); err != nil {
			obslog.L().Error("game_delete_error", zap.String("game_id", g.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func authenticate(w http.ResponseWriter, r *http.Request, authn auth.Authenticator) (string, bool) {
	userID, err := authn.Authenticate(r)
	if err == nil {
		return userID, true
	}
	if errors.Is(err, auth.ErrUnauthenticated) {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return "", false
	}
	obslog.L().Error("auth_error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
	return "", false
}

func loadGame(w http.ResponseWriter, r *http.Request, store GameStore) (*gamestore.Game, bool) {
	gameID := strings.TrimSpace(chi.URLParam(r, "game_id"))
	g, err := store.GetGame(r.Context(), gameID)
	switch {
	case err == nil:
		return g, true
	case errors.Is(err, gamestore.ErrNotFound):
		writeError(w, http.StatusNotFound, "game not found")
	default:
		obslog.L().Error("game_read_error", zap.String("game_id", gameID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
