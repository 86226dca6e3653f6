package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/park285/tictac-relay/internal/auth"
	"github.com/park285/tictac-relay/internal/gamestore"
)

// GameStore is the read/delete side of the session store used by the REST endpoints.
type GameStore interface {
	GetGame(ctx context.Context, gameID string) (*gamestore.Game, error)
	DeleteGame(ctx context.Context, gameID string) error
}

// SessionServer upgrades and runs one websocket session.
type SessionServer interface {
	Serve(w http.ResponseWriter, r *http.Request, gameID string)
}

type Deps struct {
	WS    SessionServer
	Store GameStore
	Auth  auth.Authenticator
	// Ping checks the shared store; nil reports healthy.
	Ping func(ctx context.Context) error
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz(d.Ping))
	r.Get("/ws/{game_id}", func(w http.ResponseWriter, r *http.Request) {
		d.WS.Serve(w, r, chi.URLParam(r, "game_id"))
	})
	r.Get("/games/{game_id}", GetGame(d.Store, d.Auth))
	r.Delete("/games/{game_id}", DeleteGame(d.Store, d.Auth))
	return r
}
