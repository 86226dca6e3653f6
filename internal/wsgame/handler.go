// Package wsgame runs one websocket session per connected player.
//
// Each session has an inbound loop (decode intent → store transition → fanout) and an
// outbound loop draining the session's Outbox onto the socket. Both stop together: a
// closed socket, a failed write or a cancelled request tears the whole session down and
// removes it from the registry.
package wsgame

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/park285/tictac-relay/internal/auth"
	"github.com/park285/tictac-relay/internal/gamestore"
	"github.com/park285/tictac-relay/internal/msgcat"
	"github.com/park285/tictac-relay/internal/obslog"
	"github.com/park285/tictac-relay/internal/registry"
	"github.com/park285/tictac-relay/pkg/tictacdto"
)

// GameStore is the subset of gamestore.Store the handler drives.
type GameStore interface {
	CreateGame(ctx context.Context, creatorID, creatorSession, gameID string) (*gamestore.Game, error)
	JoinGame(ctx context.Context, gameID, joinerID, joinerSession string) (*gamestore.Game, error)
	MakeMove(ctx context.Context, gameID, actingUserID string, pos int) (*gamestore.Game, error)
	AbandonGame(ctx context.Context, gameID, actingUserID string) (*gamestore.Game, error)
	GetGame(ctx context.Context, gameID string) (*gamestore.Game, error)
}

// Broadcaster delivers a payload to every session of a game, on every process.
type Broadcaster interface {
	BroadcastToAll(ctx context.Context, gameID, payload, originSession string) error
}

type Options struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReadLimit      int64
	OriginPatterns []string
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 { o.WriteTimeout = 5 * time.Second }
	if o.ReadLimit <= 0 { o.ReadLimit = 4096 }
	return o
}

type Handler struct {
	store GameStore
	bus   Broadcaster
	reg   *registry.Registry
	auth  auth.Authenticator
	cat   *msgcat.Catalog
	opts  Options
}

func New(store GameStore, bus Broadcaster, reg *registry.Registry, authn auth.Authenticator, cat *msgcat.Catalog, opts Options) *Handler {
	return &Handler{store: store, bus: bus, reg: reg, auth: authn, cat: cat, opts: opts.withDefaults()}
}

type session struct {
	id     string
	gameID string
	userID string
	conn   *websocket.Conn
	out    *registry.Outbox
}

var (
	errSessionClosed = errors.New("session closed by peer")
	errNotAPlayer    = errors.New("game started without this user")
)

// receives reports whether a frame may be delivered to this session. Once a game has
// two players, its snapshots go to those players only.
func (s *session) receives(frame string) bool {
	m, err := tictacdto.DecodeServerMessage([]byte(frame))
	if err != nil || m.Game == nil || m.Game.Player2ID == nil {
		return true
	}
	return s.userID == m.Game.Player1ID || s.userID == *m.Game.Player2ID
}

// Serve authenticates the request, upgrades it and runs the session until it ends.
// Unauthenticated requests are rejected before the registry or the store is touched.
// A game that already has two players only accepts sockets from those players.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, gameID string) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}
	userID, err := h.auth.Authenticate(r)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			obslog.L().Info("ws_unauthenticated", zap.String("game_id", gameID), zap.String("remote", r.RemoteAddr), zap.Error(err))
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		obslog.L().Error("ws_auth_error", zap.String("game_id", gameID), zap.Error(err))
		http.Error(w, "authentication unavailable", http.StatusInternalServerError)
		return
	}
	switch g, err := h.store.GetGame(r.Context(), gameID); {
	case err == nil && g.Player2ID != "" && !g.IsParticipant(userID):
		obslog.L().Info("ws_not_a_player", zap.String("game_id", gameID), zap.String("user_id", userID))
		http.Error(w, "game already has two players", http.StatusForbidden)
		return
	case err != nil && !errors.Is(err, gamestore.ErrNotFound):
		obslog.L().Error("ws_lookup_error", zap.String("game_id", gameID), zap.Error(err))
		http.Error(w, "game lookup unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.opts.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	conn.SetReadLimit(h.opts.ReadLimit)

	s := &session{id: uuid.NewString(), gameID: gameID, userID: userID, conn: conn, out: registry.NewOutbox()}
	h.reg.Add(s.gameID, s.id, s.out)
	obslog.L().Info("session_open", zap.String("game_id", s.gameID), zap.String("session_id", s.id), zap.String("user_id", s.userID),
		zap.Int("game_sessions", h.reg.Sessions(s.gameID)))

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { return h.readLoop(ctx, s) })
	g.Go(func() error { return h.writeLoop(ctx, s) })
	err = g.Wait()

	h.reg.Remove(s.gameID, s.id)
	s.out.Close()
	if errors.Is(err, errNotAPlayer) {
		_ = conn.Close(websocket.StatusPolicyViolation, "game started without you")
	} else {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}

	fields := []zap.Field{zap.String("game_id", s.gameID), zap.String("session_id", s.id), zap.String("user_id", s.userID),
		zap.Int("game_sessions", h.reg.Sessions(s.gameID))}
	if err != nil && !errors.Is(err, errSessionClosed) && !errors.Is(err, context.Canceled) {
		fields = append(fields, zap.Error(err))
	}
	obslog.L().Info("session_close", fields...)
}

func (h *Handler) readLoop(ctx context.Context, s *session) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return errSessionClosed
			}
			return fmt.Errorf("read: %w", err)
		}
		h.dispatch(ctx, s, data)
	}
}

func (h *Handler) writeLoop(ctx context.Context, s *session) error {
	var pings <-chan time.Time
	if h.opts.PingInterval > 0 {
		t := time.NewTicker(h.opts.PingInterval)
		defer t.Stop()
		pings = t.C
	}
	pingFailures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.out.Ready():
			for _, msg := range s.out.Drain() {
				if !s.receives(msg) {
					return errNotAPlayer
				}
				wctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
				err := s.conn.Write(wctx, websocket.MessageText, []byte(msg))
				cancel()
				if err != nil {
					return fmt.Errorf("write: %w", err)
				}
			}
		case <-pings:
			pctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := s.conn.Ping(pctx)
			cancel()
			if err == nil {
				pingFailures = 0
				continue
			}
			pingFailures++
			if pingFailures >= 2 {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
