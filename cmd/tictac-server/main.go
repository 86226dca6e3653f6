package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/park285/tictac-relay/internal/accounts"
	"github.com/park285/tictac-relay/internal/auth"
	appcfg "github.com/park285/tictac-relay/internal/config"
	"github.com/park285/tictac-relay/internal/fanout"
	"github.com/park285/tictac-relay/internal/gamestore"
	"github.com/park285/tictac-relay/internal/httpapi"
	"github.com/park285/tictac-relay/internal/msgcat"
	"github.com/park285/tictac-relay/internal/obslog"
	"github.com/park285/tictac-relay/internal/redisconn"
	"github.com/park285/tictac-relay/internal/registry"
	"github.com/park285/tictac-relay/internal/wsgame"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	octx, cancel := context.WithTimeout(ctx, 10*time.Second)
	rdb, err := redisconn.Open(octx, cfg.RedisURL)
	cancel()
	if err != nil {
		obslog.L().Fatal("redis_connect_error", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	var authOpts []auth.Option
	if cfg.DatabaseURL != "" {
		repo, err := accounts.NewRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Fatal("accounts_init_error", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
		authOpts = append(authOpts, auth.WithAccounts(repo))
	}
	authn, err := auth.NewJWT(cfg.JWTSecret, authOpts...)
	if err != nil {
		obslog.L().Fatal("auth_init_error", zap.Error(err))
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		obslog.L().Fatal("messages_load_error", zap.Error(err))
	}
	if missing := cat.Missing(wsgame.MessageKeys()...); len(missing) > 0 {
		obslog.L().Fatal("messages_incomplete", zap.Strings("missing", missing))
	}

	// 프로세스 로컬 세션 레지스트리 + Redis pub/sub 릴레이
	reg := registry.New()
	bus := fanout.New(rdb, reg)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := bus.Run(ctx); err != nil {
			obslog.L().Error("relay_stopped", zap.Error(err))
		}
	}()

	store := gamestore.New(rdb, gamestore.WithTTL(cfg.GameTTL()), gamestore.WithMaxRetries(cfg.MoveRetries))
	ws := wsgame.New(store, bus, reg, authn, cat, wsgame.Options{
		WriteTimeout:   cfg.WriteTimeout(),
		PingInterval:   cfg.PingInterval(),
		ReadLimit:      cfg.ReadLimitBytes,
		OriginPatterns: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			WS:    ws,
			Store: store,
			Auth:  authn,
			Ping:  func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Error("server_error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	// 종료 시점에 로컬 세션이 남은 게임 수를 기록
	obslog.L().Info("server_shutdown", zap.Int("active_games", reg.Games()))
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		obslog.L().Warn("server_shutdown_error", zap.Error(err))
	}
	<-relayDone
}
