package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"

	"github.com/park285/tictac-relay/internal/auth"
	"github.com/park285/tictac-relay/pkg/tictacclient"
	"github.com/park285/tictac-relay/pkg/tictacdto"
)

type checkConfig struct {
	BaseURL   string        `env:"TICTAC_BASE_URL" envDefault:"http://localhost:8080"`
	JWTSecret string        `env:"JWT_SECRET,required"`
	UserID    string        `env:"CHECK_USER_ID" envDefault:"check-user"`
	GameID    string        `env:"CHECK_GAME_ID"`
	Create    bool          `env:"CHECK_CREATE"`
	Observe   time.Duration `env:"CHECK_OBSERVE" envDefault:"10s"`
}

func main() {
	var cfg checkConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	authn, err := auth.NewJWT(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("auth error: %v", err)
	}
	token, err := authn.Issue(cfg.UserID, time.Hour)
	if err != nil {
		log.Fatalf("token error: %v", err)
	}
	fmt.Printf("token for %s: %s\n", cfg.UserID, token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rest := tictacclient.NewREST(cfg.BaseURL, tictacclient.WithToken(func() string { return token }))
	if err := rest.Health(ctx); err != nil {
		log.Printf("/healthz error: %v", err)
	} else {
		log.Println("/healthz ok")
	}

	if cfg.GameID == "" {
		log.Println("CHECK_GAME_ID not set; skipping WS check")
		return
	}
	if st, err := rest.GetGame(ctx, cfg.GameID); err != nil {
		log.Printf("/games/%s error: %v", cfg.GameID, err)
	} else {
		log.Printf("/games/%s ok: status=%s version=%d", cfg.GameID, st.Status, st.Version)
	}

	client := tictacclient.New(cfg.BaseURL, cfg.GameID, func() string { return token }, tictacclient.WithReconnect(3))
	client.OnStateChange(func(state tictacclient.State) {
		log.Printf("WS state: %s", state)
	})
	client.OnMessage(func(m *tictacdto.ServerMessage) {
		if m.Type == tictacdto.TypeGameState && m.Game != nil {
			fmt.Printf("WS game_state status=%s version=%d\n", m.Game.Status, m.Game.Version)
			return
		}
		fmt.Printf("WS %s %q\n", m.Type, m.Message)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := client.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	if cfg.Create {
		if err := client.CreateGame(cctx); err != nil {
			log.Printf("create_game error: %v", err)
		}
	}

	// 짧은 시간 동안 수신 관찰
	t := time.NewTimer(cfg.Observe)
	<-t.C

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	_ = client.Close(closeCtx)
}
