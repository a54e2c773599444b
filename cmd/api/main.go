package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wufei-png/wework-robot-opencode/internal/config"
	"github.com/wufei-png/wework-robot-opencode/internal/handler"
	"github.com/wufei-png/wework-robot-opencode/internal/service/envelope"
	"github.com/wufei-png/wework-robot-opencode/internal/service/opencode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	log.Printf("configuration loaded: %s", cfg.Redacted())

	// 配置不全时仍然启动，回调请求统一返回 500
	var codec envelope.Codec
	if svc, err := envelope.New(cfg.WeWork); err != nil {
		log.Printf("warning: wework callback disabled: %v", err)
		codec = envelope.Unconfigured(err)
	} else {
		codec = svc
	}

	client := opencode.NewClient(cfg.OpenCode, &http.Client{})
	if cfg.OpenCode.CheckAgent {
		found, err := client.CheckAgent(ctx)
		switch {
		case err != nil:
			log.Printf("warning: 无法检查 agent 是否存在: %v", err)
		case !found:
			log.Printf("warning: agent %q 不存在，请检查 OPENCODE_AGENT_NAME 配置", client.AgentName())
		default:
			log.Printf("opencode agent %q available", client.AgentName())
		}
	}

	router := handler.NewRouter(codec, client)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("wework-robot-opencode listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
