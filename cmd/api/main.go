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

	"github.com/oakdemir/pharmachat/internal/config"
	"github.com/oakdemir/pharmachat/internal/handler"
	"github.com/oakdemir/pharmachat/internal/model/profile"
	"github.com/oakdemir/pharmachat/internal/service/ai"
	chatservice "github.com/oakdemir/pharmachat/internal/service/chat"
	"github.com/oakdemir/pharmachat/internal/service/conversation"
	"github.com/oakdemir/pharmachat/internal/store"
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

	repo, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		log.Fatalf("failed to open store at %s: %v", cfg.Store.Path, err)
	}
	defer repo.Close()

	profileStore := profile.NewMemoryStore()
	chatService := chatservice.NewService(repo)

	// Initialize the completion gateway
	var gateway conversation.Gateway
	gatewayReady := false
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, profileStore, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize completion gateway: %v", err)
			log.Println("continuing without completion functionality - check the Ark model environment variables")
		} else {
			gateway = aiService
			gatewayReady = true
			log.Println("completion gateway initialized successfully")
		}
	} else {
		log.Println("model credentials not configured, skipping completion gateway initialization")
	}
	if gateway == nil {
		gateway = conversation.NewUnavailableGateway()
	}

	manager := conversation.NewManager(chatService, gateway, cfg.Chat.CompletionTimeout)
	router := handler.NewRouter(manager, profileStore, gatewayReady)

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

	log.Printf("pharmachat backend listening on %s", addr)
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
