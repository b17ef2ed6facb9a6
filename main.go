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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"quizzai/internal/api"
	"quizzai/internal/config"
	"quizzai/internal/service/agent"
	"quizzai/internal/service/ai"
	"quizzai/internal/service/extract"
	"quizzai/internal/service/quiz"
	"quizzai/internal/service/session"
	"quizzai/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load(os.Getenv("QUIZZAI_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.Validate()

	store, err := storage.Open(cfg.BasicConfig.Storage, cfg)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor, err := extract.NewFileExtractor(ctx)
	if err != nil {
		log.Fatalf("init extractor: %v", err)
	}

	agents := agent.NewManager(agent.Options{
		Factory:     ai.NewExecutorFactory(cfg),
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
		Timeout:     cfg.RunTimeout(),
	})
	defer agents.Close()

	sessions := session.NewManager(store, agents)
	sessions.StartIdleReaper(ctx,
		time.Duration(cfg.BasicConfig.CleanInterval)*time.Minute,
		time.Duration(cfg.BasicConfig.SessionIdleTTL)*time.Minute,
	)

	quizService := quiz.NewService(sessions, agents, extractor, quiz.LimitsFromConfig(cfg))
	handlers := api.NewHandler(quizService, cfg.BasicConfig.AppName, cfg.BasicConfig.MaxPDFSize)

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(api.CORS(cfg.AllowedOrigins()))
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("%s listening on %s", cfg.BasicConfig.AppName, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
