package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/rakadenta/cakeorder/internal/audit"
	"github.com/rakadenta/cakeorder/internal/config"
	"github.com/rakadenta/cakeorder/internal/es"
	"github.com/rakadenta/cakeorder/internal/httpserver"
	"github.com/rakadenta/cakeorder/internal/logging"
	mw "github.com/rakadenta/cakeorder/internal/middleware"
	"github.com/rakadenta/cakeorder/internal/mykafka"
	"github.com/rakadenta/cakeorder/internal/repo"
	"github.com/rakadenta/cakeorder/internal/service"
	"github.com/rakadenta/cakeorder/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LogLevel)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	prod := mykafka.NewProducer([]string{cfg.KafkaAddress})
	defer prod.Close()

	esClient, err := es.NewClient(cfg)
	if err != nil {
		log.Fatalf("elasticsearch init error: %v", err)
	}

	gormRepo := &repo.GormRepo{DB: db}
	codec := &tokens.Codec{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}
	authSvc := &service.AuthService{Repo: gormRepo, Codec: codec}
	userSvc := &service.UserService{Repo: gormRepo}
	auditIdx := &audit.Indexer{ES: esClient, Index: "auth_audit"}

	e := echo.New()
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover(), echomw.RequestID())
	e.Use(logging.Middleware(logger))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{
			Svc:      authSvc,
			Producer: prod,
			Audit:    auditIdx,
			Prod:     cfg.IsProd(),
		},
		UserHandler: &httpserver.UserHTTP{
			Users: userSvc,
			Auth:  authSvc,
			Prod:  cfg.IsProd(),
		},
		AdminHandler: &httpserver.AdminHTTP{Audit: auditIdx},
		Auth:         mw.NewAuthMiddleware(codec, userSvc),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
