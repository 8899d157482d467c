package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nmiculinic/rzne/internal/app/store"
	"github.com/nmiculinic/rzne/internal/cache"
	"github.com/nmiculinic/rzne/internal/events"
	httpx "github.com/nmiculinic/rzne/internal/http"
	"github.com/nmiculinic/rzne/internal/service/auth"
	"github.com/nmiculinic/rzne/internal/service/notes"
	"github.com/nmiculinic/rzne/internal/ws"
	"github.com/nmiculinic/rzne/pkg/config"
	"github.com/nmiculinic/rzne/pkg/crypto"
	"github.com/nmiculinic/rzne/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := store.Open(ctx, cfg, cfg.MigrateOnStart, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	hub := ws.NewHub()
	defer hub.Close()
	publishers := events.Multi{events.NewHubPublisher(hub)}
	if addr := strings.TrimSpace(cfg.NSQDAddr); addr != "" {
		producer, err := events.NewNSQPublisher(addr, cfg.NSQTopic, log)
		if err != nil {
			log.Warn("nsq publisher unavailable", "addr", addr, "error", err)
		} else {
			defer producer.Close()
			publishers = append(publishers, producer)
		}
	}

	var noteCache notes.Cache
	if addr := strings.TrimSpace(cfg.CacheRedisAddr); addr != "" {
		rdb, err := cache.Dial(ctx, addr, cfg.CacheRedisPass, cfg.CacheRedisDB)
		if err != nil {
			log.Warn("redis note cache unavailable", "addr", addr, "error", err)
		} else {
			defer rdb.Close()
			noteCache = cache.NewNoteCache(rdb, cfg.CacheTTL)
		}
	}

	hasher := crypto.NewHasher(cfg.HashIterations, cfg.SaltBytes)
	notesSvc := notes.New(repo, repo, noteCache, publishers, log)
	authSvc := auth.New(repo, hasher, log, notesSvc.OwnerDeleted)

	router := httpx.NewRouter(log, authSvc, notesSvc, hub, repo.Ping, httpx.Options{
		Realm:            cfg.AuthRealm,
		OpenRegistration: cfg.OpenRegistration,
		Heartbeat:        cfg.EventsHeartbeat,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "driver", cfg.DBDriver, "open_registration", cfg.OpenRegistration)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
