package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soaringjerry/tasktrail/internal/api"
	"github.com/soaringjerry/tasktrail/internal/config"
	"github.com/soaringjerry/tasktrail/internal/db"
	"github.com/soaringjerry/tasktrail/internal/middleware"
	"github.com/soaringjerry/tasktrail/internal/realtime"
	"github.com/soaringjerry/tasktrail/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	var cache services.LeaderboardCache
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis: %v, leaderboard served from the database", err)
			_ = rdb.Close()
		} else {
			defer rdb.Close()
			cache = db.NewRedisLeaderboard(rdb)
		}
	}
	leaderboard := services.NewLeaderboardService(store, cache)
	if err := leaderboard.Warm(ctx); err != nil {
		log.Printf("leaderboard: warm cache: %v", err)
	}

	hub := realtime.NewHub()
	go hub.Run(ctx)

	progress := services.NewProgressService(store, cfg.StreakLocation)
	progress.AddListener(leaderboard)
	progress.AddListener(hub)

	tasks := services.NewTaskClient(services.TaskClientConfig{
		BaseURL:  cfg.TaskAPIBase,
		APIKey:   cfg.TaskAPIKey,
		Lang:     cfg.TaskAPILang,
		Category: cfg.TaskAPICategory,
	}, newTaskHTTPClient(cfg))

	issuer := middleware.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	auth := services.NewAuthService(store, issuer.Sign, cfg.TokenTTL)
	auth.AddListener(leaderboard)
	profiles := services.NewProfileService(store)
	profiles.AddListener(leaderboard)

	router := api.NewRouter(api.Deps{
		Auth:         auth,
		Profiles:     profiles,
		Submissions:  services.NewSubmissionService(store, tasks, progress),
		Leaderboard:  leaderboard,
		Tasks:        tasks,
		Live:         http.HandlerFunc(hub.ServeWS),
		ClientAPIKey: cfg.ClientAPIKey,
		Commit:       cfg.Commit,
		BuildTime:    cfg.BuildTime,
	})

	handler := middleware.RequestLog(middleware.SecureHeaders(middleware.CORS(middleware.NoStore(
		middleware.LocaleMiddleware(middleware.WithAuth(issuer)(router.Handler()))))))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("TaskTrail server listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

func newTaskHTTPClient(cfg config.Config) *http.Client {
	client := &http.Client{Timeout: cfg.TaskAPITimeout}
	if cfg.TaskAPIInsecureTLS {
		log.Printf("warning: TLS verification disabled for %s", cfg.TaskAPIBase)
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed task servers
		client.Transport = transport
	}
	return client
}
