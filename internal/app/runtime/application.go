// Package runtime boots the server: configuration, backends, service
// wiring, HTTP surface and graceful shutdown.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/nexushub/marketplace/internal/app"
	"github.com/nexushub/marketplace/internal/app/httpapi"
	"github.com/nexushub/marketplace/internal/app/storage/memory"
	"github.com/nexushub/marketplace/internal/app/storage/postgres"
	redisstore "github.com/nexushub/marketplace/internal/app/storage/redis"
	"github.com/nexushub/marketplace/internal/config"
	"github.com/nexushub/marketplace/internal/logging"
	"github.com/nexushub/marketplace/internal/mailer"
	"github.com/nexushub/marketplace/internal/metrics"
	"github.com/nexushub/marketplace/internal/middleware"
	"github.com/nexushub/marketplace/internal/platform/migrations"
	"github.com/nexushub/marketplace/internal/pubsub"
)

const shutdownGrace = 15 * time.Second

// Run boots the server and blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New("server", logging.Config(cfg.Logging))
	m := metrics.New()

	stores, closeDB, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if closeDB != nil {
		defer closeDB()
	}

	deps, closeRedis, err := buildDeps(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	if closeRedis != nil {
		defer closeRedis()
	}

	application := app.New(stores, deps)

	auth := middleware.NewAuth(cfg.Auth.Secret, log.WithField("component", "auth"),
		"/healthz", "/metrics", "/chat/ws/")
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	router := mux.NewRouter()
	router.Use(
		middleware.CORS,
		middleware.RequestLogger(log),
		middleware.Metrics(m),
		auth.Middleware,
		limiter.Middleware,
	)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	httpapi.NewHandler(application, auth).Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildStores selects PostgreSQL when a DSN is configured and the
// in-memory store otherwise.
func buildStores(ctx context.Context, cfg *config.Config, log *logging.Logger) (app.Stores, func(), error) {
	if cfg.Database.DSN == "" {
		log.Warn("no database configured, using in-memory storage")
		mem := memory.NewStore()
		return app.Stores{
			Applications:  mem,
			Notifications: mem,
			Chat:          mem,
			Projects:      mem,
			Users:         mem,
		}, nil, nil
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return app.Stores{}, nil, err
	}

	store := postgres.NewStore(db)
	return app.Stores{
		Applications:  store,
		Notifications: store,
		Chat:          store,
		Projects:      store,
		Users:         store,
	}, func() { db.Close() }, nil
}

// buildDeps selects Redis for the broker and unread counter when an
// address is configured, and SMTP for email when a host is configured.
func buildDeps(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *logging.Logger) (app.Deps, func(), error) {
	deps := app.Deps{Metrics: m, Logger: log}

	var cleanup func()
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return app.Deps{}, nil, fmt.Errorf("ping redis: %w", err)
		}
		deps.Counter = redisstore.NewCounter(client)
		deps.Broker = pubsub.NewRedisBroker(client)
		cleanup = func() { client.Close() }
	} else {
		log.Warn("no redis configured, chat fan-out and unread counts are instance-local")
	}

	if cfg.SMTP.Host != "" {
		deps.Mailer = mailer.NewSMTP(mailer.SMTPConfig(cfg.SMTP), log.WithField("component", "mailer"))
	}
	return deps, cleanup, nil
}
