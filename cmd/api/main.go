package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/event"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/task"
	taskrepo "github.com/ovaphlow/pitchfork/service-task-go/internal/task/repo"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-task-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/cache"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/utilities"
)

func main() {
	// best-effort: real environment wins when no .env exists
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	sugar.Infow("starting service-task", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.NewConfig(cfg.DatabaseURL))
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	users := userrepo.NewUserRepo(db)
	if err := users.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure users table: %v", err)
	}
	tasks := taskrepo.NewTaskRepo(db)
	if err := tasks.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure tasks table: %v", err)
	}

	redisCfg := cache.DefaultConfig()
	redisCfg.Host, redisCfg.Port = cfg.RedisHost, cfg.RedisPort
	redisCfg.Password, redisCfg.DB = cfg.RedisPassword, cfg.RedisDB
	store, err := cache.NewRedisStore(ctx, redisCfg)
	if err != nil {
		sugar.Fatalf("redis connect: %v", err)
	}
	defer store.Close()

	userSvc := user.NewUserService(users, user.BcryptHasher{Cost: cfg.BcryptCost})
	created, err := userSvc.EnsureAdmin(ctx, cfg.AdminPassword)
	if err != nil {
		sugar.Fatalf("seed admin: %v", err)
	}
	if created {
		sugar.Infow("seeded admin account", "username", user.AdminUsername)
	}
	if cfg.AdminPassword == "password" {
		sugar.Warn("admin account uses the default password; set ADMIN_PASSWORD")
	}

	bus := event.NewLocalBus(sugar)
	task.RegisterListeners(bus, sugar)
	if len(cfg.KafkaBrokers) > 0 {
		fwd, err := event.NewKafkaForwarder(ctx, event.KafkaForwarderConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, sugar)
		if err != nil {
			sugar.Fatalf("kafka: %v", err)
		}
		defer fwd.Close()
		fwd.Attach(bus, task.EventCreated, task.EventCompleted)
		sugar.Infow("forwarding task events to kafka", "topic", cfg.KafkaTopic)
	}

	issuer := auth.NewTokenIssuer(auth.IssuerConfig{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	})
	authSvc := auth.NewService(userSvc, userSvc.Hasher(), issuer, sugar)
	source := task.NewHTTPSource(cfg.ExternalAPIURL, cfg.ExternalAPIKey, nil)
	taskSvc := task.NewService(tasks, source, bus, cfg.ExternalAPIKey, sugar)

	handler := router.RegisterRoutes(sugar, router.Deps{
		Auth:        auth.NewHandler(authSvc, sugar),
		Tasks:       task.NewHandler(taskSvc, task.NewCache(store, cfg.CacheTTL, sugar), sugar),
		RequireAuth: auth.RequireAuth(authSvc, sugar),
		CORSOrigins: cfg.CORSOrigins,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running", "addr", srv.Addr)

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}
