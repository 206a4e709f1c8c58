package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lekha.app/internal/access"
	"lekha.app/internal/audit"
	"lekha.app/internal/auth"
	"lekha.app/internal/config"
	"lekha.app/internal/events"
	"lekha.app/internal/httpapi"
	"lekha.app/internal/ledger"
	"lekha.app/internal/obs"
	"lekha.app/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	tokenTTL := 24 * time.Hour
	if cfg.TokenTTL != "" {
		ttl, err := time.ParseDuration(cfg.TokenTTL)
		if err != nil {
			log.Fatalf("token_ttl: %v", err)
		}
		tokenTTL = ttl
	}

	var (
		svc       ledger.Service
		owners    access.OwnerResolver
		store     access.Store
		users     auth.UserStore
		recorder  audit.Recorder
		activity  httpapi.ActivityLister
		probe     httpapi.ReadyProbe
		pgStore   *pg.Store
		publisher events.Publisher = events.Noop{}
	)
	if cfg.DatabaseDSN != "" {
		pgStore, err = pg.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		svc = pgStore
		owners = pgStore
		store = pgStore
		users = pgStore
		recorder = pgStore
		activity = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		// Development mode: everything in memory, state lost on restart.
		log.Println("LEKHA_PG_DSN not set, running with in-memory stores")
		mem := &audit.Memory{}
		inmem := ledger.NewInMemory(mem)
		svc = inmem
		owners = inmem
		store = access.NewInMemoryStore()
		users = auth.NewInMemoryUsers()
		recorder = mem
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
	}

	accessSvc, err := access.NewService(store, owners, recorder)
	if err != nil {
		log.Fatalf("access: %v", err)
	}
	authSvc, err := auth.NewService(users, tokenTTL)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	api, err := httpapi.New(httpapi.Options{
		Ledger:    svc,
		Owners:    owners,
		Access:    accessSvc,
		Auth:      authSvc,
		Publisher: publisher,
		Activity:  activity,
		Probe:     probe,
		Version:   version,
	})
	if err != nil {
		log.Fatalf("httpapi: %v", err)
	}

	handler := api.Handler()
	handler, stopLimiter := httpapi.RateLimit(handler, cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	defer stopLimiter()
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting lekha-api %s on %s", version, srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
