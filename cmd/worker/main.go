package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/nabr/verification/internal/activities"
	"github.com/nabr/verification/internal/config"
	"github.com/nabr/verification/internal/metrics"
	"github.com/nabr/verification/internal/notify"
	"github.com/nabr/verification/internal/store"
	"github.com/nabr/verification/internal/verifier"
)

func main() {
	log.Println("🔐 Starting verification worker...")

	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", cfgPath, err)
		}
	} else {
		cfg = config.Default()
	}

	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := st.EnsureSchema(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Notifications flow through the in-process bus; the bus forwards to
	// Pub/Sub when configured, to the log otherwise.
	var sink notify.Notifier
	if cfg.PubSub.ProjectID != "" {
		ps, err := notify.NewPubSubNotifier(cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			log.Fatalf("Failed to init pubsub notifier: %v", err)
		}
		defer ps.Close()
		sink = ps
	} else {
		log.Println("PUBSUB_PROJECT_ID not set, notifications go to the log")
		sink = notify.NewLogNotifier()
	}
	bus := notify.NewBus()
	forwardCtx, stopForward := context.WithCancel(context.Background())
	defer stopForward()
	bus.Forward(forwardCtx, sink)

	m := metrics.New()

	checker := verifier.NewRegistryChecker(os.Getenv("CREDENTIAL_REGISTRY_URL"))
	verifierSvc := verifier.NewService(st, verifier.StoreLevels{Store: st}, checker, redisClient)

	acts := activities.New(st, bus, verifierSvc, activities.BasicScanner{},
		activities.NewLogReviewQueue(), m, cfg)

	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Temporal at %s: %v", cfg.Temporal.HostPort, err)
	}
	defer tc.Close()

	w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})
	registerAll(w, acts)

	// Ops surface: metrics plus liveness.
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	opsServer := &http.Server{
		Addr:    ":" + cfg.Metrics.Port,
		Handler: router,
	}
	go func() {
		log.Printf("Ops server listening on :%s", cfg.Metrics.Port)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Ops server failed: %v", err)
		}
	}()

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go runJanitor(janitorCtx, st)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("Worker polling task queue %q", cfg.Temporal.TaskQueue)
	if err := w.Start(); err != nil {
		log.Fatalf("Worker failed to start: %v", err)
	}

	<-stop
	log.Println("Shutting down...")
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ops server shutdown: %v", err)
	}
}
