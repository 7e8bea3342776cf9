package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skylark/internal/alerting"
	"skylark/internal/camera"
	"skylark/internal/gateway"
	"skylark/internal/platform/auth"
	"skylark/internal/platform/config"
	"skylark/internal/platform/logger"
	"skylark/internal/platform/metrics"
	"skylark/internal/stream"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	workerURL := config.GetEnv("WORKER_URL", "http://worker:8080")
	workerTimeout := config.GetEnvDuration("WORKER_TIMEOUT", stream.DefaultWorkerTimeout)
	authTokens := config.GetEnv("AUTH_TOKENS", "")
	camerasFile := config.GetEnv("CAMERAS_FILE", "")

	log := logger.New(logLevel, logFormat)

	registry := alerting.NewRegistry()
	met := metrics.New()
	broadcaster := alerting.NewBroadcaster(registry, log, met)
	alertStore := alerting.NewInMemoryAlertStore()
	alertHandler := alerting.NewHandler(alertStore, broadcaster, log, met)

	cameras := camera.NewInMemoryStore()
	if camerasFile != "" {
		n, err := cameras.LoadFile(camerasFile)
		if err != nil {
			log.Error("load cameras file failed", "path", camerasFile, "error", err)
			os.Exit(1)
		}
		log.Info("cameras loaded", "path", camerasFile, "count", n)
	}

	worker := stream.NewHTTPWorkerClient(workerURL, workerTimeout)
	orchestrator := stream.NewOrchestrator(worker, log, met)
	streamHandler := stream.NewHandler(orchestrator, cameras, log)

	gw := gateway.New(registry, log, met)
	verifier := auth.ParseStaticVerifier(authTokens)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetSubscribedClients(registry.SubscriberCount()) }).ServeHTTP(w, r)
	})
	r.Post("/alerts", alertHandler.IngestAlert)
	r.Get("/alerts", alertHandler.ListAlerts)
	r.Get("/ws", gw.ServeWS)
	r.Route("/cameras/{id}", func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))
		r.Post("/start", streamHandler.StartStream)
		r.Post("/stop", streamHandler.StopStream)
		r.Get("/status", streamHandler.StreamStatus)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"worker_url", workerURL,
		"worker_timeout", workerTimeout.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
