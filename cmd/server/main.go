package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/egrangel/facerecon-sub001/internal/api"
	"github.com/egrangel/facerecon-sub001/internal/auth"
	"github.com/egrangel/facerecon-sub001/internal/binding"
	"github.com/egrangel/facerecon-sub001/internal/config"
	"github.com/egrangel/facerecon-sub001/internal/data"
	"github.com/egrangel/facerecon-sub001/internal/detector"
	"github.com/egrangel/facerecon-sub001/internal/faceindex"
	"github.com/egrangel/facerecon-sub001/internal/middleware"
	"github.com/egrangel/facerecon-sub001/internal/recognition"
	"github.com/egrangel/facerecon-sub001/internal/scheduler"
	"github.com/egrangel/facerecon-sub001/internal/stream"
	"github.com/egrangel/facerecon-sub001/internal/tokens"
)

const serviceName = "facerecon-control"

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/default.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	// NATS is optional: without it the pipeline still persists detections,
	// only realtime fanout is disabled.
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name(serviceName))
		if err != nil {
			log.Printf("Warning: NATS connect failed: %v. Detection fanout disabled.", err)
			nc = nil
		} else {
			defer nc.Close()
		}
	}

	// Models
	userModel := data.UserModel{DB: db}
	cameraModel := data.CameraModel{DB: db}
	eventModel := data.EventModel{DB: db}
	eventCameraModel := data.EventCameraModel{DB: db}
	detectionModel := data.DetectionModel{DB: db}
	personFaceModel := data.PersonFaceModel{DB: db}

	// Auth
	tokenMgr := tokens.NewManager(cfg.Auth.SigningKey)
	blacklist := auth.NewRedisBlacklist(rdb)
	jwtAuth := middleware.NewJWTAuth(tokenMgr, blacklist)

	// Detector sidecar behind the timeout guard
	client := detector.NewHTTPClient(cfg.Detector.BaseURL, cfg.Detector.APIKey)
	if cfg.Detector.ConfidenceThreshold > 0 {
		client.SetConfidenceThreshold(cfg.Detector.ConfidenceThreshold)
	}
	guard := detector.NewGuard(client, cfg.DetectorTimeout())
	if err := guard.Initialize(ctx); err != nil {
		log.Printf("Warning: detector init failed: %v. Will retry on first frame.", err)
	}
	if cfg.Detector.ModelDir != "" {
		go detector.WatchModelDir(ctx, guard, cfg.Detector.ModelDir)
	}

	// ANN face index
	faceIndex := faceindex.New(personFaceModel, faceindex.Config{
		Threshold:   cfg.FaceIndex.Threshold,
		MinCapacity: cfg.FaceIndex.MinCapacity,
	})
	if err := faceIndex.Initialize(ctx); err != nil {
		log.Printf("Warning: face index build failed: %v. Recognition degraded until rebuild.", err)
	}

	// Event binding resolver with cross-instance invalidation
	bindingSvc := binding.NewService(eventCameraModel, eventModel, rdb)
	go bindingSvc.ListenInvalidations(ctx)

	// Recognition worker
	images := recognition.NewImageStore(cfg.Stream.UploadsRoot)
	var publisher recognition.EventPublisher
	if nc != nil {
		publisher = recognition.NewPublisher(nc, cfg.NATS.Subject, cfg.NATS.PublishRetryMax)
	}
	worker := recognition.NewWorker(guard, faceIndex, bindingSvc, detectionModel, images, publisher)

	// Frame extraction
	streamSvc := stream.NewService(stream.ProcessorFunc(func(ctx context.Context, f *stream.Frame) error {
		return worker.ProcessFrame(ctx, f.CameraID, f.OrganizationID, f.EventID, f.Data, f.CapturedAt)
	}))
	streamSvc.SetProcessInterval(cfg.ProcessInterval())
	streamSvc.StartHealthMonitor()

	// Scheduled-event orchestrator
	orch := scheduler.NewOrchestrator(eventModel, eventCameraModel, cameraModel, streamSvc, bindingSvc)
	orch.Start(ctx)

	// Handlers
	authHandler := api.NewAuthHandler(userModel, tokenMgr, blacklist)
	streamHandler := api.NewStreamHandler(streamSvc, cameraModel)
	faceRecHandler := api.NewFaceRecognitionHandler(streamSvc, cameraModel, faceIndex)
	eventHandler := api.NewEventHandler(eventModel, detectionModel, orch)

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.Stream.UploadsRoot))))

	r.Post("/api/v1/auth/login", authHandler.Login)
	r.Post("/api/v1/auth/refresh", authHandler.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(jwtAuth.Middleware)

		r.Post("/api/v1/auth/logout", authHandler.Logout)

		r.Get("/api/v1/streams", streamHandler.List)
		r.Post("/api/v1/streams/camera/{cameraID}/start", streamHandler.Start)
		r.Post("/api/v1/streams/camera/{cameraID}/stop", streamHandler.Stop)
		r.Get("/api/v1/streams/camera/{cameraID}/status", streamHandler.Status)
		r.Post("/api/v1/streams/{sessionID}/stop", streamHandler.StopByID)
		r.Get("/api/v1/streams/{sessionID}/status", streamHandler.StatusByID)

		r.Post("/api/v1/face-recognition/camera/{cameraID}/start", faceRecHandler.Start)
		r.Post("/api/v1/face-recognition/camera/{cameraID}/stop", faceRecHandler.Stop)
		r.Get("/api/v1/face-recognition/camera/{cameraID}/status", faceRecHandler.Status)
		r.Get("/api/v1/face-recognition/index", faceRecHandler.IndexStatus)
		r.Post("/api/v1/face-recognition/index/rebuild", faceRecHandler.RebuildIndex)
		r.Put("/api/v1/face-recognition/index/threshold", faceRecHandler.SetThreshold)

		r.Post("/api/v1/events/{eventID}/start", eventHandler.Start)
		r.Post("/api/v1/events/{eventID}/stop", eventHandler.Stop)
		r.Patch("/api/v1/events/{eventID}/status", eventHandler.SetStatus)
		r.Get("/api/v1/events/{eventID}/detections", eventHandler.Detections)
		r.Patch("/api/v1/detections/{detectionID}/status", eventHandler.ReviewDetection)
	})

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("Shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] Graceful shutdown: %v", err)
	}

	orch.Stop()
	streamSvc.Shutdown()
	cancel()
	guard.Close()
	log.Println("Server stopped")
}
