package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"watchdog/internal/auth"
	"watchdog/internal/capture"
	"watchdog/internal/classify"
	"watchdog/internal/config"
	"watchdog/internal/database"
	"watchdog/internal/detection"
	"watchdog/internal/incident"
	"watchdog/internal/motion"
	"watchdog/internal/pipeline"
	"watchdog/internal/store"
	"watchdog/internal/stream"
	"watchdog/internal/telegram"
	"watchdog/internal/ws"
)

func main() {
	var (
		hostF     = flag.String("host", "0.0.0.0", "Server host")
		httpPortF = flag.String("http-port", "8080", "HTTP port")
	)
	flag.Parse()

	// Setup logger. Replace logger with your own log package of choice.
	var (
		logger *log.Logger
	)
	{
		logger = log.New(os.Stderr, "[watchdog] ", log.Ltime)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("invalid configuration: %s", err)
	}

	// Incident index
	db, err := database.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("failed to open database: %s", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatalf("failed to migrate database: %s", err)
	}

	// Artifact storage: local directory behind a bounded-retry outbox.
	localStore, err := store.NewLocalStore(cfg.SaveDir)
	if err != nil {
		logger.Fatalf("failed to prepare save dir: %s", err)
	}
	var artifactStore store.Store = store.NewOutbox(localStore, 3, 0)

	// Live event fanout and alerting
	hub := ws.NewEventHub()
	alerts := telegram.NewNotifier(telegram.Config{
		BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		Enabled:  os.Getenv("TELEGRAM_ENABLED") == "true",
	})
	faces := detection.NewFaceCapture(cfg.FaceEndpoint)

	listeners := []incident.Listener{
		hub,
		alerts,
		// Index the incident as soon as it finalizes; the artifact path is
		// deterministic even while the outbox is still moving it.
		incident.ListenerFuncs{
			Finalized: func(meta store.Metadata) {
				rec := &database.IncidentRecord{
					ID:          meta.IncidentID,
					CameraID:    meta.CameraID,
					TriggeredAt: meta.TriggeredAt,
					FinalizedAt: meta.FinalizedAt,
					Probability: meta.Probability,
					Label:       meta.Label,
					MotionArea:  meta.MotionArea,
					Accumulated: meta.Accumulated,
					FrameCount:  meta.FrameCount,
					FPS:         meta.FPS,
					VideoPath:   localStore.VideoPath(meta.IncidentID),
				}
				if err := db.SaveIncident(rec); err != nil {
					logger.Printf("failed to index incident %s: %s", meta.IncidentID, err)
				}
			},
		},
	}
	if faces.IsEnabled() {
		listeners = append(listeners, incident.ListenerFuncs{
			Started: func(id string, trig incident.Trigger) {
				frame := trig.Frame
				go func() {
					if _, err := faces.CaptureForIncident(id, frame); err != nil {
						logger.Printf("face capture for incident %s failed: %s", id, err)
					}
				}()
			},
		})
	}

	// The staged pipeline: motion accumulation gates classification, a
	// confident verdict starts the recorder.
	recorder := incident.NewRecorder(incident.Config{
		CameraID:       cfg.CameraID,
		FPS:            cfg.FPS,
		PreSeconds:     cfg.PreSeconds,
		PostSeconds:    cfg.PostSeconds,
		CooldownFrames: cfg.CooldownFrames,
		Detached:       cfg.DetachedFinalize,
	}, incident.NewFFmpegEncoder(""), artifactStore, listeners...)

	classifier := classify.NewHTTPClassifier(cfg.ClassifierEndpoint, cfg.ClassifyTimeout)

	gating := pipeline.NewGatingPipeline(pipeline.Config{
		CameraID:          cfg.CameraID,
		ViolenceThreshold: cfg.ViolenceThreshold,
		ClassifyTimeout:   cfg.ClassifyTimeout,
	}, motion.NewAccumulator(cfg.Motion), classifier, recorder, hub)

	captureQueue := pipeline.NewFrameQueue(cfg.CaptureQueueSize)
	displayQueue := pipeline.NewFrameQueue(cfg.DisplayQueueSize)

	go gating.Run(captureQueue, displayQueue)

	mjpeg := stream.NewMJPEGStream(cfg.CameraID)
	go mjpeg.Run(displayQueue)

	source := capture.NewFrameSource(cfg.CameraID, cfg.Device, cfg.FPS, cfg.Width, cfg.Height, captureQueue)
	source.Start()

	authenticator := auth.NewAuthenticator()

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	// Setup interrupt handler. This optional step configures the process so
	// that SIGINT and SIGTERM signals cause the services to stop gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	addr := net.JoinHostPort(*hostF, *httpPortF)
	handleHTTPServer(ctx, addr, &serverDeps{
		cfg:           cfg,
		db:            db,
		localStore:    localStore,
		mjpeg:         mjpeg,
		hub:           hub,
		gating:        gating,
		classifier:    classifier,
		authenticator: authenticator,
	}, &wg, errc, logger)

	// Wait for signal.
	logger.Printf("exiting (%v)", <-errc)

	// Send cancellation signal to the goroutines.
	cancel()

	source.Stop()
	gating.Stop()
	mjpeg.Stop()

	wg.Wait()
	logger.Println("exited")
}
