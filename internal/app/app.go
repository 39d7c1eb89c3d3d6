package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"animalcensus/internal/config"
	"animalcensus/internal/logger"
	"animalcensus/internal/metrics"
	"animalcensus/internal/models"
	"animalcensus/internal/repository"
	"animalcensus/internal/repository/influx"
	"animalcensus/internal/repository/mqtt"
	"animalcensus/internal/repository/sqlite"
	"animalcensus/internal/routes"
	"animalcensus/internal/services/ai"
	"animalcensus/internal/services/control"
	"animalcensus/internal/services/counting"
	"animalcensus/internal/services/detection"
	"animalcensus/internal/services/performance"
	"animalcensus/internal/services/pipeline"
	"animalcensus/internal/services/storage"
	"animalcensus/internal/services/telemetry"
	"animalcensus/internal/services/video"
	"animalcensus/internal/services/websocket"

	"github.com/google/uuid"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	sessionID  string
	model      *ai.NetModel
	store      repository.TelemetryRepository
	history    repository.TelemetryQuerier
	closeStore func() error
	sink       *telemetry.Sink
	aggregator *counting.Aggregator
	metrics    *metrics.Metrics
	hubService *websocket.HubService
	window     *video.Window
	commands   chan control.Command
	controller *pipeline.Controller
}

func NewApp(ctx context.Context) (*App, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.LogDirectory)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:    cfg,
		logger:    log,
		sessionID: uuid.NewString(),
		commands:  make(chan control.Command, 1),
	}

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.config

	whitelist, err := config.LoadClasses(cfg.ClassesPath)
	if err != nil {
		return err
	}
	a.logger.Info("Counting %d classes: %s", len(whitelist.Names()), strings.Join(whitelist.Names(), ", "))

	a.model, err = ai.NewNetModel(cfg.ModelPath, cfg.ModelConfigPath, a.logger)
	if err != nil {
		return err
	}
	adapter, err := detection.NewAdapter(a.model, whitelist, cfg.ConfidenceThreshold, cfg.DetectionTimeout)
	if err != nil {
		return err
	}

	if err := a.openStore(ctx); err != nil {
		return err
	}

	a.sink = telemetry.NewSink(a.store, a.logger, telemetry.Options{
		QueueSize:     cfg.TelemetryQueueSize,
		BatchSize:     cfg.TelemetryBatchSize,
		FlushInterval: cfg.TelemetryFlushInterval,
		RetryAttempts: cfg.RetryAttempts,
		RetryBase:     cfg.RetryBase,
	})
	a.aggregator = counting.NewAggregator()

	a.metrics = metrics.New()
	a.metrics.WatchTelemetry(a.sink)
	a.hubService = websocket.NewHubService(a.logger)
	a.metrics.WatchViewers(a.hubService.GetClientCount)

	displays := []pipeline.Display{
		websocket.NewPublisher(a.hubService, video.EncodeJPEG, a.aggregator.Snapshot, a.logger),
	}
	if cfg.Display {
		a.window = video.NewWindow("Animal Census", a.commands)
		displays = append(displays, a.window)
	}

	deps := pipeline.Dependencies{
		OpenSource: func() (pipeline.Source, error) {
			src, err := video.OpenSource(cfg.VideoSource, cfg.ReadTimeout)
			if err != nil {
				return nil, err
			}
			return src, nil
		},
		Detector:   adapter,
		Annotator:  video.NewAnnotator(whitelist),
		Aggregator: a.aggregator,
		Monitor:    performance.NewMonitor(cfg.FPSWindow),
		Sink:       a.sink,
		Displays:   displays,
		Snapshots:  storage.NewSnapshotService(cfg.SnapshotDirectory, a.sessionID, whitelist.Names(), a.logger),
		Commands:   a.commands,
		Logger:     a.logger,
		Metrics:    a.metrics,
	}
	if cfg.SaveOutput {
		deps.OpenEncoder = func(props models.SourceProps) (pipeline.Encoder, error) {
			w, err := video.OpenWriter(cfg.OutputPath, props)
			if err != nil {
				return nil, err
			}
			a.logger.Info("Recording to: %s", w.Path())
			return w, nil
		}
	}

	a.controller, err = pipeline.NewController(deps, pipeline.Options{
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		ShutdownFlushTimeout:   cfg.ShutdownFlushTimeout,
		DrawOverlay:            true,
		SaveOnExit:             true,
		Point: telemetry.PointMeta{
			Measurement: cfg.Measurement,
			SourceID:    cfg.SourceID,
			SessionID:   a.sessionID,
			Classes:     whitelist.Names(),
		},
	})
	return err
}

// openStore selects the telemetry backend. An unreachable InfluxDB or MQTT
// broker is not fatal: the sink retries and drops, the census keeps running.
func (a *App) openStore(ctx context.Context) error {
	cfg := a.config
	a.store = repository.Nop{}
	a.closeStore = func() error { return nil }

	switch cfg.StoreBackend {
	case "sqlite":
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open telemetry database: %w", err)
		}
		repo := sqlite.NewTelemetryRepository(db)
		a.store, a.history, a.closeStore = repo, repo, db.Close
		a.logger.Info("Telemetry store: sqlite %s", cfg.DBPath)

	case "influxdb":
		repo, reachable, err := influx.New(ctx, cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		if err != nil {
			return err
		}
		if !reachable {
			a.logger.Warning("InfluxDB at %s is not reachable yet, points will be retried", cfg.InfluxURL)
		}
		a.store, a.closeStore = repo, repo.Close
		a.logger.Info("Telemetry store: influxdb %s bucket %s", cfg.InfluxURL, cfg.InfluxBucket)

	case "mqtt":
		broker := cfg.MQTTBroker
		if !strings.Contains(broker, "://") {
			broker = "tcp://" + broker
		}
		repo, connected, err := mqtt.New(broker, "animalcensus-"+a.sessionID[:8], cfg.MQTTTopic, a.logger)
		if err != nil {
			a.logger.Warning("MQTT unavailable, telemetry disabled: %v", err)
			return nil
		}
		if !connected {
			a.logger.Warning("MQTT broker %s is not reachable yet, retrying in the background", broker)
		}
		a.store, a.closeStore = repo, repo.Close
		a.logger.Info("Telemetry store: mqtt %s topic %s", broker, cfg.MQTTTopic)

	default:
		a.logger.Info("Telemetry store disabled")
	}
	return nil
}

// Run serves HTTP and stdin commands in the background and runs the pipeline
// on the calling goroutine until it stops.
func (a *App) Run(ctx context.Context) error {
	a.sink.Start(ctx)
	go a.hubService.Run(ctx)

	if a.config.StdinCommands {
		reader := control.NewKeyReader(os.Stdin, a.commands)
		go func() {
			if err := reader.Run(ctx); err != nil {
				a.logger.Warning("Stdin commands stopped: %v", err)
			}
		}()
		a.logger.Info("Commands: q = quit, s = save snapshot, i = detection info")
	}

	var server *http.Server
	if a.config.Port > 0 {
		server = &http.Server{
			Addr: fmt.Sprintf(":%d", a.config.Port),
			Handler: routes.SetupRoutes(routes.Dependencies{
				Counts:      a.aggregator,
				State:       func() string { return a.controller.State().String() },
				SessionID:   a.sessionID,
				Hub:         a.hubService,
				History:     a.history,
				Measurement: a.config.Measurement,
				Metrics:     a.metrics.Handler(),
				LogDir:      a.config.LogDirectory,
				Logger:      a.logger,
			}),
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("HTTP server failed: %v", err)
			}
		}()
		a.logger.Info("Viewer: ws://localhost:%d/api/view, metrics: http://localhost:%d/metrics", a.config.Port, a.config.Port)
	}

	a.logger.Info("Animal census session %s on %s", a.sessionID, a.config.VideoSource)
	err := a.controller.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			a.logger.Warning("HTTP shutdown: %v", serr)
		}
	}
	return err
}

// Close releases the model, the window, the store and the log files.
func (a *App) Close() error {
	var errs []error
	if a.window != nil {
		errs = append(errs, a.window.Close())
	}
	if a.model != nil {
		errs = append(errs, a.model.Close())
	}
	if a.closeStore != nil {
		errs = append(errs, a.closeStore())
	}
	errs = append(errs, a.logger.Close())
	return errors.Join(errs...)
}
