// main package for the audio-processor service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/tanmay-maloo/audio-processor/internal/config"
	"github.com/tanmay-maloo/audio-processor/internal/httpapi"
	"github.com/tanmay-maloo/audio-processor/internal/illustration"
	"github.com/tanmay-maloo/audio-processor/internal/jobstore"
	"github.com/tanmay-maloo/audio-processor/internal/objectstore"
	"github.com/tanmay-maloo/audio-processor/internal/transcription"
	"github.com/tanmay-maloo/audio-processor/internal/worker"
)

// Environment variable names for provider credentials. Keys come from the
// environment (or a .env file), never from the project file.
const (
	envTranscriptionAPIKey = "ASSEMBLYAI_API_KEY"
	envIllustrationAPIKey  = "GOOGLE_API_KEY"
)

const (
	defaultDeviceLogName  = "device.log"
	shutdownTimeout       = 10 * time.Second
	httpReadHeaderTimeout = 10 * time.Second
)

// Static errors.
var (
	errTranscriptionKeyNotSet = errors.New("ASSEMBLYAI_API_KEY environment variable not set")
	errIllustrationKeyNotSet  = errors.New("GOOGLE_API_KEY environment variable not set")
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "audio-processor-bootstrap.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	return log, nil
}

func connectNATS(cfg *config.Config) (*nats.Conn, nats.JetStreamContext, error) {
	natsConnection, err := nats.Connect(
		cfg.NATS.URL,
		nats.MaxReconnects(cfg.NATS.MaxReconnectAttempts),
		nats.ReconnectWait(time.Duration(cfg.NATS.ReconnectWaitSeconds)*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return natsConnection, jetstreamContext, nil
}

func buildStores(
	jetstreamContext nats.JetStreamContext,
	cfg *config.Config,
) (worker.Stores, *jobstore.NatsJobStore, error) {
	audioStore, err := objectstore.New(jetstreamContext, cfg.NATS.AudioBucket)
	if err != nil {
		return worker.Stores{}, nil, fmt.Errorf("failed to create audio store: %w", err)
	}

	imageStore, err := objectstore.New(jetstreamContext, cfg.NATS.ImageBucket)
	if err != nil {
		return worker.Stores{}, nil, fmt.Errorf("failed to create image store: %w", err)
	}

	rasterStore, err := objectstore.New(jetstreamContext, cfg.NATS.RasterBucket)
	if err != nil {
		return worker.Stores{}, nil, fmt.Errorf("failed to create raster store: %w", err)
	}

	jobs, err := jobstore.New(jetstreamContext, cfg.NATS.JobRecordBucket)
	if err != nil {
		return worker.Stores{}, nil, fmt.Errorf("failed to create job store: %w", err)
	}

	stores := worker.Stores{
		Audio:  audioStore,
		Image:  imageStore,
		Raster: rasterStore,
	}

	return stores, jobs, nil
}

func buildTranscriber(cfg *config.Config) (*transcription.Client, error) {
	apiKey := os.Getenv(envTranscriptionAPIKey)
	if apiKey == "" {
		return nil, errTranscriptionKeyNotSet
	}

	var opts []transcription.Option

	if cfg.Transcription.SpeechModel != "" {
		opts = append(opts, transcription.WithSpeechModel(cfg.Transcription.SpeechModel))
	}

	if cfg.Transcription.PollIntervalSeconds > 0 {
		opts = append(opts, transcription.WithPollInterval(
			time.Duration(cfg.Transcription.PollIntervalSeconds)*time.Second,
		))
	}

	if cfg.Transcription.TimeoutSeconds > 0 {
		opts = append(opts, transcription.WithTimeout(
			time.Duration(cfg.Transcription.TimeoutSeconds)*time.Second,
		))
	}

	client, err := transcription.NewClient(cfg.Transcription.BaseURL, apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription client: %w", err)
	}

	return client, nil
}

func buildIllustrator(cfg *config.Config) (*illustration.Client, error) {
	apiKey := os.Getenv(envIllustrationAPIKey)
	if apiKey == "" {
		return nil, errIllustrationKeyNotSet
	}

	var opts []illustration.Option

	if cfg.Illustration.Model != "" {
		opts = append(opts, illustration.WithModel(cfg.Illustration.Model))
	}

	if cfg.Illustration.TimeoutSeconds > 0 {
		opts = append(opts, illustration.WithTimeout(
			time.Duration(cfg.Illustration.TimeoutSeconds)*time.Second,
		))
	}

	client, err := illustration.NewClient(cfg.Illustration.BaseURL, apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create illustration client: %w", err)
	}

	return client, nil
}

func buildDeviceLog(cfg *config.Config) (*httpapi.DeviceLog, error) {
	logFileName := cfg.DeviceLog.LogFileName
	if logFileName == "" {
		logFileName = defaultDeviceLogName
	}

	deviceLog, err := httpapi.NewDeviceLog(filepath.Join(cfg.Paths.BaseLogsDir, logFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to create device log: %w", err)
	}

	return deviceLog, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// 2. Load provider credentials from a .env file when present
	dotenvErr := godotenv.Load()
	if dotenvErr != nil {
		bootstrapLog.Info("No .env file loaded: %v", dotenvErr)
	}

	// 3. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 4. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return runService(cfg, finalLog)
}

func runService(cfg *config.Config, finalLog *logger.Logger) error {
	natsConnection, jetstreamContext, err := connectNATS(cfg)
	if err != nil {
		return err
	}
	defer natsConnection.Close()

	stores, jobs, err := buildStores(jetstreamContext, cfg)
	if err != nil {
		return err
	}

	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		return err
	}

	illustrator, err := buildIllustrator(cfg)
	if err != nil {
		return err
	}

	deviceLog, err := buildDeviceLog(cfg)
	if err != nil {
		return err
	}

	pipelineWorker, err := worker.New(
		natsConnection,
		cfg.NATS.JobSubmittedSubject,
		cfg.NATS.JobFinishedSubject,
		stores,
		jobs,
		transcriber,
		illustrator,
		time.Duration(cfg.NATS.JobTimeoutSeconds)*time.Second,
		finalLog,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	apiServer := httpapi.New(httpapi.ServerConfig{
		Audio:          stores.Audio,
		Images:         stores.Image,
		Rasters:        stores.Raster,
		Jobs:           jobs,
		Publisher:      natsConnection,
		SubmitSubject:  cfg.NATS.JobSubmittedSubject,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		DeviceLog:      deviceLog,
		Log:            finalLog,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog, pipelineWorker, apiServer, deviceLog)
}

func serve(
	ctx context.Context,
	cfg *config.Config,
	finalLog *logger.Logger,
	pipelineWorker *worker.Worker,
	apiServer *httpapi.Server,
	deviceLog *httpapi.DeviceLog,
) error {
	errCh := make(chan error, 3)

	go func() {
		errCh <- pipelineWorker.Run(ctx)
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddress,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	go func() {
		serveErr := httpServer.ListenAndServe()
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}

		errCh <- serveErr
	}()

	if cfg.DeviceLog.UDPEnabled {
		udpListener, udpErr := httpapi.NewUDPListener(
			cfg.DeviceLog.UDPListenAddr, deviceLog, finalLog,
		)
		if udpErr != nil {
			return udpErr
		}

		go func() {
			errCh <- udpListener.Run(ctx)
		}()
	}

	finalLog.System(
		"Audio processor initialized. HTTP on %s, jobs on subject: %s",
		cfg.HTTP.ListenAddress, cfg.NATS.JobSubmittedSubject,
	)

	var runErr error

	select {
	case <-ctx.Done():
		finalLog.Info("Shutdown signal received.")
	case runErr = <-errCh:
		if runErr != nil {
			finalLog.Error("Service component failed: %v", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		finalLog.Error("Failed to shut down HTTP server cleanly: %v", shutdownErr)
	}

	if runErr != nil {
		return fmt.Errorf("service component failed: %w", runErr)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
