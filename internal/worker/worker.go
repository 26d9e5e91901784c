// Package worker provides the NATS worker that runs the
// transcribe-illustrate-rasterize pipeline for submitted jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/tanmay-maloo/audio-processor/internal/core"
	"github.com/tanmay-maloo/audio-processor/internal/events"
	"github.com/tanmay-maloo/audio-processor/internal/raster"
	"github.com/tanmay-maloo/audio-processor/internal/text"
)

// defaultJobTimeout bounds one whole pipeline run when no timeout is
// configured. Transcription polling dominates it.
const defaultJobTimeout = 5 * time.Minute

// Static errors.
var (
	// ErrAudioKeyEmpty indicates a submitted event without an audio blob key.
	ErrAudioKeyEmpty = errors.New("audio key cannot be empty")
	// ErrJobIDEmpty indicates a submitted event without a job identifier.
	ErrJobIDEmpty = errors.New("job id cannot be empty")
)

// Stores groups the blob buckets the pipeline reads and writes.
type Stores struct {
	Audio  core.ObjectStore
	Image  core.ObjectStore
	Raster core.ObjectStore
}

// Worker listens for submitted jobs on a NATS subject and processes them.
type Worker struct {
	natsConnection  *nats.Conn
	subject         string
	finishedSubject string
	stores          Stores
	jobs            core.JobStore
	transcriber     core.Transcriber
	illustrator     core.Illustrator
	sanitizer       *text.Sanitizer
	jobTimeout      time.Duration
	log             *logger.Logger
}

// New creates a worker. jobTimeout bounds a single pipeline run; zero or
// negative selects the default.
func New(
	natsConnection *nats.Conn,
	subject string,
	finishedSubject string,
	stores Stores,
	jobs core.JobStore,
	transcriber core.Transcriber,
	illustrator core.Illustrator,
	jobTimeout time.Duration,
	log *logger.Logger,
) (*Worker, error) {
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}

	return &Worker{
		natsConnection:  natsConnection,
		subject:         subject,
		finishedSubject: finishedSubject,
		stores:          stores,
		jobs:            jobs,
		transcriber:     transcriber,
		illustrator:     illustrator,
		sanitizer:       text.NewSanitizer(),
		jobTimeout:      jobTimeout,
		log:             log,
	}, nil
}

// Run starts the worker and blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *Worker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	event, err := parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	job, err := w.processJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to process job %s: %v", event.Header.JobID, err)

		return
	}

	finished := &events.JobFinishedEvent{
		Header: events.EventHeader{
			Timestamp: time.Now().UTC(),
			JobID:     job.ID,
			EventID:   uuid.NewString(),
		},
		Status:    string(job.Status),
		Text:      job.Text,
		ImageKey:  job.ImageKey,
		RasterKey: job.RasterKey,
	}

	err = w.publishFinishedEvent(msg, finished)
	if err != nil {
		w.log.Error("Failed to publish finished event for job %s: %v", job.ID, err)
	}
}

// processJob runs the pipeline for one submitted job and returns the job
// record in its terminal state.
//
// Transcription failure fails the job. Illustration or rasterization failure
// after a successful transcription does not: the transcript retains value on
// its own, so the job completes with the error recorded and no image or
// raster keys set.
func (w *Worker) processJob(ctx context.Context, event *events.JobSubmittedEvent) (*core.Job, error) {
	job, err := w.jobs.Get(ctx, event.Header.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job record: %w", err)
	}

	job.Status = core.StatusProcessing

	err = w.jobs.Update(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to mark job processing: %w", err)
	}

	text, err := w.transcribe(ctx, event.AudioKey)
	if err != nil {
		job.Status = core.StatusFailed
		job.ErrorMessage = err.Error()

		updateErr := w.jobs.Update(ctx, job)
		if updateErr != nil {
			return nil, fmt.Errorf("failed to mark job failed: %w", updateErr)
		}

		w.log.Error("Transcription failed for job %s: %v", job.ID, err)

		return job, nil
	}

	job.Status = core.StatusCompleted
	job.Text = text

	err = w.jobs.Update(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to record transcript: %w", err)
	}

	w.log.Info("Transcription completed for job %s (%d chars)", job.ID, len(text))

	illustrateErr := w.illustrate(ctx, job)
	if illustrateErr != nil {
		// Graceful degradation: the transcript stands on its own.
		job.ErrorMessage = illustrateErr.Error()

		updateErr := w.jobs.Update(ctx, job)
		if updateErr != nil {
			return nil, fmt.Errorf("failed to record illustration error: %w", updateErr)
		}

		w.log.Warn("Illustration step failed for job %s: %v", job.ID, illustrateErr)

		return job, nil
	}

	err = w.jobs.Update(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to record artifacts: %w", err)
	}

	w.log.Info(
		"Job %s completed with raster %s (%d bytes)",
		job.ID, job.RasterKey, job.RasterBytes,
	)

	return job, nil
}

func (w *Worker) transcribe(ctx context.Context, audioKey string) (string, error) {
	audioData, err := w.stores.Audio.Download(ctx, audioKey)
	if err != nil {
		return "", fmt.Errorf("failed to download audio for key '%s': %w", audioKey, err)
	}

	text, err := w.transcriber.Transcribe(ctx, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	return text, nil
}

// illustrate generates the illustration, converts it to a printer raster and
// uploads both artifacts, filling in the job's keys on success.
func (w *Worker) illustrate(ctx context.Context, job *core.Job) error {
	subject := w.sanitizer.CleanSubject(job.Text)

	imageData, err := w.illustrator.GenerateIllustration(ctx, subject)
	if err != nil {
		return fmt.Errorf("failed to generate illustration: %w", err)
	}

	printerRaster, err := raster.RasterizeBytes(imageData)
	if err != nil {
		return fmt.Errorf("failed to rasterize illustration: %w", err)
	}

	imageKey := uuid.NewString() + ".png"

	err = w.stores.Image.Upload(ctx, imageKey, imageData)
	if err != nil {
		return fmt.Errorf("failed to upload illustration '%s': %w", imageKey, err)
	}

	rasterKey := uuid.NewString() + ".bin"

	err = w.stores.Raster.Upload(ctx, rasterKey, printerRaster.Data)
	if err != nil {
		return fmt.Errorf("failed to upload raster '%s': %w", rasterKey, err)
	}

	job.ImageKey = imageKey
	job.RasterKey = rasterKey
	job.RasterBytes = printerRaster.Size()

	return nil
}

func (w *Worker) publishFinishedEvent(msg *nats.Msg, finished *events.JobFinishedEvent) error {
	data, err := json.Marshal(finished)
	if err != nil {
		return fmt.Errorf("failed to marshal finished event: %w", err)
	}

	if msg.Reply != "" {
		err = msg.Respond(data)
		if err != nil {
			return fmt.Errorf("failed to respond with finished event: %w", err)
		}

		return nil
	}

	if w.finishedSubject == "" {
		return nil
	}

	err = w.natsConnection.Publish(w.finishedSubject, data)
	if err != nil {
		return fmt.Errorf("failed to publish finished event: %w", err)
	}

	return nil
}

func parseAndValidateEvent(msg *nats.Msg) (*events.JobSubmittedEvent, error) {
	var event events.JobSubmittedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.Header.JobID == "" {
		return nil, ErrJobIDEmpty
	}

	if event.AudioKey == "" {
		return nil, ErrAudioKeyEmpty
	}

	return &event, nil
}
