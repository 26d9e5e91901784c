// Package core defines the capability interfaces and the job model shared by
// the HTTP surface and the processing worker.
package core

import (
	"context"
	"time"
)

// JobStatus tracks a job through its lifecycle.
type JobStatus string

// Job lifecycle states. A job is terminal once Completed or Failed.
const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job is the persisted record of one audio-to-print unit of work. Artifact
// keys reference blobs in the object store; they are write-once and never
// rewritten in place.
type Job struct {
	ID            string    `json:"id"`
	AudioFilename string    `json:"audio_filename"`
	AudioKey      string    `json:"audio_key"`
	Status        JobStatus `json:"status"`
	Text          string    `json:"text,omitempty"`
	ImageKey      string    `json:"image_key,omitempty"`
	RasterKey     string    `json:"raster_key,omitempty"`
	RasterBytes   int       `json:"raster_bytes,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasRaster reports whether a packed raster has been produced for this job.
func (j *Job) HasRaster() bool {
	return j.RasterKey != ""
}

// ObjectStore is a key-value blob store for audio, image and raster
// artifacts.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// JobStore persists job records addressable by their opaque identifier.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, job *Job) error
}

// Transcriber converts uploaded audio into text via an external
// speech-to-text provider.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Illustrator generates an encoded illustration (PNG) from a transcript via
// an external image-generation provider.
type Illustrator interface {
	GenerateIllustration(ctx context.Context, text string) ([]byte, error)
}
