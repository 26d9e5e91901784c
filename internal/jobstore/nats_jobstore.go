// Package jobstore persists job records in a NATS JetStream key-value
// bucket, keyed by the job's opaque identifier.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tanmay-maloo/audio-processor/internal/core"
)

// Static errors.
var (
	// ErrJobNotFound indicates that no record exists for the requested ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobIDEmpty indicates a record without an identifier.
	ErrJobIDEmpty = errors.New("job id cannot be empty")
	// ErrJobExists indicates an attempt to create a record twice.
	ErrJobExists = errors.New("job already exists")
)

// NatsJobStore implements core.JobStore on a JetStream key-value bucket.
// Records are stored as JSON; the revision history the bucket keeps is not
// exposed, callers only ever see the latest record.
type NatsJobStore struct {
	bucket string
	kv     nats.KeyValue
}

// New creates a NatsJobStore bound to bucketName, creating the bucket on
// first use.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsJobStore, error) {
	keyValue, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Job records for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create job record bucket '%s': %w", bucketName, err)
		}

		keyValue, err = jetstreamContext.KeyValue(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing job record bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsJobStore{
		bucket: bucketName,
		kv:     keyValue,
	}, nil
}

// Create stores a new job record. The record's CreatedAt and UpdatedAt are
// stamped here so all timestamps come from one place.
func (s *NatsJobStore) Create(_ context.Context, job *core.Job) error {
	if job.ID == "" {
		return ErrJobIDEmpty
	}

	_, err := s.kv.Get(job.ID)
	if err == nil {
		return fmt.Errorf("%w: '%s'", ErrJobExists, job.ID)
	}

	if !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("failed to check for existing job '%s': %w", job.ID, err)
	}

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	return s.put(job)
}

// Get returns the job record for id.
func (s *NatsJobStore) Get(_ context.Context, id string) (*core.Job, error) {
	if id == "" {
		return nil, ErrJobIDEmpty
	}

	entry, err := s.kv.Get(id)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: '%s'", ErrJobNotFound, id)
		}

		return nil, fmt.Errorf("failed to get job '%s' from bucket '%s': %w", id, s.bucket, err)
	}

	var job core.Job

	err = json.Unmarshal(entry.Value(), &job)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal job '%s': %w", id, err)
	}

	return &job, nil
}

// Update overwrites the record for an existing job and bumps UpdatedAt.
func (s *NatsJobStore) Update(_ context.Context, job *core.Job) error {
	if job.ID == "" {
		return ErrJobIDEmpty
	}

	_, err := s.kv.Get(job.ID)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return fmt.Errorf("%w: '%s'", ErrJobNotFound, job.ID)
		}

		return fmt.Errorf("failed to get job '%s' for update: %w", job.ID, err)
	}

	job.UpdatedAt = time.Now().UTC()

	return s.put(job)
}

func (s *NatsJobStore) put(job *core.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job '%s': %w", job.ID, err)
	}

	_, err = s.kv.Put(job.ID, data)
	if err != nil {
		return fmt.Errorf("failed to put job '%s' to bucket '%s': %w", job.ID, s.bucket, err)
	}

	return nil
}
