// Package events defines the typed payloads exchanged over NATS between the
// HTTP surface and the processing worker.
package events

import "time"

// EventHeader carries the identity common to every event.
type EventHeader struct {
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"job_id"`
	EventID   string    `json:"event_id"`
}

// JobSubmittedEvent is published after an audio upload has been stored and a
// pending job record created. The worker consumes it to start the
// transcription pipeline.
type JobSubmittedEvent struct {
	Header        EventHeader `json:"header"`
	AudioKey      string      `json:"audio_key"`
	AudioFilename string      `json:"audio_filename"`
	LanguageCode  string      `json:"language_code,omitempty"`
}

// JobFinishedEvent is the worker's reply once a job reaches a terminal
// state. RasterKey is empty when the illustration step degraded gracefully.
type JobFinishedEvent struct {
	Header    EventHeader `json:"header"`
	Status    string      `json:"status"`
	Text      string      `json:"text,omitempty"`
	ImageKey  string      `json:"image_key,omitempty"`
	RasterKey string      `json:"raster_key,omitempty"`
}
