// Package httpapi serves the upload and retrieval API for processing jobs.
//
// The surface mirrors what the handheld recorder expects: a multipart upload
// endpoint that accepts an audio clip plus a JSON config blob, and polling
// endpoints that expose the job record and its artifacts.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/tanmay-maloo/audio-processor/internal/audio"
	"github.com/tanmay-maloo/audio-processor/internal/core"
	"github.com/tanmay-maloo/audio-processor/internal/events"
)

// Form field and header constants.
const (
	formConfigField = "config"
	formAudioField  = "audio_file"

	headerContentType  = "Content-Type"
	contentTypeJSON    = "application/json"
	contentTypeText    = "text/plain; charset=utf-8"
	contentTypePNG     = "image/png"
	contentTypeByteRaw = "application/octet-stream"

	defaultMaxUploadBytes = 32 << 20
)

// Static errors.
var (
	// ErrMissingConfig indicates the multipart form had no config field.
	ErrMissingConfig = errors.New("missing config parameter")
	// ErrInvalidConfigJSON indicates the config field was not valid JSON.
	ErrInvalidConfigJSON = errors.New("invalid JSON in config parameter")
	// ErrMissingConfigFields indicates required audio config keys were absent.
	ErrMissingConfigFields = errors.New("missing required config fields")
	// ErrMissingAudioFile indicates the multipart form had no audio file.
	ErrMissingAudioFile = errors.New("missing audio_file parameter")
)

// requiredConfigFields are the audio configuration keys every upload must
// carry, in the order they are reported when absent.
var requiredConfigFields = []string{
	"encoding",
	"sampleRateHz",
	"languageCode",
	"audioChannelCount",
}

// Publisher publishes a raw payload to a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ServerConfig carries the dependencies of the API server.
type ServerConfig struct {
	Audio          core.ObjectStore
	Images         core.ObjectStore
	Rasters        core.ObjectStore
	Jobs           core.JobStore
	Publisher      Publisher
	SubmitSubject  string
	MaxUploadBytes int64
	DeviceLog      *DeviceLog
	Log            *logger.Logger
}

// Server is the HTTP API for submitting audio and retrieving job artifacts.
type Server struct {
	audio          core.ObjectStore
	images         core.ObjectStore
	rasters        core.ObjectStore
	jobs           core.JobStore
	publisher      Publisher
	submitSubject  string
	maxUploadBytes int64
	deviceLog      *DeviceLog
	log            *logger.Logger
}

// New creates the API server. MaxUploadBytes zero or negative selects the
// default. DeviceLog may be nil, which disables the device debug socket.
func New(cfg ServerConfig) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}

	return &Server{
		audio:          cfg.Audio,
		images:         cfg.Images,
		rasters:        cfg.Rasters,
		jobs:           cfg.Jobs,
		publisher:      cfg.Publisher,
		submitSubject:  cfg.SubmitSubject,
		maxUploadBytes: maxUploadBytes,
		deviceLog:      cfg.DeviceLog,
		log:            cfg.Log,
	}
}

// Handler returns the routed handler with request logging applied. The
// device socket sits outside the logging middleware because the upgrade
// hijacks the connection; it logs its own traffic.
func (s *Server) Handler() http.Handler {
	apiMux := http.NewServeMux()

	apiMux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	apiMux.HandleFunc("GET /api/jobs/{id}", s.handleJobInfo)
	apiMux.HandleFunc("GET /api/jobs/{id}/text", s.handleJobText)
	apiMux.HandleFunc("GET /api/jobs/{id}/image", s.handleJobImage)
	apiMux.HandleFunc("GET /api/jobs/{id}/raw", s.handleJobRaw)
	apiMux.HandleFunc("GET /api/health", s.handleHealth)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.logRequests(apiMux))

	if s.deviceLog != nil {
		mux.HandleFunc("GET /ws/device", s.handleDeviceSocket)
	}

	return mux
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	err := r.ParseMultipartForm(s.maxUploadBytes)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to parse multipart form: %w", err))

		return
	}

	audioConfig, err := parseUploadConfig(r.FormValue(formConfigField))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	file, header, err := r.FormFile(formAudioField)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrMissingAudioFile)

		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to read audio file: %w", err))

		return
	}

	s.log.Info(
		"Received audio file %s (%d bytes, %s, %d Hz)",
		header.Filename, len(audioData), audioConfig.Encoding, audioConfig.SampleRateHz,
	)

	jobID := uuid.NewString()
	audioKey := jobID + filepath.Ext(header.Filename)

	err = s.audio.Upload(r.Context(), audioKey, audioData)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to store audio: %w", err))

		return
	}

	job := &core.Job{
		ID:            jobID,
		AudioFilename: header.Filename,
		AudioKey:      audioKey,
		Status:        core.StatusPending,
	}

	err = s.jobs.Create(r.Context(), job)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to create job record: %w", err))

		return
	}

	err = s.publishSubmitted(job, audioConfig.LanguageCode)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to publish job: %w", err))

		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     job.ID,
		"status": string(job.Status),
	})
}

func (s *Server) publishSubmitted(job *core.Job, languageCode string) error {
	event := &events.JobSubmittedEvent{
		Header: events.EventHeader{
			Timestamp: time.Now().UTC(),
			JobID:     job.ID,
			EventID:   uuid.NewString(),
		},
		AudioKey:      job.AudioKey,
		AudioFilename: job.AudioFilename,
		LanguageCode:  languageCode,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal submitted event: %w", err)
	}

	err = s.publisher.Publish(s.submitSubject, data)
	if err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", s.submitSubject, err)
	}

	return nil
}

// jobInfoResponse is the polling view of a job record. It never carries pixel
// data.
type jobInfoResponse struct {
	ID            string    `json:"id"`
	AudioFilename string    `json:"audio_filename,omitempty"`
	Status        string    `json:"status"`
	Text          string    `json:"text,omitempty"`
	HasRaster     bool      `json:"has_raster"`
	RasterBytes   int       `json:"raster_bytes"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *Server) handleJobInfo(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	s.writeJSON(w, http.StatusOK, jobInfoResponse{
		ID:            job.ID,
		AudioFilename: job.AudioFilename,
		Status:        string(job.Status),
		Text:          job.Text,
		HasRaster:     job.HasRaster(),
		RasterBytes:   job.RasterBytes,
		Error:         job.ErrorMessage,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	})
}

func (s *Server) handleJobText(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	if job.Text == "" {
		s.writeError(w, http.StatusNotFound, errors.New("transcript not available"))

		return
	}

	w.Header().Set(headerContentType, contentTypeText)
	_, _ = w.Write([]byte(job.Text))
}

func (s *Server) handleJobImage(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	if job.ImageKey == "" {
		s.writeError(w, http.StatusNotFound, errors.New("illustration not available"))

		return
	}

	imageData, err := s.images.Download(r.Context(), job.ImageKey)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to load illustration: %w", err))

		return
	}

	w.Header().Set(headerContentType, contentTypePNG)
	_, _ = w.Write(imageData)
}

// handleJobRaw serves the packed raster exactly as stored. The printer
// consumes these bytes directly, so no framing is added.
func (s *Server) handleJobRaw(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	if job.RasterKey == "" {
		s.writeError(w, http.StatusNotFound, errors.New("raster not available"))

		return
	}

	rasterData, err := s.rasters.Download(r.Context(), job.RasterKey)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to load raster: %w", err))

		return
	}

	w.Header().Set(headerContentType, contentTypeByteRaw)
	_, _ = w.Write(rasterData)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "audio processor API is running",
	})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*core.Job, bool) {
	jobID := r.PathValue("id")

	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("job not found: %w", err))

		return nil, false
	}

	return job, true
}

func parseUploadConfig(raw string) (*audio.Config, error) {
	if raw == "" {
		return nil, ErrMissingConfig
	}

	var fields map[string]json.RawMessage

	err := json.Unmarshal([]byte(raw), &fields)
	if err != nil {
		return nil, ErrInvalidConfigJSON
	}

	var missing []string

	for _, field := range requiredConfigFields {
		_, present := fields[field]
		if !present {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfigFields, strings.Join(missing, ", "))
	}

	var parsed audio.Config

	err = json.Unmarshal([]byte(raw), &parsed)
	if err != nil {
		return nil, ErrInvalidConfigJSON
	}

	err = parsed.Validate()
	if err != nil {
		return nil, err
	}

	return &parsed, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		s.log.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed: %v", err)
	}

	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
