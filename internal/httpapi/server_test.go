// Package httpapi_test tests the upload and retrieval API.
package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanmay-maloo/audio-processor/internal/core"
	"github.com/tanmay-maloo/audio-processor/internal/events"
	"github.com/tanmay-maloo/audio-processor/internal/httpapi"
)

const validUploadConfig = `{
	"encoding": "LINEAR16",
	"sampleRateHz": 16000,
	"languageCode": "en-US",
	"audioChannelCount": 1
}`

// memoryStore is an in-memory ObjectStore.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}

	return data, nil
}

func (m *memoryStore) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = data

	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)

	return nil
}

// memoryJobStore is an in-memory JobStore.
type memoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]core.Job
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[string]core.Job)}
}

func (m *memoryJobStore) Create(_ context.Context, job *core.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.ID] = *job

	return nil
}

func (m *memoryJobStore) Get(_ context.Context, jobID string) (*core.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, errors.New("job not found: " + jobID)
	}

	return &job, nil
}

func (m *memoryJobStore) Update(_ context.Context, job *core.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.UpdatedAt = time.Now().UTC()
	m.jobs[job.ID] = *job

	return nil
}

func (m *memoryJobStore) seed(t *testing.T, job core.Job) {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs[job.ID] = job
}

// recordingPublisher captures published payloads.
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)

	return nil
}

func (p *recordingPublisher) published() ([]string, [][]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.subjects, p.payloads
}

type apiHarness struct {
	server    *httptest.Server
	audio     *memoryStore
	images    *memoryStore
	rasters   *memoryStore
	jobs      *memoryJobStore
	publisher *recordingPublisher
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "httpapi-test.log")
	require.NoError(t, err)

	harness := &apiHarness{
		audio:     newMemoryStore(),
		images:    newMemoryStore(),
		rasters:   newMemoryStore(),
		jobs:      newMemoryJobStore(),
		publisher: &recordingPublisher{},
	}

	apiServer := httpapi.New(httpapi.ServerConfig{
		Audio:         harness.audio,
		Images:        harness.images,
		Rasters:       harness.rasters,
		Jobs:          harness.jobs,
		Publisher:     harness.publisher,
		SubmitSubject: "test.jobs.submitted",
		Log:           testLogger,
	})

	harness.server = httptest.NewServer(apiServer.Handler())
	t.Cleanup(harness.server.Close)

	return harness
}

// buildUpload assembles the multipart body the recorder sends. An empty
// config or filename omits that part.
func buildUpload(t *testing.T, config, filename string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if config != "" {
		require.NoError(t, writer.WriteField("config", config))
	}

	if filename != "" {
		part, err := writer.CreateFormFile("audio_file", filename)
		require.NoError(t, err)

		_, err = part.Write(audio)
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func decodeErrorBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	var payload map[string]string

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	return payload["error"]
}

func TestTranscribeAccepted(t *testing.T) {
	t.Parallel()

	harness := newAPIHarness(t)

	audioData := []byte("pretend this is PCM audio")
	body, contentType := buildUpload(t, validUploadConfig, "clip.wav", audioData)

	resp, err := http.Post(harness.server.URL+"/api/transcribe", contentType, body)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted map[string]string

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	require.NotEmpty(t, accepted["id"])
	assert.Equal(t, string(core.StatusPending), accepted["status"])

	job, err := harness.jobs.Get(context.Background(), accepted["id"])
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, job.Status)
	assert.Equal(t, "clip.wav", job.AudioFilename)

	storedAudio, err := harness.audio.Download(context.Background(), job.AudioKey)
	require.NoError(t, err)
	assert.Equal(t, audioData, storedAudio)

	subjects, payloads := harness.publisher.published()
	require.Len(t, subjects, 1)
	assert.Equal(t, "test.jobs.submitted", subjects[0])

	var event events.JobSubmittedEvent

	require.NoError(t, json.Unmarshal(payloads[0], &event))
	assert.Equal(t, job.ID, event.Header.JobID)
	assert.Equal(t, job.AudioKey, event.AudioKey)
	assert.Equal(t, "en-US", event.LanguageCode)
}

func TestTranscribeValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		config       string
		filename     string
		wantContains string
	}{
		{
			name:         "missing config",
			config:       "",
			filename:     "clip.wav",
			wantContains: "missing config parameter",
		},
		{
			name:         "invalid config JSON",
			config:       "{not json",
			filename:     "clip.wav",
			wantContains: "invalid JSON",
		},
		{
			name:         "missing config fields",
			config:       `{"encoding": "LINEAR16", "sampleRateHz": 16000}`,
			filename:     "clip.wav",
			wantContains: "languageCode, audioChannelCount",
		},
		{
			name:         "out of range sample rate",
			config:       `{"encoding": "LINEAR16", "sampleRateHz": 0, "languageCode": "en-US", "audioChannelCount": 1}`,
			filename:     "clip.wav",
			wantContains: "sampleRateHz",
		},
		{
			name:         "unsupported encoding",
			config:       `{"encoding": "VORBIS", "sampleRateHz": 16000, "languageCode": "en-US", "audioChannelCount": 1}`,
			filename:     "clip.wav",
			wantContains: "encoding",
		},
		{
			name:         "missing audio file",
			config:       validUploadConfig,
			filename:     "",
			wantContains: "missing audio_file parameter",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			harness := newAPIHarness(t)

			body, contentType := buildUpload(t, testCase.config, testCase.filename, []byte("audio"))

			resp, err := http.Post(harness.server.URL+"/api/transcribe", contentType, body)
			require.NoError(t, err)

			defer resp.Body.Close()

			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, decodeErrorBody(t, resp), testCase.wantContains)

			subjects, _ := harness.publisher.published()
			assert.Empty(t, subjects, "rejected uploads must not publish events")
		})
	}
}

func TestJobInfo(t *testing.T) {
	t.Parallel()

	harness := newAPIHarness(t)

	now := time.Now().UTC().Truncate(time.Second)
	harness.jobs.seed(t, core.Job{
		ID:          "job-1",
		Status:      core.StatusCompleted,
		Text:        "a cat in a hat",
		ImageKey:    "img.png",
		RasterKey:   "raster.bin",
		RasterBytes: 24528,
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	resp, err := http.Get(harness.server.URL + "/api/jobs/job-1")
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var info struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Text        string `json:"text"`
		HasRaster   bool   `json:"has_raster"`
		RasterBytes int    `json:"raster_bytes"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "job-1", info.ID)
	assert.Equal(t, "completed", info.Status)
	assert.Equal(t, "a cat in a hat", info.Text)
	assert.True(t, info.HasRaster)
	assert.Equal(t, 24528, info.RasterBytes)
}

func TestJobInfoNotFound(t *testing.T) {
	t.Parallel()

	harness := newAPIHarness(t)

	resp, err := http.Get(harness.server.URL + "/api/jobs/nope")
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobText(t *testing.T) {
	t.Parallel()

	harness := newAPIHarness(t)
	harness.jobs.seed(t, core.Job{
		ID:     "job-1",
		Status: core.StatusCompleted,
		Text:   "a dog on a skateboard",
	})
	harness.jobs.seed(t, core.Job{
		ID:     "job-2",
		Status: core.StatusProcessing,
	})

	resp, err := http.Get(harness.server.URL + "/api/jobs/job-1/text")
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "a dog on a skateboard", string(text))

	pending, err := http.Get(harness.server.URL + "/api/jobs/job-2/text")
	require.NoError(t, err)

	defer pending.Body.Close()

	assert.Equal(t, http.StatusNotFound, pending.StatusCode)
}

func TestJobImage(t *testing.T) {
	t.Parallel()

	harness := newAPIHarness(t)

	imageData := []byte("\x89PNG fake image bytes")
	require.NoError(
		t,
		harness.images.Upload(context.Background(), "img.png", imageData),
	)
	harness.jobs.seed(t, core.Job{
		ID:       "job-1",
		Status:   core.StatusCompleted,
		ImageKey: "img.png",
	})

	resp, err := http.Get(harness.server.URL + "/api/jobs/job-1/image")
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, imageData, got)
}

func TestJobRawExactBytes(t *testing.T) {
	t.Parallel()

	harness := newAPIHarness(t)

	rasterData := bytes.Repeat([]byte{0xFF, 0x00, 0xA5}, 16*511)
	require.NoError(
		t,
		harness.rasters.Upload(context.Background(), "raster.bin", rasterData),
	)
	harness.jobs.seed(t, core.Job{
		ID:          "job-1",
		Status:      core.StatusCompleted,
		RasterKey:   "raster.bin",
		RasterBytes: len(rasterData),
	})

	resp, err := http.Get(harness.server.URL + "/api/jobs/job-1/raw")
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, rasterData, got, "raw endpoint must serve the packed bytes unchanged")
}

func TestJobRawNotAvailable(t *testing.T) {
	t.Parallel()

	harness := newAPIHarness(t)
	harness.jobs.seed(t, core.Job{
		ID:     "job-1",
		Status: core.StatusFailed,
	})

	resp, err := http.Get(harness.server.URL + "/api/jobs/job-1/raw")
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	harness := newAPIHarness(t)

	resp, err := http.Get(harness.server.URL + "/api/health")
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]string

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "healthy", payload["status"])
}
