// Package transcription provides the speech-to-text provider client.
//
// The provider exposes an asynchronous REST API: raw audio is uploaded first,
// a transcript job is created against the returned URL, and the job is polled
// until it reaches a terminal state.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// API paths.
const (
	pathUpload     = "/v2/upload"
	pathTranscript = "/v2/transcript"
)

// HTTP headers.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
	contentTypeBinary   = "application/octet-stream"
)

// Transcript states reported by the provider.
const (
	statusQueued     = "queued"
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusError      = "error"
)

// Defaults applied when the configuration leaves a value unset.
const (
	defaultPollInterval = 3 * time.Second
	defaultTimeout      = 3 * time.Minute
	defaultSpeechModel  = "best"
)

// Static errors.
var (
	// ErrAPIKeyEmpty indicates that no provider API key was supplied.
	ErrAPIKeyEmpty = errors.New("transcription api key cannot be empty")
	// ErrAudioEmpty indicates an upload with no audio bytes.
	ErrAudioEmpty = errors.New("audio data cannot be empty")
	// ErrTranscriptFailed indicates the provider reported a failed transcript.
	ErrTranscriptFailed = errors.New("transcription failed")
)

// Client talks to the speech-to-text provider.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	speechModel  string
	pollInterval time.Duration
}

// Option adjusts optional client settings.
type Option func(*Client)

// WithSpeechModel selects the provider speech model.
func WithSpeechModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.speechModel = model
		}
	}
}

// WithPollInterval sets the delay between transcript status polls.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithTimeout bounds each individual HTTP call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient creates a transcription client for the provider at baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyEmpty
	}

	client := &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		baseURL:      baseURL,
		apiKey:       apiKey,
		speechModel:  defaultSpeechModel,
		pollInterval: defaultPollInterval,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL    string `json:"audio_url"`
	SpeechModel string `json:"speech_model,omitempty"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe uploads the audio, creates a transcript job and polls it to a
// terminal state. The context bounds the whole sequence including polling.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrAudioEmpty
	}

	audioURL, err := c.uploadAudio(ctx, audio)
	if err != nil {
		return "", err
	}

	transcriptID, err := c.createTranscript(ctx, audioURL)
	if err != nil {
		return "", err
	}

	return c.pollTranscript(ctx, transcriptID)
}

func (c *Client) uploadAudio(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+pathUpload, bytes.NewReader(audio),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set(headerAuthorization, c.apiKey)
	req.Header.Set(headerContentType, contentTypeBinary)

	var uploaded uploadResponse

	err = c.do(req, &uploaded)
	if err != nil {
		return "", fmt.Errorf("audio upload failed: %w", err)
	}

	return uploaded.UploadURL, nil
}

func (c *Client) createTranscript(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(transcriptRequest{
		AudioURL:    audioURL,
		SpeechModel: c.speechModel,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+pathTranscript, bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create transcript request: %w", err)
	}

	req.Header.Set(headerAuthorization, c.apiKey)
	req.Header.Set(headerContentType, contentTypeJSON)

	var created transcriptResponse

	err = c.do(req, &created)
	if err != nil {
		return "", fmt.Errorf("transcript creation failed: %w", err)
	}

	return created.ID, nil
}

func (c *Client) pollTranscript(ctx context.Context, transcriptID string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		transcript, err := c.getTranscript(ctx, transcriptID)
		if err != nil {
			return "", err
		}

		switch transcript.Status {
		case statusCompleted:
			return transcript.Text, nil
		case statusError:
			return "", fmt.Errorf("%w: %s", ErrTranscriptFailed, transcript.Error)
		case statusQueued, statusProcessing:
			// Keep polling.
		default:
			return "", fmt.Errorf("%w: unexpected status '%s'", ErrTranscriptFailed, transcript.Status)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("transcription cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) getTranscript(ctx context.Context, transcriptID string) (*transcriptResponse, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+pathTranscript+"/"+transcriptID, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript status request: %w", err)
	}

	req.Header.Set(headerAuthorization, c.apiKey)

	var transcript transcriptResponse

	err = c.do(req, &transcript)
	if err != nil {
		return nil, fmt.Errorf("transcript status request failed: %w", err)
	}

	return &transcript, nil
}

func (c *Client) do(req *http.Request, target any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	err = json.NewDecoder(resp.Body).Decode(target)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
