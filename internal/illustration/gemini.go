// Package illustration provides the image-generation provider client.
//
// The provider is a Gemini-style generateContent REST API. The generated
// illustration arrives as base64 image data, either in a structured inline
// data part or embedded in returned text as a data URL; both are handled.
package illustration

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

// Default provider settings.
const (
	defaultModel   = "gemini-2.5-flash-image-preview"
	defaultTimeout = 2 * time.Minute
)

// HTTP details.
const (
	headerContentType = "Content-Type"
	headerAPIKey      = "x-goog-api-key"
	contentTypeJSON   = "application/json"
)

// The illustration prompt. The printer renders pure black-and-white line art,
// so the prompt forbids grayscale and color fill, and pins the provider's
// native 685x913 output size.
const (
	promptTemplate = "A cheerful, kid-friendly cartoon-style **pure black line art drawing** of a %s. " +
		"**Subject is large and fills the canvas well**, with an expressive face, varied hairstyles, and dynamic pose. " +
		"**Bold, clean outlines on a stark white background**, resembling a simple coloring book page. " +
		"Includes basic, engaging background elements like grass, sky, and playful sports equipment, framed to enhance the main subject. " +
		"Details suitable for kids. Pixel dimensions: **685px width, 913px height (3:4 aspect ratio)**. " +
		"**No grayscale, no shading, no color fill whatsoever.**"

	negativePrompt = "color, grayscale, shading, shadows, gradients, textures, photorealistic, 3D, complex, " +
		"ugly, disfigured, scary, boring, dull, muted, abstract, text, signature, watermark, logo, " +
		"multiple subjects, small subject, too much white space, empty background"
)

// Static errors.
var (
	// ErrAPIKeyEmpty indicates that no provider API key was supplied.
	ErrAPIKeyEmpty = errors.New("illustration api key cannot be empty")
	// ErrSubjectEmpty indicates an empty illustration subject.
	ErrSubjectEmpty = errors.New("illustration subject cannot be empty")
	// ErrNoImageData indicates the provider response carried no image.
	ErrNoImageData = errors.New("no image data found in provider response")
)

// dataURLPattern matches inline data URLs some provider responses embed in
// text parts instead of structured inline data.
var dataURLPattern = regexp.MustCompile(`data:image/[^;]+;base64,([A-Za-z0-9+/=]+)`)

// Client talks to the image-generation provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// Option adjusts optional client settings.
type Option func(*Client)

// WithModel selects the provider image model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout bounds each generation call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient creates an illustration client for the provider at baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyEmpty
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      defaultModel,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateIllustration asks the provider for a line-art drawing of subject
// and returns the decoded image bytes (PNG).
func (c *Client) GenerateIllustration(ctx context.Context, subject string) ([]byte, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	prompt := fmt.Sprintf(promptTemplate, subject) + "\n\nNegative: " + negativePrompt

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create generation request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf(
			"API request failed with status %d: %s", resp.StatusCode, string(errBody),
		)
	}

	var generated generateResponse

	err = json.NewDecoder(resp.Body).Decode(&generated)
	if err != nil {
		return nil, fmt.Errorf("failed to decode generation response: %w", err)
	}

	return extractImage(&generated)
}

// extractImage pulls the first image out of the response: structured inline
// data parts are preferred, data URLs inside text parts are the fallback.
func extractImage(resp *generateResponse) ([]byte, error) {
	for _, candidate := range resp.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}

			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode inline image data: %w", err)
			}

			return data, nil
		}
	}

	for _, candidate := range resp.Candidates {
		for _, p := range candidate.Content.Parts {
			match := dataURLPattern.FindStringSubmatch(p.Text)
			if match == nil {
				continue
			}

			data, err := base64.StdEncoding.DecodeString(match[1])
			if err != nil {
				return nil, fmt.Errorf("failed to decode data URL image: %w", err)
			}

			return data, nil
		}
	}

	return nil, ErrNoImageData
}
