// Package illustration_test tests the image-generation provider client.
package illustration_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanmay-maloo/audio-processor/internal/illustration"
)

// testPNG returns a small valid PNG.
func testPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}

	img.Set(1, 1, color.Black)

	var buf bytes.Buffer

	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func newProvider(t *testing.T, respond func(prompt string) any) *httptest.Server {
	t.Helper()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.NotEmpty(t, r.Header.Get("x-goog-api-key"))

		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.NotEmpty(t, req.Contents[0].Parts)

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(respond(req.Contents[0].Parts[0].Text)))
	})

	return httptest.NewServer(handler)
}

func TestGenerateIllustrationInlineData(t *testing.T) {
	t.Parallel()

	pngData := testPNG(t)

	server := newProvider(t, func(prompt string) any {
		assert.Contains(t, prompt, "a girl playing football")
		assert.Contains(t, prompt, "line art")
		assert.Contains(t, prompt, "Negative:")

		return map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{
						{"text": "Here is your illustration."},
						{"inlineData": map[string]string{
							"mimeType": "image/png",
							"data":     base64.StdEncoding.EncodeToString(pngData),
						}},
					},
				},
			}},
		}
	})
	defer server.Close()

	client, err := illustration.NewClient(server.URL, "test-key")
	require.NoError(t, err)

	data, err := client.GenerateIllustration(context.Background(), "a girl playing football")
	require.NoError(t, err)

	assert.Equal(t, pngData, data)
}

func TestGenerateIllustrationDataURLFallback(t *testing.T) {
	t.Parallel()

	pngData := testPNG(t)
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)

	server := newProvider(t, func(string) any {
		return map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{
						{"text": "rendered inline: " + dataURL + " enjoy"},
					},
				},
			}},
		}
	})
	defer server.Close()

	client, err := illustration.NewClient(server.URL, "test-key")
	require.NoError(t, err)

	data, err := client.GenerateIllustration(context.Background(), "a cat")
	require.NoError(t, err)

	assert.Equal(t, pngData, data)
}

func TestGenerateIllustrationNoImage(t *testing.T) {
	t.Parallel()

	server := newProvider(t, func(string) any {
		return map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": "sorry, I cannot draw that"}},
				},
			}},
		}
	})
	defer server.Close()

	client, err := illustration.NewClient(server.URL, "test-key")
	require.NoError(t, err)

	_, err = client.GenerateIllustration(context.Background(), "a cat")
	require.ErrorIs(t, err, illustration.ErrNoImageData)
}

func TestGenerateIllustrationProviderError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := illustration.NewClient(server.URL, "test-key")
	require.NoError(t, err)

	_, err = client.GenerateIllustration(context.Background(), "a cat")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "429"))
}

func TestGenerateIllustrationValidation(t *testing.T) {
	t.Parallel()

	_, err := illustration.NewClient("http://localhost", "")
	require.ErrorIs(t, err, illustration.ErrAPIKeyEmpty)

	client, err := illustration.NewClient("http://localhost", "key")
	require.NoError(t, err)

	_, err = client.GenerateIllustration(context.Background(), "")
	require.ErrorIs(t, err, illustration.ErrSubjectEmpty)
}
