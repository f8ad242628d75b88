// Package renderer turns draft text into branded images. The production
// implementation calls fal.ai; tests and tenants without a render key use
// whatever fake the caller injects.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/inkwellhq/inkwell/pkg/models"
)

// ErrNoImages is returned when every requested image failed to render.
var ErrNoImages = errors.New("renderer: no images produced")

// Request describes one render job. Texts holds one entry per image;
// carousels pass one entry per slide.
type Request struct {
	Texts    []string
	Format   models.Format
	Branding map[string]string
}

// Renderer produces one PNG per requested text. A partial result is
// returned when some items fail; the error is non-nil only when nothing
// rendered.
type Renderer interface {
	Render(ctx context.Context, apiKey string, req Request) ([][]byte, error)
}

const (
	defaultFalEndpoint = "https://fal.run/fal-ai/flux/schnell"
	falTimeout         = 60 * time.Second
)

// Fal renders images through fal.ai's hosted diffusion endpoint.
type Fal struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// FalOption configures a Fal renderer.
type FalOption func(*Fal)

// WithEndpoint overrides the fal.ai endpoint, for tests.
func WithEndpoint(endpoint string) FalOption {
	return func(f *Fal) {
		if endpoint != "" {
			f.endpoint = endpoint
		}
	}
}

// WithLogger configures the renderer logger.
func WithLogger(logger *slog.Logger) FalOption {
	return func(f *Fal) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func NewFal(opts ...FalOption) *Fal {
	f := &Fal{
		endpoint: defaultFalEndpoint,
		client:   &http.Client{Timeout: falTimeout},
		logger:   slog.Default().With("component", "renderer"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type falRequest struct {
	Prompt    string `json:"prompt"`
	ImageSize string `json:"image_size"`
	NumImages int    `json:"num_images"`
}

type falResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// Render produces one image per text. Individual failures are logged and
// skipped; the call fails only when no image rendered at all.
func (f *Fal) Render(ctx context.Context, apiKey string, req Request) ([][]byte, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("renderer: missing api key")
	}
	var images [][]byte
	for i, text := range req.Texts {
		img, err := f.renderOne(ctx, apiKey, buildPrompt(text, req))
		if err != nil {
			f.logger.Warn("image render failed", "item", i, "error", err)
			continue
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	return images, nil
}

func (f *Fal) renderOne(ctx context.Context, apiKey, prompt string) ([]byte, error) {
	payload, err := json.Marshal(falRequest{
		Prompt:    prompt,
		ImageSize: "square_hd",
		NumImages: 1,
	})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Key "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("renderer: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out falResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("renderer: decode response: %w", err)
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("renderer: empty response")
	}
	return f.fetch(ctx, out.Images[0].URL)
}

func (f *Fal) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("renderer: fetch image: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// buildPrompt folds branding hints into the diffusion prompt.
func buildPrompt(text string, req Request) string {
	var b strings.Builder
	b.WriteString("Social media graphic")
	if req.Format == models.FormatCarousel {
		b.WriteString(" (carousel slide)")
	}
	b.WriteString(": ")
	b.WriteString(summarize(text))
	if style := req.Branding["style"]; style != "" {
		b.WriteString(". Visual style: " + style)
	}
	if palette := req.Branding["palette"]; palette != "" {
		b.WriteString(". Color palette: " + palette)
	}
	return b.String()
}

// summarize keeps prompts inside the model's useful range.
func summarize(text string) string {
	const max = 600
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	cut := strings.LastIndex(text[:max], " ")
	if cut < max/2 {
		cut = max
	}
	return text[:cut]
}
