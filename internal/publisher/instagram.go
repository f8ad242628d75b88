// Package publisher pushes finished drafts to external platforms. The
// only production target today is the Instagram Graph API.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrProcessingTimeout means the media container never finished
	// processing before polling gave up.
	ErrProcessingTimeout = errors.New("publisher: media processing timed out")

	// ErrProcessingFailed means Instagram rejected the media container.
	ErrProcessingFailed = errors.New("publisher: media processing failed")
)

const (
	defaultGraphBase = "https://graph.facebook.com/v19.0"

	// Containers usually finish within seconds; a minute of polling
	// covers Instagram's slow path without hanging a chat forever.
	statusAttempts = 12
	statusInterval = 5 * time.Second
)

// Account carries the per-tenant Instagram credentials.
type Account struct {
	AccessToken string
	UserID      string
}

// Instagram publishes photos and carousels through the Graph API
// container flow: create, wait for processing, publish.
type Instagram struct {
	base     string
	client   *http.Client
	logger   *slog.Logger
	interval time.Duration
}

// Option configures the publisher.
type Option func(*Instagram)

// WithBaseURL overrides the Graph API base, for tests.
func WithBaseURL(base string) Option {
	return func(p *Instagram) {
		if base != "" {
			p.base = strings.TrimRight(base, "/")
		}
	}
}

// WithLogger configures the publisher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Instagram) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithStatusInterval overrides the polling interval, for tests.
func WithStatusInterval(d time.Duration) Option {
	return func(p *Instagram) {
		if d > 0 {
			p.interval = d
		}
	}
}

func NewInstagram(opts ...Option) *Instagram {
	p := &Instagram{
		base:     defaultGraphBase,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default().With("component", "publisher"),
		interval: statusInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishPhoto publishes one image with a caption and returns the media id.
func (p *Instagram) PublishPhoto(ctx context.Context, acct Account, imageURL, caption string) (string, error) {
	container, err := p.createContainer(ctx, acct, url.Values{
		"image_url": {imageURL},
		"caption":   {caption},
	})
	if err != nil {
		return "", err
	}
	if err := p.waitForContainer(ctx, acct, container); err != nil {
		return "", err
	}
	return p.publishContainer(ctx, acct, container)
}

// PublishCarousel publishes up to ten images as one carousel post.
func (p *Instagram) PublishCarousel(ctx context.Context, acct Account, imageURLs []string, caption string) (string, error) {
	if len(imageURLs) == 0 {
		return "", fmt.Errorf("publisher: carousel needs at least one image")
	}
	if len(imageURLs) > 10 {
		imageURLs = imageURLs[:10]
	}

	children := make([]string, 0, len(imageURLs))
	for _, u := range imageURLs {
		child, err := p.createContainer(ctx, acct, url.Values{
			"image_url":        {u},
			"is_carousel_item": {"true"},
		})
		if err != nil {
			return "", err
		}
		if err := p.waitForContainer(ctx, acct, child); err != nil {
			return "", err
		}
		children = append(children, child)
	}

	container, err := p.createContainer(ctx, acct, url.Values{
		"media_type": {"CAROUSEL"},
		"children":   {strings.Join(children, ",")},
		"caption":    {caption},
	})
	if err != nil {
		return "", err
	}
	if err := p.waitForContainer(ctx, acct, container); err != nil {
		return "", err
	}
	return p.publishContainer(ctx, acct, container)
}

type graphResponse struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Error      *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (p *Instagram) createContainer(ctx context.Context, acct Account, params url.Values) (string, error) {
	params.Set("access_token", acct.AccessToken)
	resp, err := p.post(ctx, fmt.Sprintf("%s/%s/media", p.base, acct.UserID), params)
	if err != nil {
		return "", fmt.Errorf("publisher: create container: %w", err)
	}
	return resp.ID, nil
}

// waitForContainer polls the container until it finishes processing.
// FINISHED, ERROR, and running out of attempts are three distinct
// outcomes; callers message the user differently for each.
func (p *Instagram) waitForContainer(ctx context.Context, acct Account, containerID string) error {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for attempt := 1; attempt <= statusAttempts; attempt++ {
		status, err := p.containerStatus(ctx, acct, containerID)
		if err != nil {
			return err
		}
		switch status {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("%w: container %s status %s", ErrProcessingFailed, containerID, status)
		}
		p.logger.Debug("container still processing", "container", containerID, "status", status, "attempt", attempt)

		timer.Reset(p.interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: container %s", ErrProcessingTimeout, containerID)
}

func (p *Instagram) containerStatus(ctx context.Context, acct Account, containerID string) (string, error) {
	u := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s", p.base, containerID, url.QueryEscape(acct.AccessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.do(req)
	if err != nil {
		return "", fmt.Errorf("publisher: container status: %w", err)
	}
	return resp.StatusCode, nil
}

func (p *Instagram) publishContainer(ctx context.Context, acct Account, containerID string) (string, error) {
	resp, err := p.post(ctx, fmt.Sprintf("%s/%s/media_publish", p.base, acct.UserID), url.Values{
		"creation_id":  {containerID},
		"access_token": {acct.AccessToken},
	})
	if err != nil {
		return "", fmt.Errorf("publisher: publish container: %w", err)
	}
	p.logger.Info("media published", "media_id", resp.ID)
	return resp.ID, nil
}

func (p *Instagram) post(ctx context.Context, endpoint string, params url.Values) (*graphResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req)
}

func (p *Instagram) do(req *http.Request) (*graphResponse, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var out graphResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode graph response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("graph api error %d: %s", out.Error.Code, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph api status %d", resp.StatusCode)
	}
	return &out, nil
}
