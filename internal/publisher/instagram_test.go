package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// graphServer fakes the container flow. statuses is the sequence of
// status_code values returned by successive polls.
type graphServer struct {
	statuses  []string
	polls     int
	created   []map[string]string
	published []string
}

func (g *graphServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/media"):
			_ = r.ParseForm()
			params := map[string]string{}
			for k := range r.Form {
				params[k] = r.Form.Get(k)
			}
			if params["access_token"] == "" {
				t.Error("create container missing access token")
			}
			g.created = append(g.created, params)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
		case strings.HasSuffix(r.URL.Path, "/media_publish"):
			_ = r.ParseForm()
			g.published = append(g.published, r.Form.Get("creation_id"))
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "media-99"})
		default:
			status := "IN_PROGRESS"
			if g.polls < len(g.statuses) {
				status = g.statuses[g.polls]
			}
			g.polls++
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "container-1", "status_code": status})
		}
	})
}

func newPublisher(srvURL string) *Instagram {
	return NewInstagram(WithBaseURL(srvURL), WithStatusInterval(time.Millisecond))
}

var acct = Account{AccessToken: "ig-token", UserID: "178414"}

func TestPublishPhoto(t *testing.T) {
	g := &graphServer{statuses: []string{"IN_PROGRESS", "FINISHED"}}
	srv := httptest.NewServer(g.handler(t))
	defer srv.Close()

	id, err := newPublisher(srv.URL).PublishPhoto(context.Background(), acct, "https://cdn.example/img.png", "fresh post")
	if err != nil {
		t.Fatalf("PublishPhoto() error = %v", err)
	}
	if id != "media-99" {
		t.Errorf("media id = %q", id)
	}
	if len(g.created) != 1 || g.created[0]["image_url"] != "https://cdn.example/img.png" || g.created[0]["caption"] != "fresh post" {
		t.Errorf("container params = %v", g.created)
	}
	if len(g.published) != 1 || g.published[0] != "container-1" {
		t.Errorf("published = %v", g.published)
	}
	if g.polls != 2 {
		t.Errorf("polls = %d, want 2", g.polls)
	}
}

func TestPublishPhotoProcessingError(t *testing.T) {
	g := &graphServer{statuses: []string{"ERROR"}}
	srv := httptest.NewServer(g.handler(t))
	defer srv.Close()

	_, err := newPublisher(srv.URL).PublishPhoto(context.Background(), acct, "https://cdn.example/img.png", "x")
	if !errors.Is(err, ErrProcessingFailed) {
		t.Errorf("error = %v, want ErrProcessingFailed", err)
	}
	if len(g.published) != 0 {
		t.Error("failed container was published anyway")
	}
}

func TestPublishPhotoProcessingTimeout(t *testing.T) {
	g := &graphServer{} // never reaches FINISHED
	srv := httptest.NewServer(g.handler(t))
	defer srv.Close()

	_, err := newPublisher(srv.URL).PublishPhoto(context.Background(), acct, "https://cdn.example/img.png", "x")
	if !errors.Is(err, ErrProcessingTimeout) {
		t.Errorf("error = %v, want ErrProcessingTimeout", err)
	}
	if g.polls != statusAttempts {
		t.Errorf("polls = %d, want %d", g.polls, statusAttempts)
	}
}

func TestPublishCarousel(t *testing.T) {
	// Two children plus the carousel container each finish immediately.
	g := &graphServer{statuses: []string{"FINISHED", "FINISHED", "FINISHED"}}
	srv := httptest.NewServer(g.handler(t))
	defer srv.Close()

	id, err := newPublisher(srv.URL).PublishCarousel(context.Background(), acct,
		[]string{"https://cdn.example/1.png", "https://cdn.example/2.png"}, "slides")
	if err != nil {
		t.Fatalf("PublishCarousel() error = %v", err)
	}
	if id != "media-99" {
		t.Errorf("media id = %q", id)
	}
	if len(g.created) != 3 {
		t.Fatalf("created %d containers, want 3", len(g.created))
	}
	if g.created[0]["is_carousel_item"] != "true" {
		t.Errorf("first child params = %v", g.created[0])
	}
	last := g.created[2]
	if last["media_type"] != "CAROUSEL" || last["children"] == "" {
		t.Errorf("carousel container params = %v", last)
	}
}

func TestPublishCarouselRejectsEmpty(t *testing.T) {
	if _, err := NewInstagram().PublishCarousel(context.Background(), acct, nil, "x"); err == nil {
		t.Error("expected error for empty carousel")
	}
}

func TestGraphAPIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid user id", "code": 100},
		})
	}))
	defer srv.Close()

	_, err := newPublisher(srv.URL).PublishPhoto(context.Background(), acct, "https://cdn.example/img.png", "x")
	if err == nil || !strings.Contains(err.Error(), "Invalid user id") {
		t.Errorf("error = %v, want graph api message", err)
	}
}
