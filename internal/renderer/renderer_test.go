package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inkwellhq/inkwell/pkg/models"
)

func newFalServer(t *testing.T, fail map[int]bool) *httptest.Server {
	t.Helper()
	calls := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG fake"))
			return
		}
		if r.Header.Get("Authorization") != "Key fal-secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		call := calls
		calls++
		if fail[call] {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]string{{"url": srv.URL + "/image.png"}},
		})
	}))
	return srv
}

func TestFalRendersEachText(t *testing.T) {
	srv := newFalServer(t, nil)
	defer srv.Close()

	f := NewFal(WithEndpoint(srv.URL))
	images, err := f.Render(context.Background(), "fal-secret", Request{
		Texts:  []string{"slide one", "slide two", "slide three"},
		Format: models.FormatCarousel,
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("got %d images, want 3", len(images))
	}
	for i, img := range images {
		if !bytes.HasPrefix(img, []byte("\x89PNG")) {
			t.Errorf("image %d is not the served payload", i)
		}
	}
}

func TestFalSkipsFailedItems(t *testing.T) {
	srv := newFalServer(t, map[int]bool{0: true})
	defer srv.Close()

	f := NewFal(WithEndpoint(srv.URL))
	images, err := f.Render(context.Background(), "fal-secret", Request{
		Texts: []string{"fails", "works"},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(images) != 1 {
		t.Errorf("got %d images, want 1", len(images))
	}
}

func TestFalAllFailed(t *testing.T) {
	srv := newFalServer(t, map[int]bool{0: true, 1: true})
	defer srv.Close()

	f := NewFal(WithEndpoint(srv.URL))
	_, err := f.Render(context.Background(), "fal-secret", Request{
		Texts: []string{"a", "b"},
	})
	if !errors.Is(err, ErrNoImages) {
		t.Errorf("error = %v, want ErrNoImages", err)
	}
}

func TestFalRequiresKey(t *testing.T) {
	f := NewFal()
	if _, err := f.Render(context.Background(), "", Request{Texts: []string{"x"}}); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestBuildPromptUsesBranding(t *testing.T) {
	got := buildPrompt("Morning routines that stick", Request{
		Branding: map[string]string{"style": "minimalist", "palette": "navy and cream"},
	})
	for _, want := range []string{"Morning routines", "minimalist", "navy and cream"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q: %q", want, got)
		}
	}
}
