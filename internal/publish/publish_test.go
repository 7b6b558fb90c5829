package publish

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/rmxr/internal/audio"
	"github.com/audiolibrelab/rmxr/internal/config"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

func testAsset() *audio.CapturedAsset {
	return &audio.CapturedAsset{
		ID:         uuid.New(),
		Data:       []byte("RIFF....WAVE"),
		MIMEType:   "audio/wav",
		SampleRate: 48000,
		Channels:   2,
		Duration:   3 * time.Second,
		CreatedAt:  time.Now(),
	}
}

func TestMetaDefaults(t *testing.T) {
	m := Meta{BPM: 126}.WithDefaults()
	if m.Style != "DJ Mix" || m.Key != "Mixed" || m.BPM != 126 {
		t.Errorf("Unexpected defaults: %+v", m)
	}
	m = Meta{Style: "Sunset set"}.WithDefaults()
	if m.Style != "Sunset set" {
		t.Errorf("Expected caption kept, got %s", m.Style)
	}
}

func TestDirPublisher(t *testing.T) {
	dir := t.TempDir()
	p := NewDirPublisher(dir, "dj-one")
	a := testAsset()

	post, err := p.Publish(context.Background(), a, Meta{BPM: 125})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if filepath.Dir(post.AudioURL) != filepath.Join(dir, "dj-one") {
		t.Errorf("Expected mix under user directory, got %s", post.AudioURL)
	}
	base := filepath.Base(post.AudioURL)
	if !strings.HasPrefix(base, "mix_") || !strings.HasSuffix(base, ".wav") {
		t.Errorf("Unexpected file name %s", base)
	}

	data, err := os.ReadFile(post.AudioURL)
	if err != nil || string(data) != string(a.Data) {
		t.Errorf("Expected mix bytes on disk, err=%v", err)
	}

	recordData, err := os.ReadFile(strings.TrimSuffix(post.AudioURL, ".wav") + ".yaml")
	if err != nil {
		t.Fatalf("Expected post record: %v", err)
	}
	var record Post
	if err := yaml.Unmarshal(recordData, &record); err != nil {
		t.Fatalf("Invalid post record: %v", err)
	}
	if record.ID != a.ID.String() || record.BPM != 125 || record.Style != "DJ Mix" || record.Key != "Mixed" {
		t.Errorf("Unexpected record: %+v", record)
	}
}

func TestDirPublisher_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewDirPublisher(dir, "").Publish(context.Background(), testAsset(), Meta{})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated without user, got %v", err)
	}

	if _, err := NewDirPublisher(dir, "u").Publish(context.Background(), nil, Meta{}); err == nil {
		t.Error("Expected error for missing asset")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDirPublisher(dir, "u").Publish(ctx, testAsset(), Meta{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected nothing written on failure, found %d entries", len(entries))
	}
}

func TestHTTPPublisher(t *testing.T) {
	a := testAsset()
	var gotAuth, gotStyle, gotType string
	var gotBytes []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotStyle = r.FormValue("style")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotType = hdr.Header.Get("Content-Type")
		gotBytes, _ = io.ReadAll(f)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"audio_url":"https://cdn.example.com/mix.wav"}`))
	}))
	defer srv.Close()

	p := NewHTTPPublisher(srv.URL, "tok", "dj-one")
	post, err := p.Publish(context.Background(), a, Meta{Style: "Warmup", BPM: 124})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if gotAuth != "Bearer tok" {
		t.Errorf("Expected bearer token, got %q", gotAuth)
	}
	if gotStyle != "Warmup" || gotType != "audio/wav" || string(gotBytes) != string(a.Data) {
		t.Errorf("Unexpected upload: style=%q type=%q bytes=%q", gotStyle, gotType, gotBytes)
	}
	if post.AudioURL != "https://cdn.example.com/mix.wav" || post.ID != a.ID.String() || post.BPM != 124 {
		t.Errorf("Unexpected post: %+v", post)
	}
}

func TestHTTPPublisher_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		unauth bool
	}{
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))

		_, err := NewHTTPPublisher(srv.URL, "tok", "").Publish(context.Background(), testAsset(), Meta{})
		srv.Close()

		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}
		if errors.Is(err, ErrUnauthenticated) != tt.unauth {
			t.Errorf("status %d: ErrUnauthenticated=%v, got %v", tt.status, tt.unauth, err)
		}
	}

	_, err := NewHTTPPublisher("http://127.0.0.1:1", "", "").Publish(context.Background(), testAsset(), Meta{})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated without token, got %v", err)
	}
}

func TestNew(t *testing.T) {
	p, err := New(config.PublishConfig{Backend: "directory", Directory: "/tmp/x", User: "u"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*DirPublisher); !ok {
		t.Errorf("Expected DirPublisher, got %T", p)
	}

	p, err = New(config.PublishConfig{Backend: "http", Endpoint: "https://example.com", Token: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*HTTPPublisher); !ok {
		t.Errorf("Expected HTTPPublisher, got %T", p)
	}

	if _, err := New(config.PublishConfig{Backend: "ftp"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
