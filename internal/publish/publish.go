package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/audiolibrelab/rmxr/internal/audio"
	"github.com/audiolibrelab/rmxr/internal/config"
)

const (
	DefaultStyle = "DJ Mix"
	DefaultKey   = "Mixed"
)

// ErrUnauthenticated is returned when no user or token is configured, or
// the remote end refuses the credentials.
var ErrUnauthenticated = errors.New("must be authenticated to publish")

// Meta is the optional caption bundle sent with a mix.
type Meta struct {
	Style string `json:"style"`
	BPM   int    `json:"bpm"`
	Key   string `json:"key"`
}

// WithDefaults fills an empty style and key.
func (m Meta) WithDefaults() Meta {
	if strings.TrimSpace(m.Style) == "" {
		m.Style = DefaultStyle
	}
	if m.Key == "" {
		m.Key = DefaultKey
	}
	return m
}

// Post is the record created for a published mix.
type Post struct {
	ID        string        `json:"id" yaml:"id"`
	AudioURL  string        `json:"audio_url" yaml:"audio_url"`
	User      string        `json:"user" yaml:"user"`
	Style     string        `json:"style" yaml:"style"`
	BPM       int           `json:"bpm" yaml:"bpm"`
	Key       string        `json:"key" yaml:"key"`
	MIMEType  string        `json:"mime_type" yaml:"mime_type"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Bytes     int           `json:"bytes" yaml:"bytes"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
}

// Publisher persists a captured mix externally. Failures are returned as
// is and never retried.
type Publisher interface {
	Publish(ctx context.Context, a *audio.CapturedAsset, meta Meta) (*Post, error)
}

// New builds the publisher selected by cfg.Backend.
func New(cfg config.PublishConfig) (Publisher, error) {
	switch cfg.Backend {
	case "", "directory":
		return NewDirPublisher(cfg.Directory, cfg.User), nil
	case "http":
		return NewHTTPPublisher(cfg.Endpoint, cfg.Token, cfg.User), nil
	default:
		return nil, fmt.Errorf("unknown publish backend: %s", cfg.Backend)
	}
}

// FileName returns the name a mix is stored under.
func FileName(a *audio.CapturedAsset, at time.Time) string {
	return fmt.Sprintf("mix_%d_%s.%s", at.UnixMilli(), a.ID.String()[:8], a.Extension())
}

func newPost(a *audio.CapturedAsset, meta Meta, user string, at time.Time) *Post {
	meta = meta.WithDefaults()
	return &Post{
		ID:        a.ID.String(),
		User:      user,
		Style:     meta.Style,
		BPM:       meta.BPM,
		Key:       meta.Key,
		MIMEType:  a.MIMEType,
		Duration:  a.Duration,
		Bytes:     a.Size(),
		CreatedAt: at,
	}
}

func checkAsset(a *audio.CapturedAsset) error {
	if a == nil || len(a.Data) == 0 {
		return errors.New("nothing to publish")
	}
	return nil
}
