package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/audiolibrelab/rmxr/internal/audio"
)

// HTTPPublisher uploads mixes as multipart/form-data with a bearer token.
// The endpoint answers with the created post as JSON.
type HTTPPublisher struct {
	Endpoint string
	Token    string
	User     string
	Client   *http.Client
}

func NewHTTPPublisher(endpoint, token, user string) *HTTPPublisher {
	return &HTTPPublisher{
		Endpoint: endpoint,
		Token:    token,
		User:     user,
		Client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

func (p *HTTPPublisher) Publish(ctx context.Context, a *audio.CapturedAsset, meta Meta) (*Post, error) {
	if err := checkAsset(a); err != nil {
		return nil, err
	}
	if p.Token == "" {
		return nil, ErrUnauthenticated
	}

	now := time.Now()
	meta = meta.WithDefaults()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, FileName(a, now)))
	header.Set("Content-Type", a.MIMEType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(a.Data); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	fields := map[string]string{
		"id":    a.ID.String(),
		"style": meta.Style,
		"bpm":   strconv.Itoa(meta.BPM),
		"key":   meta.Key,
	}
	if p.User != "" {
		fields["user"] = p.User
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to build upload: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.Token)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload mix: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrUnauthenticated, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("failed to upload mix: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	post := newPost(a, meta, p.User, now)
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, post); err != nil {
			return nil, fmt.Errorf("invalid publish response: %w", err)
		}
	}

	slog.Info("Mix published", "endpoint", p.Endpoint, "id", post.ID, "url", post.AudioURL)
	return post, nil
}
