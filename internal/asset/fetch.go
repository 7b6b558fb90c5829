package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// MaxFetchBytes caps the size of a single source.
const MaxFetchBytes = 512 << 20

// ErrTooLarge is returned for a source bigger than the fetch limit.
var ErrTooLarge = errors.New("source exceeds size limit")

// Fetcher reads raw asset bytes from a file path or an http(s) URL.
type Fetcher struct {
	Client *http.Client
	// MaxBytes overrides MaxFetchBytes when positive.
	MaxBytes int64
}

func NewFetcher() *Fetcher {
	return &Fetcher{Client: &http.Client{Timeout: 60 * time.Second}}
}

// IsURL reports whether src should be fetched over HTTP.
func IsURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func (f *Fetcher) Fetch(ctx context.Context, src string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !IsURL(src) {
		file, err := os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src, err)
		}
		defer file.Close()
		data, err := f.readLimited(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to load audio: %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to load audio: %s (status %d)", src, resp.StatusCode)
	}

	data, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", src, err)
	}
	slog.Debug("Fetched asset", "url", src, "bytes", len(data))
	return data, nil
}

// readLimited reads one byte past the limit so an oversized source fails
// instead of decoding as a shorter track.
func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	limit := f.MaxBytes
	if limit <= 0 {
		limit = MaxFetchBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// Loader fetches and decodes sources into assets at the engine rate.
type Loader struct {
	Fetcher *Fetcher
	Decoder *Decoder
}

func NewLoader(sampleRate int) *Loader {
	return &Loader{
		Fetcher: NewFetcher(),
		Decoder: &Decoder{TargetRate: sampleRate},
	}
}

// Load fetches src and decodes it. A cancelled or expired ctx yields
// ctx.Err(); every other failure is a *DecodeError.
func (l *Loader) Load(ctx context.Context, src string) (*Asset, error) {
	data, err := l.Fetcher.Fetch(ctx, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &DecodeError{Source: src, Err: err}
	}
	return l.LoadBytes(ctx, src, data)
}

// LoadBytes decodes data already in memory.
func (l *Loader) LoadBytes(ctx context.Context, name string, data []byte) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.Decoder.Decode(name, data)
}
