package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/audiolibrelab/rmxr/internal/audio"
	"gopkg.in/yaml.v3"
)

// DirPublisher stores mixes under <Directory>/<User>/ with a YAML post
// record next to each file.
type DirPublisher struct {
	Directory string
	User      string
}

func NewDirPublisher(directory, user string) *DirPublisher {
	return &DirPublisher{Directory: directory, User: user}
}

func (p *DirPublisher) Publish(ctx context.Context, a *audio.CapturedAsset, meta Meta) (*Post, error) {
	if err := checkAsset(a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.User) == "" {
		return nil, ErrUnauthenticated
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userDir := filepath.Join(p.Directory, cleanName(p.User))
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create publish directory: %w", err)
	}

	now := time.Now()
	audioPath := filepath.Join(userDir, FileName(a, now))
	if err := os.WriteFile(audioPath, a.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write mix: %w", err)
	}

	post := newPost(a, meta, p.User, now)
	post.AudioURL = audioPath

	record, err := yaml.Marshal(post)
	if err != nil {
		return nil, fmt.Errorf("failed to encode post record: %w", err)
	}
	recordPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".yaml"
	if err := os.WriteFile(recordPath, record, 0644); err != nil {
		os.Remove(audioPath)
		return nil, fmt.Errorf("failed to write post record: %w", err)
	}

	slog.Info("Mix published", "path", audioPath, "bpm", post.BPM, "style", post.Style)
	return post, nil
}

// cleanName keeps a user id usable as a single path element.
func cleanName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	return replacer.Replace(strings.TrimSpace(name))
}
