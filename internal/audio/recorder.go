package audio

import (
	"fmt"
	"strings"
	"time"

	"github.com/audiolibrelab/rmxr/internal/render"
	"github.com/google/uuid"
)

// Status represents the current state of the recorder
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusCapturing Status = "CAPTURING"
)

// Format selects how a finished capture is encoded
type Format string

const (
	FormatWAV Format = "wav"
	FormatPCM Format = "pcm"
)

// InvalidStateError is returned when a recorder operation is not allowed in
// the current state. The recorder is left untouched.
type InvalidStateError struct {
	Op    string
	State Status
	Want  Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("can only %s from %s state, current: %s", e.Op, strings.ToLower(string(e.Want)), e.State)
}

// CapturedAsset is a finalized recording: opaque bytes plus a type tag.
type CapturedAsset struct {
	ID         uuid.UUID     `json:"id"`
	Data       []byte        `json:"-"`
	MIMEType   string        `json:"mime_type"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Size returns the encoded length in bytes.
func (a *CapturedAsset) Size() int {
	return len(a.Data)
}

// Extension returns the file extension matching MIMEType.
func (a *CapturedAsset) Extension() string {
	if strings.HasPrefix(a.MIMEType, "audio/L16") {
		return "pcm"
	}
	return "wav"
}

// SessionInfo contains information about the current recording session
type SessionInfo struct {
	ID        uuid.UUID     `json:"id"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Bytes     int64         `json:"bytes"`
	Format    Format        `json:"format"`
}

// Tap is the master output a recorder listens to.
type Tap interface {
	Attach(s render.Sink)
	Detach(s render.Sink)
}

// Recorder defines the interface that all audio recorders must implement
type Recorder interface {
	Start() error
	Stop() (*CapturedAsset, error)

	// Asset returns the last finalized capture, nil after Discard.
	Asset() *CapturedAsset
	Discard()

	GetStatus() (Status, *SessionInfo)
}
