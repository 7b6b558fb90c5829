package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/rmxr/internal/asset"
	"github.com/google/uuid"
)

// CaptureRecorder records the master bus by attaching itself as a sink to
// a Tap. Chunks are kept in memory and encoded on Stop.
type CaptureRecorder struct {
	tap        Tap
	format     Format
	sampleRate int
	channels   int
	encodeWAV  func(pcm []int16, sampleRate, channels int) ([]byte, error)

	// opMu serializes Start and Stop; mutex guards the state shared with
	// the render goroutine.
	opMu    sync.Mutex
	mutex   sync.RWMutex
	status  Status
	session *SessionInfo
	chunks  [][]int16
	samples int64
	asset   *CapturedAsset
}

var _ Recorder = (*CaptureRecorder)(nil)

// NewCaptureRecorder creates an idle recorder for stereo PCM at sampleRate.
func NewCaptureRecorder(tap Tap, sampleRate int, format Format) *CaptureRecorder {
	if format == "" {
		format = FormatWAV
	}
	return &CaptureRecorder{
		tap:        tap,
		format:     format,
		sampleRate: sampleRate,
		channels:   2,
		encodeWAV:  asset.EncodeWAV,
		status:     StatusIdle,
	}
}

// Start begins capturing whatever the master bus outputs.
func (r *CaptureRecorder) Start() error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mutex.Lock()
	if r.status != StatusIdle {
		state := r.status
		r.mutex.Unlock()
		return &InvalidStateError{Op: "start recording", State: state, Want: StatusIdle}
	}
	r.status = StatusCapturing
	r.chunks = nil
	r.samples = 0
	r.session = &SessionInfo{
		ID:        uuid.New(),
		StartTime: time.Now(),
		Format:    r.format,
	}
	id := r.session.ID
	r.mutex.Unlock()

	// Attach outside the state lock: the render path holds its own lock
	// while calling WriteAudio.
	r.tap.Attach(r)

	slog.Info("Recording started", "session", id, "format", r.format)
	return nil
}

// Stop detaches from the tap and finalizes the capture. The new asset
// replaces any previously kept one. If finalizing fails the recorder is
// still capturing with nothing lost, so Stop can be retried.
func (r *CaptureRecorder) Stop() (*CapturedAsset, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mutex.RLock()
	state := r.status
	r.mutex.RUnlock()
	if state != StatusCapturing {
		return nil, &InvalidStateError{Op: "stop recording", State: state, Want: StatusCapturing}
	}

	r.tap.Detach(r)

	r.mutex.RLock()
	chunks := r.chunks
	total := r.samples
	session := r.session
	r.mutex.RUnlock()

	pcm := make([]int16, 0, total)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}

	captured, err := r.finalize(session.ID, pcm)
	if err != nil {
		r.tap.Attach(r)
		slog.Error("Recording finalize failed, still capturing", "session", session.ID, "error", err)
		return nil, fmt.Errorf("failed to finalize recording: %w", err)
	}

	r.mutex.Lock()
	r.chunks = nil
	r.samples = 0
	r.session = nil
	r.status = StatusIdle
	r.asset = captured
	r.mutex.Unlock()

	slog.Info("Recording stopped", "session", session.ID, "duration", captured.Duration, "bytes", captured.Size())
	return captured, nil
}

func (r *CaptureRecorder) finalize(id uuid.UUID, pcm []int16) (*CapturedAsset, error) {
	frames := len(pcm) / r.channels
	captured := &CapturedAsset{
		ID:         id,
		SampleRate: r.sampleRate,
		Channels:   r.channels,
		Duration:   time.Duration(int64(frames) * int64(time.Second) / int64(r.sampleRate)),
		CreatedAt:  time.Now(),
	}

	switch r.format {
	case FormatPCM:
		captured.Data = EncodeL16(pcm)
		captured.MIMEType = fmt.Sprintf("audio/L16;rate=%d;channels=%d", r.sampleRate, r.channels)
	default:
		data, err := r.encodeWAV(pcm, r.sampleRate, r.channels)
		if err != nil {
			return nil, err
		}
		captured.Data = data
		captured.MIMEType = "audio/wav"
	}
	return captured, nil
}

// EncodeL16 packs samples as big-endian 16 bit PCM (RFC 2586).
func EncodeL16(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.BigEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// WriteAudio implements render.Sink.
func (r *CaptureRecorder) WriteAudio(pcm []int16) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.status != StatusCapturing {
		return nil
	}
	r.chunks = append(r.chunks, pcm)
	r.samples += int64(len(pcm))
	return nil
}

func (r *CaptureRecorder) Asset() *CapturedAsset {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.asset
}

func (r *CaptureRecorder) Discard() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.asset != nil {
		slog.Info("Recording discarded", "id", r.asset.ID)
	}
	r.asset = nil
}

// GetStatus returns the current state and, while capturing, a copy of the
// session with the captured duration so far.
func (r *CaptureRecorder) GetStatus() (Status, *SessionInfo) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.session == nil {
		return r.status, nil
	}
	info := *r.session
	frames := r.samples / int64(r.channels)
	info.Duration = time.Duration(frames * int64(time.Second) / int64(r.sampleRate))
	info.Bytes = r.samples * 2
	return r.status, &info
}
