package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"
)

const (
	Channels      = 2
	FrameDuration = 20 * time.Millisecond
	OpusBitrate   = 128000
)

// WebRTCHandler serves SDP negotiation and streams the master bus to each
// peer as Opus.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	sampleRate  int
	mu          sync.Mutex
	peers       []*webrtc.PeerConnection
}

func NewWebRTCHandler(b *Broadcaster, sampleRate int) *WebRTCHandler {
	return &WebRTCHandler{
		broadcaster: b,
		sampleRate:  sampleRate,
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Supported reports whether Opus can encode at the engine rate.
func (h *WebRTCHandler) Supported() bool {
	switch h.sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	if !h.Supported() {
		http.Error(w, fmt.Sprintf("monitor unavailable at %d Hz", h.sampleRate), http.StatusServiceUnavailable)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"rmxr-master",
	)
	if err != nil {
		pc.Close()
		http.Error(w, "create audio track failed", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		http.Error(w, "add track failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	<-webrtc.GatheringCompletePromise(pc)

	h.mu.Lock()
	h.peers = append(h.peers, pc)
	h.mu.Unlock()

	slog.Info("Monitor peer connected", "peers", h.PeerCount())

	listener := h.broadcaster.Subscribe()
	go h.streamToPeer(listener, audioTrack)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			h.broadcaster.Unsubscribe(listener)
			if h.removePeer(pc) {
				pc.Close()
				slog.Info("Monitor peer disconnected", "peers", h.PeerCount())
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

func (h *WebRTCHandler) streamToPeer(listener *Listener, track *webrtc.TrackLocalStaticSample) {
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(h.sampleRate, Channels, opus.AppAudio)
	if err != nil {
		slog.Error("Opus encoder error", "error", err)
		return
	}
	if err := enc.SetBitrate(OpusBitrate); err != nil {
		slog.Warn("Opus bitrate not applied", "error", err)
	}

	framer := NewFramer(h.sampleRate, Channels, FrameDuration)
	opusBuf := make([]byte, 4000)

	for {
		select {
		case <-listener.Done():
			return
		case pcm := <-listener.C:
			for _, frame := range framer.Push(pcm) {
				n, err := enc.Encode(frame, opusBuf)
				if err != nil {
					slog.Warn("Opus encode error", "error", err)
					continue
				}
				if err := track.WriteSample(media.Sample{
					Data:     opusBuf[:n],
					Duration: FrameDuration,
				}); err != nil {
					return
				}
			}
		}
	}
}

// removePeer reports whether pc was still registered.
func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.peers {
		if p == pc {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			return true
		}
	}
	return false
}

// Close disconnects every peer.
func (h *WebRTCHandler) Close() error {
	h.mu.Lock()
	peers := h.peers
	h.peers = nil
	h.mu.Unlock()

	var firstErr error
	for _, pc := range peers {
		if err := pc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Framer regroups render quanta into fixed-size codec frames.
type Framer struct {
	size int
	buf  []int16
}

func NewFramer(sampleRate, channels int, d time.Duration) *Framer {
	size := int(int64(sampleRate)*int64(d)/int64(time.Second)) * channels
	return &Framer{size: size}
}

// Push appends pcm and returns every complete frame. Returned frames are
// owned by the caller.
func (f *Framer) Push(pcm []int16) [][]int16 {
	f.buf = append(f.buf, pcm...)
	var out [][]int16
	for len(f.buf) >= f.size {
		frame := make([]int16, f.size)
		copy(frame, f.buf[:f.size])
		out = append(out, frame)
		f.buf = f.buf[f.size:]
	}
	return out
}

// Pending returns the number of buffered samples not yet framed.
func (f *Framer) Pending() int {
	return len(f.buf)
}
