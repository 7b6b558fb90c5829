package asset

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func ramp(frames, channels int) []int16 {
	pcm := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			v := int16((i % 200) * 100)
			if c == 1 {
				v = -v
			}
			pcm[i*channels+c] = v
		}
	}
	return pcm
}

func TestAt_Interpolates(t *testing.T) {
	a := New("mem", [][2]float64{{0, 0}, {1, -1}}, 10, 2)

	if got := a.At(0.5); got != [2]float64{0.5, -0.5} {
		t.Errorf("At(0.5) = %v, want [0.5 -0.5]", got)
	}
	if got := a.At(1); got != [2]float64{1, -1} {
		t.Errorf("At(1) = %v, want [1 -1]", got)
	}
	if got := a.At(5); got != [2]float64{} {
		t.Errorf("Expected silence past the end, got %v", got)
	}
	if got := a.At(-1); got != [2]float64{} {
		t.Errorf("Expected silence before the start, got %v", got)
	}
}

func TestDuration(t *testing.T) {
	a := New("mem", make([][2]float64, 48000*10), 48000, 2)
	if a.Seconds() != 10 {
		t.Errorf("Expected 10 seconds, got %f", a.Seconds())
	}
	if a.Duration().Seconds() != 10 {
		t.Errorf("Expected 10s duration, got %v", a.Duration())
	}
}

func TestEncodeDecodeWAV_Stereo(t *testing.T) {
	pcm := ramp(4800, 2)
	data, err := EncodeWAV(pcm, 48000, 2)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if Sniff(data) != FormatWAV {
		t.Fatalf("Expected encoded data to sniff as WAV")
	}
	// sizes are patched into the header after the samples are written
	if want := 44 + len(pcm)*2; len(data) != want {
		t.Errorf("Expected %d bytes, got %d", want, len(data))
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); int(got) != len(data)-8 {
		t.Errorf("Expected RIFF size %d, got %d", len(data)-8, got)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); int(got) != len(pcm)*2 {
		t.Errorf("Expected data chunk size %d, got %d", len(pcm)*2, got)
	}

	dec := &Decoder{TargetRate: 48000}
	a, err := dec.Decode("ramp.wav", data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if a.Len() != 4800 {
		t.Fatalf("Expected 4800 frames, got %d", a.Len())
	}
	if a.Channels() != 2 || a.SampleRate() != 48000 {
		t.Errorf("Unexpected format: channels=%d rate=%d", a.Channels(), a.SampleRate())
	}
	for _, i := range []int{0, 1, 150, 4799} {
		want := float64(pcm[i*2]) / 32768
		got := a.Frame(i)
		if math.Abs(got[0]-want) > 1e-9 || math.Abs(got[1]+want) > 1e-9 {
			t.Errorf("Frame %d = %v, want [%f %f]", i, got, want, -want)
		}
	}
}

func TestDecodeWAV_MonoIsDuplicated(t *testing.T) {
	pcm := ramp(100, 1)
	data, err := EncodeWAV(pcm, 44100, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	a, err := (&Decoder{}).Decode("mono.wav", data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if a.Channels() != 1 {
		t.Errorf("Expected 1 source channel, got %d", a.Channels())
	}
	f := a.Frame(10)
	if f[0] != f[1] {
		t.Errorf("Expected mono frame duplicated, got %v", f)
	}
}

func TestDecode_ResamplesToTarget(t *testing.T) {
	pcm := ramp(44100, 2)
	data, err := EncodeWAV(pcm, 44100, 2)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	a, err := (&Decoder{TargetRate: 48000}).Decode("one-second.wav", data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if a.SampleRate() != 48000 || a.SourceRate() != 44100 {
		t.Errorf("Expected 44100 -> 48000, got source=%d rate=%d", a.SourceRate(), a.SampleRate())
	}
	if math.Abs(a.Seconds()-1) > 0.01 {
		t.Errorf("Expected about 1 second after resampling, got %f", a.Seconds())
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmpty},
		{"garbage", []byte("definitely not audio"), ErrUnsupportedFormat},
		{"truncated wav", []byte("RIFF\x00\x00\x00\x00WAVE"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Decoder{}).Decode(tt.name, tt.data)
			if err == nil {
				t.Fatal("Expected error")
			}
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("Expected *DecodeError, got %T", err)
			}
			if decErr.Source != tt.name {
				t.Errorf("Expected source %q, got %q", tt.name, decErr.Source)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSniff(t *testing.T) {
	if Sniff([]byte("ID3\x04\x00")) != FormatMP3 {
		t.Error("Expected ID3 tag to sniff as MP3")
	}
	if Sniff([]byte{0xFF, 0xFB, 0x90}) != FormatMP3 {
		t.Error("Expected frame sync to sniff as MP3")
	}
	if Sniff([]byte("OggS")) != FormatUnknown {
		t.Error("Expected Ogg to be unknown")
	}
}

func TestFetcher_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.bin")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	data, err := NewFetcher().Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("Unexpected data: %q", data)
	}
}

func TestFetcher_HTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.wav" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer ts.Close()

	f := NewFetcher()
	data, err := f.Fetch(context.Background(), ts.URL+"/track.wav")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Unexpected body: %q", data)
	}

	_, err = f.Fetch(context.Background(), ts.URL+"/missing.wav")
	if err == nil || !strings.Contains(err.Error(), "failed to load audio") {
		t.Errorf("Expected load failure for 404, got %v", err)
	}
}

func TestLoader_WrapsFetchErrors(t *testing.T) {
	l := NewLoader(48000)
	_, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("Expected *DecodeError, got %v", err)
	}
}

func TestLoader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data, _ := EncodeWAV(ramp(10, 2), 48000, 2)
	_, err := NewLoader(48000).LoadBytes(ctx, "x.wav", data)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		t.Errorf("Expected cancellation not to be reported as a decode failure, got %v", err)
	}
}

func TestLoader_CancelledDuringFetch(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewLoader(48000).Load(ctx, ts.URL+"/slow.wav")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		t.Errorf("Expected deadline not to be reported as a decode failure, got %v", err)
	}
}

func TestFetcher_RejectsOversizedSources(t *testing.T) {
	body := strings.Repeat("x", 64)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "big.bin")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher()
	f.MaxBytes = 63
	for _, src := range []string{ts.URL + "/big.wav", path} {
		if _, err := f.Fetch(context.Background(), src); !errors.Is(err, ErrTooLarge) {
			t.Errorf("%s: expected ErrTooLarge, got %v", src, err)
		}
	}

	f.MaxBytes = 64
	for _, src := range []string{ts.URL + "/big.wav", path} {
		data, err := f.Fetch(context.Background(), src)
		if err != nil {
			t.Errorf("%s: expected source at the limit to load, got %v", src, err)
		} else if len(data) != 64 {
			t.Errorf("%s: expected 64 bytes, got %d", src, len(data))
		}
	}
}
