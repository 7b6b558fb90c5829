package stream

import (
	"sync"

	"github.com/audiolibrelab/rmxr/internal/render"
)

// ListenerBuffer is the per-listener queue depth in quanta, about three
// seconds at 20 ms.
const ListenerBuffer = 150

// Broadcaster fans out master PCM quanta to N listeners. It is attached to
// the render engine as a sink.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

var _ render.Sink = (*Broadcaster)(nil)

// Listener receives PCM quanta from the broadcaster.
type Listener struct {
	C    chan []int16
	done chan struct{}
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, ListenerBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Unsubscribing
// twice is a no-op.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// WriteAudio implements render.Sink. Slow listeners get quanta dropped
// rather than blocking the render path.
func (b *Broadcaster) WriteAudio(pcm []int16) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- pcm:
		default:
		}
	}
	return nil
}
