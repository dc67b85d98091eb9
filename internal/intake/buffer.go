// Package intake implements the audio intake buffer: a bounded per-user
// queue of raw PCM frames handed off between the transport's receive loop
// and a speaker's pipeline task.
package intake

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// bytesPerMs is the byte rate of 16 kHz mono signed-16-bit little-endian
// PCM: 16000 samples/s * 2 bytes/sample / 1000 ms.
const bytesPerMs = 32

// ChunkObserver is notified once per accepted chunk, for metrics. Nil is a
// valid, no-op default.
type ChunkObserver interface {
	IncAudioChunk()
}

// Buffer is a bounded, per-user PCM byte queue. The transport is the only
// writer (Push); a speaker's pipeline task is the only reader (Drain).
type Buffer struct {
	mu       sync.Mutex
	queues   map[string][]byte
	maxMs    int
	observer ChunkObserver
}

// New creates an intake buffer that drops the oldest bytes once a user's
// queue exceeds maxMs milliseconds of 16 kHz mono s16le audio.
func New(maxMs int) *Buffer {
	return &Buffer{
		queues: make(map[string][]byte),
		maxMs:  maxMs,
	}
}

// SetObserver wires a chunk-accepted callback, e.g. a Prometheus counter.
func (b *Buffer) SetObserver(o ChunkObserver) {
	b.mu.Lock()
	b.observer = o
	b.mu.Unlock()
}

// Push appends data to userID's queue, dropping the oldest frames if the
// queue would exceed the configured cap.
func (b *Buffer) Push(userID string, data []byte) {
	if len(data) == 0 {
		return
	}

	b.mu.Lock()
	q := append(b.queues[userID], data...)
	maxBytes := b.maxMs * bytesPerMs
	if len(q) > maxBytes {
		dropped := len(q) - maxBytes
		q = q[dropped:]
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"dropped": dropped,
		}).Debug("intake buffer over cap, dropping oldest frames")
	}
	b.queues[userID] = q
	observer := b.observer
	b.mu.Unlock()

	if observer != nil {
		observer.IncAudioChunk()
	}
}

// Drain atomically removes and returns all buffered frames for userID.
func (b *Buffer) Drain(userID string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queues[userID]
	if len(q) == 0 {
		return nil
	}
	delete(b.queues, userID)
	return q
}

// Clear empties userID's queue without returning it, used on stop and on
// hallucination reset.
func (b *Buffer) Clear(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, userID)
}
