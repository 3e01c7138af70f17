// Package ringbuffer provides a fixed-capacity, thread-safe ring buffer of
// interleaved float32 PCM samples.
package ringbuffer

import (
	"errors"
	"sync"
)

// ErrChannelMismatch is returned by Write when the batch's channel count
// does not match the buffer's configured channel count.
var ErrChannelMismatch = errors.New("ringbuffer: channel count mismatch")

// Buffer is a fixed-capacity ring of frames, each frame holding Channels
// interleaved float32 samples. All operations are serialized under a single
// lock so that no partial write is ever visible to a reader.
type Buffer struct {
	mu       sync.Mutex
	data     []float32 // capacity * channels, interleaved
	capacity int       // in frames
	channels int
	writePos int // next frame index to write
	filled   int // number of valid frames, <= capacity
}

// New creates a Buffer holding at most capacity frames of the given channel
// count. Panics on non-positive capacity or channels, which are programmer
// errors rather than runtime conditions.
func New(capacity, channels int) *Buffer {
	if capacity <= 0 {
		panic("ringbuffer: capacity must be positive")
	}
	if channels <= 0 {
		panic("ringbuffer: channels must be positive")
	}
	return &Buffer{
		data:     make([]float32, capacity*channels),
		capacity: capacity,
		channels: channels,
	}
}

// Channels returns the configured channel count.
func (b *Buffer) Channels() int {
	return b.channels
}

// Capacity returns the buffer capacity in frames.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Write appends len(batch)/channels frames to the buffer. If the batch holds
// more frames than the buffer's capacity, only the last capacity frames are
// retained and the write position resets to 0. Fails only on a channel
// count mismatch (batch length not a multiple of Channels()).
func (b *Buffer) Write(batch []float32) error {
	if len(batch)%b.channels != 0 {
		return ErrChannelMismatch
	}
	nFrames := len(batch) / b.channels

	b.mu.Lock()
	defer b.mu.Unlock()

	if nFrames == 0 {
		return nil
	}
	if nFrames >= b.capacity {
		copy(b.data, batch[(nFrames-b.capacity)*b.channels:])
		b.writePos = 0
		b.filled = b.capacity
		return nil
	}

	spaceToEnd := b.capacity - b.writePos
	firstFrames := nFrames
	if firstFrames > spaceToEnd {
		firstFrames = spaceToEnd
	}
	copy(b.data[b.writePos*b.channels:], batch[:firstFrames*b.channels])

	if firstFrames < nFrames {
		remaining := nFrames - firstFrames
		copy(b.data, batch[firstFrames*b.channels:])
		b.writePos = remaining
	} else {
		b.writePos = (b.writePos + firstFrames) % b.capacity
	}

	b.filled += nFrames
	if b.filled > b.capacity {
		b.filled = b.capacity
	}
	return nil
}

// ReadLast returns the k most recently written frames, oldest to newest, as
// interleaved float32 samples. If fewer than k frames have ever been
// written, the result is zero-padded at the front.
func (b *Buffer) ReadLast(k int) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]float32, k*b.channels)
	if k == 0 || b.filled == 0 {
		return out
	}

	readFrames := k
	if readFrames > b.filled {
		readFrames = b.filled
	}
	padFrames := k - readFrames

	start := (b.writePos - readFrames + b.capacity) % b.capacity
	dst := out[padFrames*b.channels:]
	if start+readFrames <= b.capacity {
		copy(dst, b.data[start*b.channels:(start+readFrames)*b.channels])
	} else {
		firstFrames := b.capacity - start
		copy(dst, b.data[start*b.channels:])
		copy(dst[firstFrames*b.channels:], b.data[:(readFrames-firstFrames)*b.channels])
	}
	return out
}

// Clear zeroes the buffer contents and resets write position and fill count.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.data {
		b.data[i] = 0
	}
	b.writePos = 0
	b.filled = 0
}

// Level reports the fraction of the buffer currently filled, in [0, 1].
func (b *Buffer) Level() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.filled) / float64(b.capacity)
}

// Filled returns the number of valid frames currently held.
func (b *Buffer) Filled() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filled
}
