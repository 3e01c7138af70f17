package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWriteThenReadLastExact(t *testing.T) {
	b := New(8, 1)
	require.NoError(t, b.Write([]float32{1, 2, 3, 4}))
	assert.Equal(t, []float32{0, 0, 0, 0, 1, 2, 3, 4}, b.ReadLast(8))
	assert.InDelta(t, 0.5, b.Level(), 1e-9)
}

func TestWriteWraps(t *testing.T) {
	b := New(4, 1)
	require.NoError(t, b.Write([]float32{1, 2, 3}))
	require.NoError(t, b.Write([]float32{4, 5}))
	assert.Equal(t, []float32{2, 3, 4, 5}, b.ReadLast(4))
	assert.Equal(t, 1.0, b.Level())
}

func TestWriteLargerThanCapacityKeepsOnlyLastN(t *testing.T) {
	b := New(4, 1)
	require.NoError(t, b.Write([]float32{1, 2, 3, 4, 5, 6, 7}))
	assert.Equal(t, []float32{4, 5, 6, 7}, b.ReadLast(4))
}

func TestReadLastBeyondWrittenZeroPads(t *testing.T) {
	b := New(8, 1)
	require.NoError(t, b.Write([]float32{9}))
	assert.Equal(t, []float32{0, 0, 0, 9}, b.ReadLast(4))
}

func TestClearResets(t *testing.T) {
	b := New(4, 2)
	require.NoError(t, b.Write([]float32{1, 2, 3, 4}))
	b.Clear()
	assert.Equal(t, 0.0, b.Level())
	assert.Equal(t, []float32{0, 0, 0, 0}, b.ReadLast(2))
}

func TestChannelMismatchFails(t *testing.T) {
	b := New(4, 2)
	assert.ErrorIs(t, b.Write([]float32{1, 2, 3}), ErrChannelMismatch)
}

// TestReadLastMatchesAppendedTail is the property-based invariant from
// spec §8.1: for any write sequence, read_last(k) equals the last k
// appended samples (zero-padded at the front if fewer were written).
func TestReadLastMatchesAppendedTail(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(rt, "capacity")
		b := New(capacity, 1)

		var appended []float32
		writes := rapid.IntRange(0, 20).Draw(rt, "writes")
		for i := 0; i < writes; i++ {
			n := rapid.IntRange(0, capacity*2).Draw(rt, "batchLen")
			batch := make([]float32, n)
			for j := range batch {
				batch[j] = rapid.Float32().Draw(rt, "sample")
			}
			require.NoError(rt, b.Write(batch))
			appended = append(appended, batch...)
			if len(appended) > capacity {
				appended = appended[len(appended)-capacity:]
			}

			level := b.Level()
			if level < 0 || level > 1 {
				rt.Fatalf("level %v out of [0,1]", level)
			}
		}

		k := rapid.IntRange(1, capacity*2).Draw(rt, "k")
		got := b.ReadLast(k)

		want := make([]float32, k)
		padded := len(appended)
		if padded > k {
			padded = k
		}
		copy(want[k-padded:], appended[len(appended)-padded:])

		assert.Equal(rt, want, got)
	})
}
