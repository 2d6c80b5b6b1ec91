package waveseq

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindBlockCoversEveryPosition(t *testing.T) {
	requireT := require.New(t)
	s, _, _ := newTestSeq(t)

	// Appending in odd chunks produces blocks of varied lengths.
	rnd := rand.New(rand.NewSource(1))
	total := 0
	for total < 200 {
		n := 1 + rnd.Intn(20)
		values := make([]float32, n)
		for i := range values {
			values[i] = rnd.Float32()
		}
		appendFloats(t, s, values)
		total += n
	}

	for pos := int64(0); pos < s.Len(); pos++ {
		i := s.findBlock(pos)
		b := s.blocks[i]
		requireT.LessOrEqual(b.Start, pos)
		requireT.Less(pos, b.Start+int64(b.File.Length()))
	}
}

func TestGetBlockStart(t *testing.T) {
	requireT := require.New(t)
	s, _, _ := newTestSeq(t)

	appendFloats(t, s, ramp(1, 24))
	requireT.Equal([]int{8, 8, 8}, blockLengths(s))

	requireT.Equal(int64(0), s.GetBlockStart(0))
	requireT.Equal(int64(0), s.GetBlockStart(7))
	requireT.Equal(int64(8), s.GetBlockStart(8))
	requireT.Equal(int64(16), s.GetBlockStart(23))
}

func TestGetBestBlockSize(t *testing.T) {
	requireT := require.New(t)
	s, _, _ := newTestSeq(t)

	appendFloats(t, s, ramp(1, 24))

	// From a block boundary the whole block is the best chunk.
	requireT.Equal(8, s.GetBestBlockSize(8))
	// Mid-block, the rest of the block.
	requireT.Equal(4, s.GetBestBlockSize(12))
	// Out of range falls back to the maximum.
	requireT.Equal(8, s.GetBestBlockSize(-1))
	requireT.Equal(8, s.GetBestBlockSize(24))

	best := s.GetBestBlockSize(22)
	requireT.Greater(best, 0)
	requireT.LessOrEqual(best, 8)
}
