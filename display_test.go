package waveseq

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/waveseq/blockfile"
	"github.com/outofforest/waveseq/dirman"
	"github.com/outofforest/waveseq/pkg/memstore"
	"github.com/outofforest/waveseq/samples"
)

func waveDisplay(s *Sequence, where []int64) (min, max, rms []float32, bl []int, ok bool) {
	n := len(where) - 1
	min = make([]float32, n)
	max = make([]float32, n)
	rms = make([]float32, n)
	bl = make([]int, n)
	ok = s.GetWaveDisplay(min, max, rms, bl, where)
	return min, max, rms, bl, ok
}

func rmsOf(values []float32) float32 {
	var sumsq float64
	for _, v := range values {
		sumsq += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sumsq / float64(len(values))))
}

func TestWaveDisplayAtFullResolution(t *testing.T) {
	requireT := require.New(t)
	s, _, _ := newTestSeq(t)

	values := ramp(1, 16)
	appendFloats(t, s, values)

	min, max, rms, bl, ok := waveDisplay(s, []int64{0, 4, 8, 12, 16})
	requireT.True(ok)

	for p := 0; p < 4; p++ {
		column := values[4*p : 4*p+4]
		requireT.Equal(column[0], min[p], "column %d", p)
		requireT.Equal(column[3], max[p], "column %d", p)
		requireT.InDelta(rmsOf(column), rms[p], 1e-3, "column %d", p)
	}
	requireT.Equal([]int{0, 0, 1, 1}, bl)
}

func TestWaveDisplayColumnStraddlingBlocks(t *testing.T) {
	requireT := require.New(t)
	s, _, _ := newTestSeq(t)

	values := ramp(1, 16)
	appendFloats(t, s, values)

	// The middle column covers samples [6, 12), crossing the block boundary
	// at 8; its statistics must pool both sides.
	min, max, rms, _, ok := waveDisplay(s, []int64{0, 6, 12, 16})
	requireT.True(ok)

	requireT.Equal(float32(1), min[0])
	requireT.Equal(float32(6), max[0])
	requireT.InDelta(rmsOf(values[0:6]), rms[0], 1e-3)

	requireT.Equal(float32(7), min[1])
	requireT.Equal(float32(12), max[1])
	requireT.InDelta(rmsOf(values[6:12]), rms[1], 1e-3)

	requireT.Equal(float32(13), min[2])
	requireT.Equal(float32(16), max[2])
	requireT.InDelta(rmsOf(values[12:16]), rms[2], 1e-3)
}

func TestWaveDisplayZoomedIn(t *testing.T) {
	requireT := require.New(t)
	s, _, _ := newTestSeq(t)

	values := ramp(1, 8)
	appendFloats(t, s, values)

	// More columns than samples: consecutive columns share sample values.
	min, max, _, bl, ok := waveDisplay(s, []int64{0, 0, 1, 1, 2, 2, 3, 3, 4})
	requireT.True(ok)
	requireT.Equal([]float32{1, 1, 2, 2, 3, 3, 4, 4}, min)
	requireT.Equal(min, max)
	for _, b := range bl {
		requireT.Equal(0, b)
	}
}

func TestWaveDisplayOutOfRange(t *testing.T) {
	requireT := require.New(t)
	s, _, _ := newTestSeq(t)
	appendFloats(t, s, ramp(1, 8))

	_, _, _, _, ok := waveDisplay(s, []int64{8, 16})
	requireT.False(ok)
}

func TestWaveDisplayUsesSummary256(t *testing.T) {
	requireT := require.New(t)

	// Default block sizing: a 1024-sample run stays in one block whose
	// 1:256 summary exists.
	s := New(dirman.New(memstore.New()), samples.Float32)
	values := make([]float32, 1024)
	for i := range values {
		values[i] = float32(i) / 2048
	}
	appendFloats(t, s, values)
	requireT.Equal(1, s.BlockCount())

	// 2 columns of 512 samples each select the 1:256 summaries.
	min, max, rms, bl, ok := waveDisplay(s, []int64{0, 512, 1024})
	requireT.True(ok)
	requireT.Equal([]int{0, 0}, bl)

	// Samples are i/2048 for i in [0, 1024): each 256-frame's min/max are
	// known exactly, and the column pools two frames.
	requireT.Equal(float32(0), min[0])
	requireT.InDelta(float64(511)/2048, float64(max[0]), 1e-6)
	requireT.InDelta(float64(512)/2048, float64(min[1]), 1e-6)
	requireT.InDelta(float64(1023)/2048, float64(max[1]), 1e-6)
	requireT.Greater(rms[1], rms[0])
}

func TestWaveDisplayReportsMissingSummary(t *testing.T) {
	requireT := require.New(t)

	dm := dirman.New(memstore.New())
	s := New(dm, samples.Float32)

	decoded := make([]float32, 1024)
	for i := range decoded {
		decoded[i] = float32(i) / 2048
	}
	dm.SetDecodeFunc(func(path string, start int64, n, channel, decoderType int) ([]float32, error) {
		return decoded, nil
	})
	requireT.NoError(s.AppendCoded("song.ogg", 0, 1024, 0, 2))

	_, _, _, bl, ok := waveDisplay(s, []int64{0, 512, 1024})
	requireT.True(ok)
	// The summary is not computed yet; the sentinel asks the caller to
	// retry later.
	requireT.Equal([]int{-1, -1}, bl)

	od := s.blocks[0].File.(*blockfile.ODDecode)
	requireT.NoError(od.Materialize())

	_, _, _, bl, ok = waveDisplay(s, []int64{0, 512, 1024})
	requireT.True(ok)
	requireT.Equal([]int{0, 0}, bl)
}
