package blockfile

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/waveseq/pkg/memstore"
	"github.com/outofforest/waveseq/samples"
)

func floatBuf(values []float32) []byte {
	buf := make([]byte, samples.BufferSize(len(values), samples.Float32))
	samples.FromFloats(values, buf, samples.Float32, len(values))
	return buf
}

func readFloats(t *testing.T, bf BlockFile, start, n int) []float32 {
	buf := make([]byte, samples.BufferSize(n, samples.Float32))
	read, err := bf.ReadData(buf, samples.Float32, start, n, true)
	require.NoError(t, err)
	require.Equal(t, n, read)
	out := make([]float32, n)
	samples.ToFloats(buf, samples.Float32, out, n)
	return out
}

func TestSimpleRoundTrip(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	values := []float32{0.5, -0.25, 0.125, -1, 0.75}
	bf, err := NewSimple(store, "b0", floatBuf(values), len(values), samples.Float32)
	requireT.NoError(err)

	requireT.Equal("b0", bf.Name())
	requireT.Equal(len(values), bf.Length())
	requireT.False(bf.IsAlias())
	requireT.True(bf.IsDataAvailable())
	requireT.True(bf.IsSummaryAvailable())

	requireT.Equal(values, readFloats(t, bf, 0, len(values)))
	requireT.Equal(values[1:4], readFloats(t, bf, 1, 3))
}

func TestSimpleStats(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	values := []float32{0.5, -0.25, 0.125, -1, 0.75}
	bf, err := NewSimple(store, "b0", floatBuf(values), len(values), samples.Float32)
	requireT.NoError(err)

	stats, err := bf.MinMaxRMS(true)
	requireT.NoError(err)
	requireT.Equal(float32(-1), stats.Min)
	requireT.Equal(float32(0.75), stats.Max)

	var sumsq float64
	for _, v := range values {
		sumsq += float64(v) * float64(v)
	}
	requireT.InDelta(math.Sqrt(sumsq/float64(len(values))), float64(stats.RMS), 1e-6)

	partial, err := bf.MinMaxRMSRange(1, 2, true)
	requireT.NoError(err)
	requireT.Equal(float32(-0.25), partial.Min)
	requireT.Equal(float32(0.125), partial.Max)
}

func TestSimpleSummaryFrames(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	values := make([]float32, 300)
	for i := range values {
		values[i] = float32(i) / 1000
	}
	bf, err := NewSimple(store, "b0", floatBuf(values), len(values), samples.Float32)
	requireT.NoError(err)

	out := make([]float32, 6)
	requireT.True(bf.Read256(out, 0, 2))
	// first frame covers samples [0, 256)
	requireT.Equal(float32(0), out[0])
	requireT.Equal(float32(0.255), out[1])
	// second frame covers the 44-sample tail
	requireT.Equal(float32(0.256), out[3])
	requireT.Equal(float32(0.299), out[4])

	requireT.True(bf.Read64K(out, 0, 1))
	requireT.Equal(float32(0), out[0])
	requireT.Equal(float32(0.299), out[1])
}

func TestOpenSimple(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	values := []float32{0.5, -0.25, 0.125}
	_, err := NewSimple(store, "b0", floatBuf(values), len(values), samples.Float32)
	requireT.NoError(err)

	bf, err := OpenSimple(store, "b0")
	requireT.NoError(err)
	requireT.Equal(len(values), bf.Length())
	requireT.Equal(values, readFloats(t, bf, 0, len(values)))

	stats, err := bf.MinMaxRMS(true)
	requireT.NoError(err)
	requireT.Equal(float32(-0.25), stats.Min)
	requireT.Equal(float32(0.5), stats.Max)
}

func TestSimpleFormatConversionOnRead(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	values := []float32{0.5, -0.5, 0.25}
	bf, err := NewSimple(store, "b0", floatBuf(values), len(values), samples.Float32)
	requireT.NoError(err)

	buf := make([]byte, samples.BufferSize(len(values), samples.Int16))
	read, err := bf.ReadData(buf, samples.Int16, 0, len(values), true)
	requireT.NoError(err)
	requireT.Equal(len(values), read)

	out := make([]float32, len(values))
	samples.ToFloats(buf, samples.Int16, out, len(values))
	for i := range values {
		requireT.InDelta(values[i], out[i], 1.0/32768)
	}
}

func TestSimpleReadFailureZeroFills(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	values := []float32{0.5, -0.5}
	bf, err := NewSimple(store, "b0", floatBuf(values), len(values), samples.Float32)
	requireT.NoError(err)

	store.ReadErr = errors.New("injected")

	buf := floatBuf([]float32{1, 1})
	read, err := bf.ReadData(buf, samples.Float32, 0, 2, false)
	requireT.NoError(err)
	requireT.Equal(0, read)
	out := make([]float32, 2)
	samples.ToFloats(buf, samples.Float32, out, 2)
	requireT.Equal([]float32{0, 0}, out)

	_, err = bf.ReadData(buf, samples.Float32, 0, 2, true)
	requireT.Error(err)
}

func TestSimpleSetLengthTruncates(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	values := []float32{0.1, 0.2, 0.3, 0.4}
	bf, err := NewSimple(store, "b0", floatBuf(values), len(values), samples.Float32)
	requireT.NoError(err)

	bf.SetLength(2)
	requireT.Equal(2, bf.Length())

	bf.SetLength(3)
	requireT.Equal(2, bf.Length())
}

func TestSilent(t *testing.T) {
	requireT := require.New(t)

	bf := NewSilent(10)
	requireT.Equal("", bf.Name())
	requireT.Equal(10, bf.Length())
	requireT.Equal(make([]float32, 10), readFloats(t, bf, 0, 10))

	stats, err := bf.MinMaxRMS(true)
	requireT.NoError(err)
	requireT.Equal(Stats{}, stats)

	out := []float32{1, 1, 1}
	requireT.True(bf.Read256(out, 0, 1))
	requireT.Equal([]float32{0, 0, 0}, out)
}

func TestLocking(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	bf, err := NewSimple(store, "b0", floatBuf([]float32{0.5}), 1, samples.Float32)
	requireT.NoError(err)

	requireT.False(bf.Locked())
	bf.Lock()
	bf.Lock()
	requireT.True(bf.Locked())
	bf.Unlock()
	requireT.True(bf.Locked())
	bf.Unlock()
	requireT.False(bf.Locked())

	bf.CloseLock()
	requireT.True(bf.Locked())
}

func TestODDecode(t *testing.T) {
	requireT := require.New(t)

	decoded := []float32{0.25, -0.25, 0.5}
	decode := func(path string, start int64, n, channel, decoderType int) ([]float32, error) {
		return decoded, nil
	}
	bf := NewODDecode("song.ogg", 100, 3, 0, 2, decode)

	requireT.False(bf.IsDataAvailable())
	requireT.False(bf.IsSummaryAvailable())

	// reads as silence before decoding
	buf := floatBuf([]float32{1, 1, 1})
	read, err := bf.ReadData(buf, samples.Float32, 0, 3, false)
	requireT.NoError(err)
	requireT.Equal(0, read)
	silent := make([]float32, 3)
	samples.ToFloats(buf, samples.Float32, silent, 3)
	requireT.Equal(make([]float32, 3), silent)

	_, err = bf.ReadData(buf, samples.Float32, 0, 3, true)
	requireT.Error(err)

	out := make([]float32, 3)
	requireT.False(bf.Read256(out, 0, 1))

	requireT.NoError(bf.Materialize())
	requireT.True(bf.IsDataAvailable())
	requireT.Equal(decoded, readFloats(t, bf, 0, 3))
	requireT.True(bf.Read256(out, 0, 1))
	requireT.Equal(float32(-0.25), out[0])
	requireT.Equal(float32(0.5), out[1])
}

func TestComputeSummaryFrameCounts(t *testing.T) {
	requireT := require.New(t)

	s := ComputeSummary(make([]float32, 256*3+1))
	requireT.Len(s.Frames256, 4)
	requireT.Len(s.Frames64K, 1)

	s = ComputeSummary(nil)
	requireT.Len(s.Frames256, 0)
	requireT.Len(s.Frames64K, 0)
	requireT.Equal(Stats{}, s.All)
}
