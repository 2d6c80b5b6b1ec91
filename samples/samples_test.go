package samples

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	requireT := require.New(t)

	requireT.Equal(2, Int16.Bytes())
	requireT.Equal(3, Int24.Bytes())
	requireT.Equal(4, Float32.Bytes())
	requireT.Equal(0, Format(0).Bytes())
}

func TestFormatFromUint(t *testing.T) {
	requireT := require.New(t)

	f, err := FormatFromUint(uint64(Float32))
	requireT.NoError(err)
	requireT.Equal(Float32, f)

	_, err = FormatFromUint(99)
	requireT.Error(err)
}

func TestFloat32RoundTrip(t *testing.T) {
	requireT := require.New(t)

	values := []float32{0, 0.5, -0.5, 0.999, -1}
	buf := make([]byte, BufferSize(len(values), Float32))
	FromFloats(values, buf, Float32, len(values))

	out := make([]float32, len(values))
	ToFloats(buf, Float32, out, len(values))
	requireT.Equal(values, out)
}

func TestInt16RoundTrip(t *testing.T) {
	requireT := require.New(t)

	values := []float32{0, 0.25, -0.25, 0.5}
	buf := make([]byte, BufferSize(len(values), Int16))
	FromFloats(values, buf, Int16, len(values))

	out := make([]float32, len(values))
	ToFloats(buf, Int16, out, len(values))
	for i := range values {
		requireT.InDelta(values[i], out[i], 1.0/int16Scale)
	}
}

func TestInt24RoundTrip(t *testing.T) {
	requireT := require.New(t)

	values := []float32{0, 0.125, -0.125, 0.75, -0.75}
	buf := make([]byte, BufferSize(len(values), Int24))
	FromFloats(values, buf, Int24, len(values))

	out := make([]float32, len(values))
	ToFloats(buf, Int24, out, len(values))
	for i := range values {
		requireT.InDelta(values[i], out[i], 1.0/int24Scale)
	}
}

func TestInt24SignExtension(t *testing.T) {
	requireT := require.New(t)

	buf := make([]byte, 3)
	Put(buf, Int24, 0, -1)
	requireT.Less(At(buf, Int24, 0), float32(0))
}

func TestClampAtFullScale(t *testing.T) {
	requireT := require.New(t)

	buf := make([]byte, 2)
	Put(buf, Int16, 0, 2.0)
	requireT.InDelta(1.0, At(buf, Int16, 0), 1.0/int16Scale)

	Put(buf, Int16, 0, -2.0)
	requireT.InDelta(-1.0, At(buf, Int16, 0), 1.0/int16Scale)
}

func TestConvertAcrossFormats(t *testing.T) {
	requireT := require.New(t)

	values := []float32{0, 0.5, -0.5, 0.25}
	src := make([]byte, BufferSize(len(values), Float32))
	FromFloats(values, src, Float32, len(values))

	dst := make([]byte, BufferSize(len(values), Int16))
	Convert(src, Float32, dst, Int16, len(values))

	back := make([]byte, BufferSize(len(values), Float32))
	Convert(dst, Int16, back, Float32, len(values))

	out := make([]float32, len(values))
	ToFloats(back, Float32, out, len(values))
	for i := range values {
		requireT.InDelta(values[i], out[i], 1.0/int16Scale)
	}
}

func TestConvertSameFormatCopies(t *testing.T) {
	requireT := require.New(t)

	values := []float32{0.1, 0.2, 0.3}
	src := make([]byte, BufferSize(len(values), Float32))
	FromFloats(values, src, Float32, len(values))

	dst := make([]byte, len(src))
	Convert(src, Float32, dst, Float32, len(values))
	requireT.Equal(src, dst)
}

func TestClear(t *testing.T) {
	requireT := require.New(t)

	values := []float32{1, 1, 1, 1}
	buf := make([]byte, BufferSize(len(values), Float32))
	FromFloats(values, buf, Float32, len(values))

	Clear(buf, Float32, 1, 2)

	out := make([]float32, len(values))
	ToFloats(buf, Float32, out, len(values))
	requireT.Equal([]float32{1, 0, 0, 1}, out)
}
