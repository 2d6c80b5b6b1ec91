package samples

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Format is the enum representing the numeric encoding of a sample.
type Format uint16

// Sample formats.
const (
	// Int16 is a 16-bit signed integer sample.
	Int16 Format = 1
	// Int24 is a 24-bit signed integer sample packed into three bytes.
	Int24 Format = 2
	// Float32 is a 32-bit IEEE 754 floating point sample.
	Float32 Format = 3
)

// Bytes returns the byte width of a single sample in the format.
func (f Format) Bytes() int {
	switch f {
	case Int16:
		return 2
	case Int24:
		return 3
	case Float32:
		return 4
	default:
		return 0
	}
}

// Valid tells whether the format is one of the recognized encodings.
func (f Format) Valid() bool {
	return f == Int16 || f == Int24 || f == Float32
}

func (f Format) String() string {
	switch f {
	case Int16:
		return "int16"
	case Int24:
		return "int24"
	case Float32:
		return "float32"
	default:
		return "invalid"
	}
}

// FormatFromUint converts a numeric code read from a project file into a Format.
func FormatFromUint(v uint64) (Format, error) {
	f := Format(v)
	if !f.Valid() {
		return 0, errors.Errorf("unrecognized sample format code: %d", v)
	}
	return f, nil
}

// BufferSize returns the byte size of a buffer holding n samples of the format.
func BufferSize(n int, f Format) int {
	return n * f.Bytes()
}

const (
	int16Scale = 1 << 15
	int24Scale = 1 << 23
)

// At reads the sample at index i of the buffer as a float32. Integer formats
// map to [-1, 1); Float32 samples are returned as stored.
func At(buf []byte, f Format, i int) float32 {
	switch f {
	case Int16:
		v := int16(binary.LittleEndian.Uint16(buf[2*i:]))
		return float32(v) / int16Scale
	case Int24:
		o := 3 * i
		v := int32(buf[o]) | int32(buf[o+1])<<8 | int32(buf[o+2])<<16
		// sign-extend from 24 bits
		v = v << 8 >> 8
		return float32(v) / int24Scale
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
}

// Put writes v into index i of the buffer, clamping integer formats at full scale.
func Put(buf []byte, f Format, i int, v float32) {
	switch f {
	case Int16:
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(clampInt(v, int16Scale)))
	case Int24:
		n := clampInt(v, int24Scale)
		o := 3 * i
		buf[o] = byte(n)
		buf[o+1] = byte(n >> 8)
		buf[o+2] = byte(n >> 16)
	default:
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
}

func clampInt(v float32, scale int32) int32 {
	s := float64(v) * float64(scale)
	if s >= float64(scale-1) {
		return scale - 1
	}
	if s <= float64(-scale) {
		return -scale
	}
	return int32(s)
}

// Convert rewrites n samples from src in srcF into dst in dstF. Same-format
// conversion degenerates to a copy.
func Convert(src []byte, srcF Format, dst []byte, dstF Format, n int) {
	if srcF == dstF {
		copy(dst[:n*dstF.Bytes()], src[:n*srcF.Bytes()])
		return
	}
	for i := 0; i < n; i++ {
		Put(dst, dstF, i, At(src, srcF, i))
	}
}

// Clear zeroes n samples of the buffer starting at sample index start.
func Clear(buf []byte, f Format, start, n int) {
	b := f.Bytes()
	for i := start * b; i < (start+n)*b; i++ {
		buf[i] = 0
	}
}

// ToFloats decodes n samples from the buffer into dst.
func ToFloats(buf []byte, f Format, dst []float32, n int) {
	for i := 0; i < n; i++ {
		dst[i] = At(buf, f, i)
	}
}

// FromFloats encodes n samples from src into the buffer.
func FromFloats(src []float32, buf []byte, f Format, n int) {
	for i := 0; i < n; i++ {
		Put(buf, f, i, src[i])
	}
}
