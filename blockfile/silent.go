package blockfile

import (
	"encoding/xml"
	"strconv"

	"github.com/outofforest/waveseq/samples"
)

// Silent is a block file of zero-valued samples with no payload on storage.
type Silent struct {
	lockable

	length int
}

// NewSilent returns a silent block of n samples.
func NewSilent(n int) *Silent {
	return &Silent{
		length: n,
	}
}

// Name implements BlockFile.
func (s *Silent) Name() string {
	return ""
}

// Length implements BlockFile.
func (s *Silent) Length() int {
	return s.length
}

// SetLength implements BlockFile.
func (s *Silent) SetLength(n int) {
	if n < s.length {
		s.length = n
	}
}

// ReadData implements BlockFile.
func (s *Silent) ReadData(buf []byte, f samples.Format, start, n int, mayThrow bool) (int, error) {
	samples.Clear(buf, f, 0, n)
	if start < 0 || start+n > s.length {
		if mayThrow {
			return 0, errInvalidRange(start, n, s.length)
		}
		return 0, nil
	}
	return n, nil
}

// Read256 implements BlockFile.
func (s *Silent) Read256(out []float32, start, n int) bool {
	return s.readFrames(out, start, n, Sub256)
}

// Read64K implements BlockFile.
func (s *Silent) Read64K(out []float32, start, n int) bool {
	return s.readFrames(out, start, n, Sub64K)
}

// readFrames zero-fills n triples and reports whether they lie inside the
// block at the decimation.
func (s *Silent) readFrames(out []float32, start, n, decimation int) bool {
	for i := 0; i < 3*n; i++ {
		out[i] = 0
	}
	return start >= 0 && start+n <= frames(s.length, decimation)
}

// MinMaxRMS implements BlockFile.
func (s *Silent) MinMaxRMS(mayThrow bool) (Stats, error) {
	return Stats{}, nil
}

// MinMaxRMSRange implements BlockFile.
func (s *Silent) MinMaxRMSRange(start, n int, mayThrow bool) (Stats, error) {
	return Stats{}, nil
}

// IsAlias implements BlockFile.
func (s *Silent) IsAlias() bool {
	return false
}

// IsDataAvailable implements BlockFile.
func (s *Silent) IsDataAvailable() bool {
	return true
}

// IsSummaryAvailable implements BlockFile.
func (s *Silent) IsSummaryAvailable() bool {
	return true
}

// SaveXML implements BlockFile.
func (s *Silent) SaveXML(e *xml.Encoder) error {
	return saveEmptyElement(e, "silentblockfile", []xml.Attr{
		{Name: xml.Name{Local: "len"}, Value: strconv.Itoa(s.length)},
	})
}
