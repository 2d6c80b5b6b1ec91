// Package blockfile implements the immutable on-disk units a sample sequence
// is stitched from. A block file owns a run of samples of one format together
// with a precomputed multi-resolution summary. Variants: simple (owned
// payload), silent (zero-valued, no payload), alias (window over an external
// audio file) and the on-demand flavors whose samples or summaries are
// materialized later by a background decoder.
package blockfile

import (
	"encoding/xml"
	"sync"

	"github.com/pkg/errors"

	"github.com/outofforest/waveseq/samples"
)

// BlockFile is an immutable, reference-shared run of samples.
type BlockFile interface {
	// Name is the durable identity used for refcounting and project files.
	// Silent blocks have no identity and return "".
	Name() string

	// Length returns the sample count.
	Length() int

	// SetLength truncates the block. Only used to trim oversized legacy
	// blocks before save.
	SetLength(n int)

	// ReadData fills buf with n samples converted to the format, starting at
	// the block-relative sample index. Returns the number of samples actually
	// read. When mayThrow is false a failed read zero-fills the buffer and
	// reports a short count instead of an error.
	ReadData(buf []byte, f samples.Format, start, n int, mayThrow bool) (int, error)

	// Read256 copies n (min, max, rms) triples of the 1:256 summary starting
	// at frame index start into out. Returns false and zero-fills on a
	// failed or out-of-range read.
	Read256(out []float32, start, n int) bool

	// Read64K is Read256 at decimation 1:65536.
	Read64K(out []float32, start, n int) bool

	// MinMaxRMS returns the stats over the whole block.
	MinMaxRMS(mayThrow bool) (Stats, error)

	// MinMaxRMSRange returns the stats over n samples starting at the
	// block-relative index.
	MinMaxRMSRange(start, n int, mayThrow bool) (Stats, error)

	// IsAlias tells whether samples are read through a foreign file.
	IsAlias() bool

	// IsDataAvailable tells whether samples can be read right now.
	IsDataAvailable() bool

	// IsSummaryAvailable tells whether the decimated summaries can be read
	// right now.
	IsSummaryAvailable() bool

	// Lock pins the block against deletion for the duration of a save.
	Lock()

	// Unlock releases a Lock.
	Unlock()

	// CloseLock pins the block for the final save while closing; it is never
	// paired with Unlock.
	CloseLock()

	// Locked tells whether any lock is held.
	Locked() bool

	// SaveXML emits the block-file-specific child tag of <waveblock>.
	SaveXML(e *xml.Encoder) error
}

// DecodeFunc produces the samples of an on-demand block from its source file.
// It is supplied by the host running the background decoder.
type DecodeFunc func(path string, start int64, n, channel, decoderType int) ([]float32, error)

// ODPCMSummary is the on-demand flag reported when a block still needs its
// summary computed. Decoder-type flags occupy the higher bits.
const ODPCMSummary = 1

// lockable implements the lock bookkeeping shared by all variants.
type lockable struct {
	mu    sync.Mutex
	locks int
}

func (l *lockable) Lock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks++
}

func (l *lockable) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks > 0 {
		l.locks--
	}
}

func (l *lockable) CloseLock() {
	l.Lock()
}

func (l *lockable) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locks > 0
}

func errInvalidRange(start, n, length int) error {
	return errors.Errorf("read of %d samples at %d exceeds block of length %d", n, start, length)
}

// saveEmptyElement writes a self-closing tag with the attributes.
func saveEmptyElement(e *xml.Encoder, name string, attrs []xml.Attr) error {
	start := xml.StartElement{
		Name: xml.Name{Local: name},
		Attr: attrs,
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}
