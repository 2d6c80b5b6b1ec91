package blockfile

import (
	"encoding/binary"
	"encoding/xml"
	"math"
	"strconv"

	"github.com/outofforest/photon"
	"github.com/pkg/errors"

	"github.com/outofforest/waveseq/samples"
	"github.com/outofforest/waveseq/storage"
)

// blockSubject identifies a block-file payload on storage.
const blockSubject = 0x00316b6c62767761

// fileHeader is the fixed prefix of a simple block-file payload. The two
// summary frame arrays follow it, then the raw sample bytes.
type fileHeader struct {
	Subject    uint64
	Length     int64
	NFrames256 int64
	NFrames64K int64
	Min        float32
	Max        float32
	RMS        float32
	Format     uint16
}

var headerSize = int64(len(photon.NewFromValue(&fileHeader{}).B))

// Simple is a block file owning its sample payload on storage.
type Simple struct {
	lockable

	store      storage.Store
	name       string
	format     samples.Format
	length     int
	summary    Summary
	payloadOff int64
}

// NewSimple writes n samples from buf (already in the format) to storage under
// the name and returns the block file.
func NewSimple(store storage.Store, name string, buf []byte, n int, f samples.Format) (*Simple, error) {
	floats := make([]float32, n)
	samples.ToFloats(buf, f, floats, n)
	summary := ComputeSummary(floats)

	head := photon.NewFromValue(&fileHeader{
		Subject:    blockSubject,
		Length:     int64(n),
		NFrames256: int64(len(summary.Frames256)),
		NFrames64K: int64(len(summary.Frames64K)),
		Min:        summary.All.Min,
		Max:        summary.All.Max,
		RMS:        summary.All.RMS,
		Format:     uint16(f),
	})

	framesBytes := 12 * (len(summary.Frames256) + len(summary.Frames64K))
	payload := make([]byte, 0, int(headerSize)+framesBytes+samples.BufferSize(n, f))
	payload = append(payload, head.B...)
	payload = appendFrames(payload, summary.Frames256)
	payload = appendFrames(payload, summary.Frames64K)
	payload = append(payload, buf[:samples.BufferSize(n, f)]...)

	if err := store.Create(name, payload); err != nil {
		return nil, err
	}

	return &Simple{
		store:      store,
		name:       name,
		format:     f,
		length:     n,
		summary:    summary,
		payloadOff: headerSize + int64(framesBytes),
	}, nil
}

// OpenSimple loads the header and summaries of an existing payload.
func OpenSimple(store storage.Store, name string) (*Simple, error) {
	headBuf := make([]byte, headerSize)
	if err := store.ReadAt(name, headBuf, 0); err != nil {
		return nil, err
	}
	head := photon.NewFromBytes[fileHeader](headBuf)
	if head.V.Subject != blockSubject {
		return nil, errors.Errorf("payload %s is not a block file", name)
	}
	f := samples.Format(head.V.Format)
	if !f.Valid() {
		return nil, errors.Errorf("payload %s carries unrecognized sample format %d", name, head.V.Format)
	}

	framesBytes := 12 * int(head.V.NFrames256+head.V.NFrames64K)
	framesBuf := make([]byte, framesBytes)
	if err := store.ReadAt(name, framesBuf, headerSize); err != nil {
		return nil, err
	}

	summary := Summary{
		All: Stats{
			Min: head.V.Min,
			Max: head.V.Max,
			RMS: head.V.RMS,
		},
		Frames256: readFrames(framesBuf, int(head.V.NFrames256)),
		Frames64K: readFrames(framesBuf[12*head.V.NFrames256:], int(head.V.NFrames64K)),
	}

	return &Simple{
		store:      store,
		name:       name,
		format:     f,
		length:     int(head.V.Length),
		summary:    summary,
		payloadOff: headerSize + int64(framesBytes),
	}, nil
}

// Name implements BlockFile.
func (s *Simple) Name() string {
	return s.name
}

// Length implements BlockFile.
func (s *Simple) Length() int {
	return s.length
}

// Format returns the encoding the payload is stored in.
func (s *Simple) Format() samples.Format {
	return s.format
}

// SetLength implements BlockFile.
func (s *Simple) SetLength(n int) {
	if n < s.length {
		s.length = n
	}
}

// ReadData implements BlockFile.
func (s *Simple) ReadData(buf []byte, f samples.Format, start, n int, mayThrow bool) (int, error) {
	if start < 0 || n < 0 || start+n > s.length {
		err := errors.Errorf("read of %d samples at %d exceeds block %s of length %d",
			n, start, s.name, s.length)
		if mayThrow {
			return 0, err
		}
		samples.Clear(buf, f, 0, n)
		return 0, nil
	}

	raw := buf
	if f != s.format {
		raw = make([]byte, samples.BufferSize(n, s.format))
	}
	off := s.payloadOff + int64(samples.BufferSize(start, s.format))
	if err := s.store.ReadAt(s.name, raw[:samples.BufferSize(n, s.format)], off); err != nil {
		if mayThrow {
			return 0, err
		}
		samples.Clear(buf, f, 0, n)
		return 0, nil
	}
	if f != s.format {
		samples.Convert(raw, s.format, buf, f, n)
	}
	return n, nil
}

// Read256 implements BlockFile.
func (s *Simple) Read256(out []float32, start, n int) bool {
	return copyFrames(s.summary.Frames256, out, start, n)
}

// Read64K implements BlockFile.
func (s *Simple) Read64K(out []float32, start, n int) bool {
	return copyFrames(s.summary.Frames64K, out, start, n)
}

// MinMaxRMS implements BlockFile.
func (s *Simple) MinMaxRMS(mayThrow bool) (Stats, error) {
	return s.summary.All, nil
}

// MinMaxRMSRange implements BlockFile.
func (s *Simple) MinMaxRMSRange(start, n int, mayThrow bool) (Stats, error) {
	if start == 0 && n >= s.length {
		return s.summary.All, nil
	}
	buf := make([]byte, samples.BufferSize(n, samples.Float32))
	read, err := s.ReadData(buf, samples.Float32, start, n, mayThrow)
	if err != nil {
		return Stats{}, err
	}
	floats := make([]float32, read)
	samples.ToFloats(buf, samples.Float32, floats, read)
	return statsOf(floats), nil
}

// IsAlias implements BlockFile.
func (s *Simple) IsAlias() bool {
	return false
}

// IsDataAvailable implements BlockFile.
func (s *Simple) IsDataAvailable() bool {
	return true
}

// IsSummaryAvailable implements BlockFile.
func (s *Simple) IsSummaryAvailable() bool {
	return true
}

// SaveXML implements BlockFile.
func (s *Simple) SaveXML(e *xml.Encoder) error {
	return saveEmptyElement(e, "simpleblockfile", []xml.Attr{
		{Name: xml.Name{Local: "name"}, Value: s.name},
		{Name: xml.Name{Local: "len"}, Value: strconv.Itoa(s.length)},
		{Name: xml.Name{Local: "format"}, Value: strconv.Itoa(int(s.format))},
	})
}

func appendFrames(payload []byte, frames []Stats) []byte {
	var scratch [4]byte
	for _, f := range frames {
		for _, v := range []float32{f.Min, f.Max, f.RMS} {
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(v))
			payload = append(payload, scratch[:]...)
		}
	}
	return payload
}

func readFrames(buf []byte, n int) []Stats {
	frames := make([]Stats, n)
	for i := range frames {
		o := 12 * i
		frames[i] = Stats{
			Min: math.Float32frombits(binary.LittleEndian.Uint32(buf[o:])),
			Max: math.Float32frombits(binary.LittleEndian.Uint32(buf[o+4:])),
			RMS: math.Float32frombits(binary.LittleEndian.Uint32(buf[o+8:])),
		}
	}
	return frames
}
