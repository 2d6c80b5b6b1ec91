package blockfile

import (
	"encoding/xml"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/outofforest/waveseq/samples"
)

// ODAlias is an alias block whose summary has not been computed yet. Sample
// data is readable through the foreign file immediately; the decimated
// summaries become available once the background pass calls ComputeSummary.
type ODAlias struct {
	Alias

	sumMu sync.Mutex
}

// NewODAlias returns an on-demand alias block. No I/O happens until samples
// are read or the summary pass runs.
func NewODAlias(path string, aliasStart int64, n, channel int) *ODAlias {
	return &ODAlias{
		Alias: Alias{
			path:       path,
			aliasStart: aliasStart,
			length:     n,
			channel:    channel,
		},
	}
}

// ComputeSummary materializes the decimated summaries from the foreign file.
// Safe to call from the background decoder while readers use the block.
func (a *ODAlias) ComputeSummary() error {
	a.sumMu.Lock()
	defer a.sumMu.Unlock()

	if a.summaryOK {
		return nil
	}
	return a.computeSummary()
}

// SaveXML implements BlockFile.
func (a *ODAlias) SaveXML(e *xml.Encoder) error {
	return saveEmptyElement(e, "odpcmaliasblockfile",
		aliasAttrs(a.path, a.aliasStart, a.length, a.channel))
}

// ODDecode is a block file over a non-PCM source whose samples have not been
// decoded yet. Reads return zeros until the background decoder materializes
// the data.
type ODDecode struct {
	lockable

	path        string
	sourceStart int64
	length      int
	channel     int
	decoderType int
	decode      DecodeFunc

	dataMu  sync.Mutex
	floats  []float32
	summary Summary
	done    bool
}

// NewODDecode returns an on-demand decode block. The decode function is
// invoked by Materialize, typically from the host's background decoder.
func NewODDecode(path string, sourceStart int64, n, channel, decoderType int, decode DecodeFunc) *ODDecode {
	return &ODDecode{
		path:        path,
		sourceStart: sourceStart,
		length:      n,
		channel:     channel,
		decoderType: decoderType,
		decode:      decode,
	}
}

// DecoderType returns the decoder this block still needs.
func (d *ODDecode) DecoderType() int {
	return d.decoderType
}

// Materialize runs the decoder and installs samples and summary.
func (d *ODDecode) Materialize() error {
	d.dataMu.Lock()
	defer d.dataMu.Unlock()

	if d.done {
		return nil
	}
	if d.decode == nil {
		return errors.Errorf("no decoder registered for %s", d.path)
	}
	floats, err := d.decode(d.path, d.sourceStart, d.length, d.channel, d.decoderType)
	if err != nil {
		return err
	}
	if len(floats) != d.length {
		return errors.Errorf("decoder produced %d samples for %s, expected %d",
			len(floats), d.path, d.length)
	}
	d.floats = floats
	d.summary = ComputeSummary(floats)
	d.done = true
	return nil
}

// Name implements BlockFile.
func (d *ODDecode) Name() string {
	return d.path + ":" + strconv.FormatInt(d.sourceStart, 10)
}

// Length implements BlockFile.
func (d *ODDecode) Length() int {
	return d.length
}

// SetLength implements BlockFile.
func (d *ODDecode) SetLength(n int) {
	d.dataMu.Lock()
	defer d.dataMu.Unlock()
	if n < d.length {
		d.length = n
		if d.done {
			d.floats = d.floats[:n]
			d.summary = ComputeSummary(d.floats)
		}
	}
}

// ReadData implements BlockFile. Before materialization the data reads as
// silence; mayThrow surfaces the not-yet-available condition instead.
func (d *ODDecode) ReadData(buf []byte, f samples.Format, start, n int, mayThrow bool) (int, error) {
	if start < 0 || n < 0 || start+n > d.length {
		if mayThrow {
			return 0, errInvalidRange(start, n, d.length)
		}
		samples.Clear(buf, f, 0, n)
		return 0, nil
	}

	d.dataMu.Lock()
	defer d.dataMu.Unlock()

	if !d.done {
		if mayThrow {
			return 0, errors.Errorf("data of %s is not decoded yet", d.Name())
		}
		samples.Clear(buf, f, 0, n)
		return 0, nil
	}
	samples.FromFloats(d.floats[start:start+n], buf, f, n)
	return n, nil
}

// Read256 implements BlockFile.
func (d *ODDecode) Read256(out []float32, start, n int) bool {
	d.dataMu.Lock()
	defer d.dataMu.Unlock()

	if !d.done {
		for i := 0; i < 3*n; i++ {
			out[i] = 0
		}
		return false
	}
	return copyFrames(d.summary.Frames256, out, start, n)
}

// Read64K implements BlockFile.
func (d *ODDecode) Read64K(out []float32, start, n int) bool {
	d.dataMu.Lock()
	defer d.dataMu.Unlock()

	if !d.done {
		for i := 0; i < 3*n; i++ {
			out[i] = 0
		}
		return false
	}
	return copyFrames(d.summary.Frames64K, out, start, n)
}

// MinMaxRMS implements BlockFile.
func (d *ODDecode) MinMaxRMS(mayThrow bool) (Stats, error) {
	d.dataMu.Lock()
	defer d.dataMu.Unlock()

	if !d.done {
		if mayThrow {
			return Stats{}, errors.Errorf("summary of %s is not decoded yet", d.Name())
		}
		return Stats{}, nil
	}
	return d.summary.All, nil
}

// MinMaxRMSRange implements BlockFile.
func (d *ODDecode) MinMaxRMSRange(start, n int, mayThrow bool) (Stats, error) {
	d.dataMu.Lock()
	defer d.dataMu.Unlock()

	if !d.done || start < 0 || start+n > d.length {
		if mayThrow {
			return Stats{}, errors.Errorf("summary range of %s is not readable", d.Name())
		}
		return Stats{}, nil
	}
	return statsOf(d.floats[start : start+n]), nil
}

// IsAlias implements BlockFile.
func (d *ODDecode) IsAlias() bool {
	return true
}

// IsDataAvailable implements BlockFile.
func (d *ODDecode) IsDataAvailable() bool {
	d.dataMu.Lock()
	defer d.dataMu.Unlock()
	return d.done
}

// IsSummaryAvailable implements BlockFile.
func (d *ODDecode) IsSummaryAvailable() bool {
	return d.IsDataAvailable()
}

// SaveXML implements BlockFile.
func (d *ODDecode) SaveXML(e *xml.Encoder) error {
	attrs := aliasAttrs(d.path, d.sourceStart, d.length, d.channel)
	attrs = append(attrs, xml.Attr{
		Name:  xml.Name{Local: "decodetype"},
		Value: strconv.Itoa(d.decoderType),
	})
	return saveEmptyElement(e, "oddecodeblockfile", attrs)
}
