package blockfile

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/outofforest/waveseq/samples"
)

// Alias is a block file whose samples live in a window of an external WAV
// file. The summary is computed once from the window; the sample data is
// decoded from the foreign file on every read.
type Alias struct {
	lockable

	path       string
	aliasStart int64
	length     int
	channel    int

	summary   Summary
	summaryOK bool
}

// NewAlias returns an alias block over n samples of the channel starting at
// aliasStart in the WAV file, with its summary computed eagerly.
func NewAlias(path string, aliasStart int64, n, channel int) (*Alias, error) {
	a := &Alias{
		path:       path,
		aliasStart: aliasStart,
		length:     n,
		channel:    channel,
	}
	if err := a.computeSummary(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Alias) computeSummary() error {
	floats, err := readWAVWindow(a.path, a.aliasStart, a.length, a.channel)
	if err != nil {
		return err
	}
	a.summary = ComputeSummary(floats)
	a.summaryOK = true
	return nil
}

// Name implements BlockFile.
func (a *Alias) Name() string {
	return a.path + ":" + strconv.FormatInt(a.aliasStart, 10)
}

// Length implements BlockFile.
func (a *Alias) Length() int {
	return a.length
}

// SetLength implements BlockFile.
func (a *Alias) SetLength(n int) {
	if n < a.length {
		a.length = n
	}
}

// ReadData implements BlockFile.
func (a *Alias) ReadData(buf []byte, f samples.Format, start, n int, mayThrow bool) (int, error) {
	if start < 0 || n < 0 || start+n > a.length {
		if mayThrow {
			return 0, errInvalidRange(start, n, a.length)
		}
		samples.Clear(buf, f, 0, n)
		return 0, nil
	}

	floats, err := readWAVWindow(a.path, a.aliasStart+int64(start), n, a.channel)
	if err != nil {
		if mayThrow {
			return 0, err
		}
		samples.Clear(buf, f, 0, n)
		return 0, nil
	}
	samples.FromFloats(floats, buf, f, n)
	return n, nil
}

// Read256 implements BlockFile.
func (a *Alias) Read256(out []float32, start, n int) bool {
	if !a.summaryOK {
		for i := 0; i < 3*n; i++ {
			out[i] = 0
		}
		return false
	}
	return copyFrames(a.summary.Frames256, out, start, n)
}

// Read64K implements BlockFile.
func (a *Alias) Read64K(out []float32, start, n int) bool {
	if !a.summaryOK {
		for i := 0; i < 3*n; i++ {
			out[i] = 0
		}
		return false
	}
	return copyFrames(a.summary.Frames64K, out, start, n)
}

// MinMaxRMS implements BlockFile.
func (a *Alias) MinMaxRMS(mayThrow bool) (Stats, error) {
	if !a.summaryOK {
		if mayThrow {
			return Stats{}, errors.Errorf("summary of alias block %s is not available yet", a.Name())
		}
		return Stats{}, nil
	}
	return a.summary.All, nil
}

// MinMaxRMSRange implements BlockFile.
func (a *Alias) MinMaxRMSRange(start, n int, mayThrow bool) (Stats, error) {
	floats, err := readWAVWindow(a.path, a.aliasStart+int64(start), n, a.channel)
	if err != nil {
		if mayThrow {
			return Stats{}, err
		}
		return Stats{}, nil
	}
	return statsOf(floats), nil
}

// IsAlias implements BlockFile.
func (a *Alias) IsAlias() bool {
	return true
}

// IsDataAvailable implements BlockFile.
func (a *Alias) IsDataAvailable() bool {
	return true
}

// IsSummaryAvailable implements BlockFile.
func (a *Alias) IsSummaryAvailable() bool {
	return a.summaryOK
}

// SaveXML implements BlockFile.
func (a *Alias) SaveXML(e *xml.Encoder) error {
	return saveEmptyElement(e, "pcmaliasblockfile", aliasAttrs(a.path, a.aliasStart, a.length, a.channel))
}

func aliasAttrs(path string, aliasStart int64, length, channel int) []xml.Attr {
	return []xml.Attr{
		{Name: xml.Name{Local: "aliasfile"}, Value: path},
		{Name: xml.Name{Local: "aliasstart"}, Value: strconv.FormatInt(aliasStart, 10)},
		{Name: xml.Name{Local: "aliaslen"}, Value: strconv.Itoa(length)},
		{Name: xml.Name{Local: "aliaschannel"}, Value: strconv.Itoa(channel)},
	}
}

// readWAVWindow decodes n samples of the channel starting at the absolute
// sample offset in the WAV file. The go-audio decoder reads forward only, so
// the window is reached by skipping frames in chunks.
func readWAVWindow(path string, start int64, n, channel int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.Errorf("%s is not a valid WAV file", path)
	}

	channels := int(dec.NumChans)
	if channel < 0 || channel >= channels {
		return nil, errors.Errorf("channel %d out of %d channels in %s", channel, channels, path)
	}
	divisor, err := wavDivisor(int(dec.BitDepth))
	if err != nil {
		return nil, err
	}

	const chunkFrames = 8192
	buf := &audio.IntBuffer{
		Data:   make([]int, chunkFrames*channels),
		Format: &audio.Format{SampleRate: int(dec.SampleRate), NumChannels: channels},
	}

	// Skip full frames up to the window start.
	remaining := start
	for remaining > 0 {
		frames := int64(chunkFrames)
		if frames > remaining {
			frames = remaining
		}
		buf.Data = buf.Data[:frames*int64(channels)]
		read, err := dec.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.WithStack(err)
		}
		if read == 0 {
			return nil, errors.Errorf("alias window at %d is past the end of %s", start, path)
		}
		remaining -= int64(read / channels)
	}

	out := make([]float32, 0, n)
	for len(out) < n {
		frames := chunkFrames
		if frames > n-len(out) {
			frames = n - len(out)
		}
		buf.Data = buf.Data[:frames*channels]
		read, err := dec.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.WithStack(err)
		}
		if read == 0 {
			break
		}
		for i := channel; i < read; i += channels {
			out = append(out, float32(buf.Data[i])/divisor)
		}
	}
	if len(out) < n {
		return nil, errors.Errorf("alias window of %d samples at %d exceeds %s", n, start, path)
	}
	return out[:n], nil
}

func wavDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128, nil
	case 16:
		return 32768, nil
	case 24:
		return 8388608, nil
	case 32:
		return 2147483648, nil
	default:
		return 0, errors.Errorf("unsupported bit depth: %d", bitDepth)
	}
}
