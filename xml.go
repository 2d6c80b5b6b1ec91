package waveseq

import (
	"encoding/xml"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/outofforest/waveseq/blockfile"
	"github.com/outofforest/waveseq/dirman"
	"github.com/outofforest/waveseq/samples"
)

// Bounds accepted for the maxsamples attribute of a project file; a pretty
// wide range of reasonable values.
const (
	minLoadedMaxSamples = 1024
	maxLoadedMaxSamples = 64 * 1048576
)

// WriteXML persists the sequence as a <sequence> element. Non-aliased blocks
// exceeding the maximum length are truncated first with a warning.
func (s *Sequence) WriteXML(w io.Writer) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	seqStart := xml.StartElement{
		Name: xml.Name{Local: "sequence"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "maxsamples"}, Value: strconv.Itoa(s.maxSamples)},
			{Name: xml.Name{Local: "sampleformat"}, Value: strconv.Itoa(int(s.format))},
			{Name: xml.Name{Local: "numsamples"}, Value: strconv.FormatInt(s.numSamples, 10)},
		},
	}
	if err := enc.EncodeToken(seqStart); err != nil {
		return errors.WithStack(err)
	}

	for _, b := range s.blocks {
		// Don't truncate aliased blocks: converting the sample format
		// changes maxSamples but not the number of samples in the foreign
		// file.
		if !b.File.IsAlias() && b.File.Length() > s.maxSamples {
			s.log.Warnf("block file of %d samples exceeds the %d maximum, truncating",
				b.File.Length(), s.maxSamples)
			b.File.SetLength(s.maxSamples)
		}

		wbStart := xml.StartElement{
			Name: xml.Name{Local: "waveblock"},
			Attr: []xml.Attr{
				{Name: xml.Name{Local: "start"}, Value: strconv.FormatInt(b.Start, 10)},
			},
		}
		if err := enc.EncodeToken(wbStart); err != nil {
			return errors.WithStack(err)
		}
		if err := b.File.SaveXML(enc); err != nil {
			return errors.WithStack(err)
		}
		if err := enc.EncodeToken(wbStart.End()); err != nil {
			return errors.WithStack(err)
		}
	}

	if err := enc.EncodeToken(seqStart.End()); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(enc.Flush())
}

// ReadXML restores a sequence from a <sequence> element. Structural damage
// is repaired in place: missing block files become silence covering the gap,
// starts are rewritten to be contiguous and the sample count is reconciled.
// Every repair sets the ErrorOpening flag.
func ReadXML(r io.Reader, dm *dirman.Manager) (*Sequence, error) {
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "sequence" {
			return nil, errors.Errorf("expected sequence tag, got %s", start.Name.Local)
		}
		return readSequence(dec, start, dm)
	}
}

func readSequence(dec *xml.Decoder, start xml.StartElement, dm *dirman.Manager) (*Sequence, error) {
	var maxSamples int64 = -1
	var format samples.Format
	var numSamples int64

	for _, a := range start.Attr {
		switch a.Name.Local {
		case "maxsamples":
			v, err := nonNegativeInt64(a.Value)
			if err != nil {
				return nil, errors.Wrap(err, "bad maxsamples attribute")
			}
			if v < minLoadedMaxSamples || v > maxLoadedMaxSamples {
				return nil, errors.Errorf("maxsamples %d is outside [%d, %d]",
					v, minLoadedMaxSamples, maxLoadedMaxSamples)
			}
			maxSamples = v
		case "sampleformat":
			v, err := nonNegativeInt64(a.Value)
			if err != nil {
				return nil, errors.Wrap(err, "bad sampleformat attribute")
			}
			format, err = samples.FormatFromUint(uint64(v))
			if err != nil {
				return nil, err
			}
		case "numsamples":
			v, err := nonNegativeInt64(a.Value)
			if err != nil {
				return nil, errors.Wrap(err, "bad numsamples attribute")
			}
			numSamples = v
		}
	}
	if maxSamples < 0 || !format.Valid() {
		return nil, errors.New("sequence tag is missing maxsamples or sampleformat")
	}

	s := New(dm, format)
	s.maxSamples = int(maxSamples)
	s.minSamples = s.maxSamples / 2
	s.numSamples = numSamples

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "waveblock" {
				if err := dec.Skip(); err != nil {
					return nil, errors.WithStack(err)
				}
				continue
			}
			if err := s.readWaveBlock(dec, t); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if t.Name.Local == "sequence" {
				s.repairAfterLoad()
				return s, nil
			}
		}
	}
}

func (s *Sequence) readWaveBlock(dec *xml.Decoder, start xml.StartElement) error {
	blockStart := int64(-1)
	for _, a := range start.Attr {
		if a.Name.Local != "start" {
			continue
		}
		v, err := nonNegativeInt64(a.Value)
		if err != nil {
			s.log.Warnf("waveblock has bad start attribute %q", a.Value)
			s.errorOpening = true
			return errors.WithStack(dec.Skip())
		}
		blockStart = v
	}
	if blockStart < 0 {
		s.log.Warnf("waveblock without a start attribute")
		s.errorOpening = true
		return errors.WithStack(dec.Skip())
	}

	entry := SeqBlock{Start: blockStart}

	for {
		tok, err := dec.Token()
		if err != nil {
			return errors.WithStack(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			file, err := s.dm.HandleXMLChild(t, s.format)
			if err != nil {
				s.log.Warnf("restoring block file failed: %s", err)
				s.errorOpening = true
			} else {
				entry.File = file
			}
			if err := dec.Skip(); err != nil {
				return errors.WithStack(err)
			}
		case xml.EndElement:
			if t.Name.Local == "waveblock" {
				s.blocks = append(s.blocks, entry)
				return nil
			}
		}
	}
}

// repairAfterLoad makes the loaded sequence satisfy the invariants:
// missing block files become silence covering the gap, starts are made
// contiguous, the sample count is reconciled with the block lengths.
func (s *Sequence) repairAfterLoad() {
	for i := range s.blocks {
		if s.blocks[i].File != nil {
			continue
		}
		var gap int64
		if i < len(s.blocks)-1 {
			gap = s.blocks[i+1].Start - s.blocks[i].Start
		} else {
			gap = s.numSamples - s.blocks[i].Start
		}
		if gap > int64(s.maxSamples) {
			// The length could be why the block file failed; limiting the
			// replacement may orphan some block files.
			s.log.Warnf("missing block file of length %d exceeds %d samples, limiting the silent replacement",
				gap, s.maxSamples)
			gap = int64(s.maxSamples)
		}
		if gap < 0 {
			gap = 0
		}
		s.log.Warnf("gap in project file, replacing missing block file with silence")
		s.blocks[i].File = blockfile.NewSilent(int(gap))
		s.errorOpening = true
	}

	var pos int64
	for i := range s.blocks {
		if s.blocks[i].Start != pos {
			s.log.Warnf("block file start %d is not one sample past the previous block's end %d, moving it",
				s.blocks[i].Start, pos)
			s.blocks[i].Start = pos
			s.errorOpening = true
		}
		pos += int64(s.blocks[i].File.Length())
	}
	if s.numSamples != pos {
		s.log.Warnf("correcting sequence sample count from %d to %d", s.numSamples, pos)
		s.numSamples = pos
		s.errorOpening = true
	}
}

func nonNegativeInt64(v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if n < 0 {
		return 0, errors.Errorf("value %d must be non-negative", n)
	}
	return n, nil
}
