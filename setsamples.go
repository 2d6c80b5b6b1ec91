package waveseq

import (
	"github.com/outofforest/waveseq/blockfile"
	"github.com/outofforest/waveseq/samples"
)

// SetSamples overwrites n samples starting at the position without changing
// the sample count. A nil buffer fills the range with silence. Blocks are
// never written in place: each touched block is read whole, patched in
// memory and written as a fresh block file, so shared copies and the undo
// history keep their data. Strong guarantee.
func (s *Sequence) SetSamples(buf []byte, f samples.Format, start, n int64) error {
	if n < 0 || start < 0 || start >= s.numSamples || start+n > s.numSamples {
		return inconsistency("overwrite of %d samples at %d exceeds the sequence of %d samples",
			n, start, s.numSamples)
	}

	scratch := make([]byte, samples.BufferSize(s.maxSamples, s.format))
	var temp []byte
	if buf != nil && f != s.format {
		temp = make([]byte, samples.BufferSize(s.maxSamples, s.format))
	}

	b := s.findBlock(start)
	newBlocks := make([]SeqBlock, 0, len(s.blocks))
	newBlocks = append(newBlocks, s.blocks[:b]...)
	var added []blockfile.BlockFile

	for n != 0 {
		block := s.blocks[b]
		// start is within block
		bstart := int(start - block.Start)
		fileLength := block.File.Length()
		blen := fileLength - bstart
		if int64(blen) > n {
			blen = int(n)
		}

		useBuf := buf
		if buf != nil && f != s.format {
			samples.Convert(buf, f, temp, s.format, blen)
			useBuf = temp
		}

		if fileLength > s.maxSamples || bstart+blen > fileLength {
			s.releaseAdded(added)
			return inconsistency("block of length %d cannot take %d samples at %d",
				fileLength, blen, bstart)
		}

		var file blockfile.BlockFile
		var err error
		if bstart > 0 || blen < fileLength {
			if _, err := s.readBlock(scratch, s.format, block, 0, fileLength, true); err != nil {
				s.releaseAdded(added)
				return err
			}
			if useBuf != nil {
				copy(scratch[bstart*s.format.Bytes():], useBuf[:samples.BufferSize(blen, s.format)])
			} else {
				samples.Clear(scratch, s.format, bstart, blen)
			}
			file, err = s.dm.NewSimpleBlockFile(scratch, fileLength, s.format)
		} else if useBuf != nil {
			// The replacement is total, skip reading the old block.
			file, err = s.dm.NewSimpleBlockFile(useBuf, fileLength, s.format)
		} else {
			file = blockfile.NewSilent(fileLength)
		}
		if err != nil {
			s.releaseAdded(added)
			return err
		}
		added = append(added, file)
		newBlocks = append(newBlocks, SeqBlock{Start: block.Start, File: file})

		if buf != nil {
			buf = buf[samples.BufferSize(blen, f):]
		}
		n -= int64(blen)
		start += int64(blen)
		b++
	}

	newBlocks = append(newBlocks, s.blocks[b:]...)

	if err := s.commitIfConsistent(newBlocks, s.numSamples, "SetSamples"); err != nil {
		s.releaseAdded(added)
		return err
	}
	return nil
}

// SetSilence replaces n samples starting at the position with silence.
// Strong guarantee.
func (s *Sequence) SetSilence(start, n int64) error {
	return s.SetSamples(nil, s.format, start, n)
}

// InsertSilence inserts n zero-valued samples at the position. The silence is
// assembled from silent block files, which take no space on storage, and
// pasted in. Strong guarantee.
func (s *Sequence) InsertSilence(at, n int64) error {
	if overflows(s.numSamples, n) {
		return inconsistency("inserting %d samples into %d would overflow", n, s.numSamples)
	}
	if n <= 0 {
		return nil
	}

	// Build a throwaway sequence holding the silence. One silent block file
	// is shared by all full-size entries.
	sTrack := New(s.dm, s.format)
	sTrack.minSamples = s.minSamples
	sTrack.maxSamples = s.maxSamples

	idealSamples := int64(s.IdealBlockSize())
	var pos int64

	var silentFile blockfile.BlockFile
	if n >= idealSamples {
		silentFile = blockfile.NewSilent(int(idealSamples))
	}
	for n >= idealSamples {
		sTrack.blocks = append(sTrack.blocks, SeqBlock{Start: pos, File: silentFile})
		pos += idealSamples
		n -= idealSamples
	}
	if n != 0 {
		sTrack.blocks = append(sTrack.blocks, SeqBlock{Start: pos, File: blockfile.NewSilent(int(n))})
		pos += n
	}
	sTrack.numSamples = pos

	return s.Paste(at, sTrack)
}
