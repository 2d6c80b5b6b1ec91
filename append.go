package waveseq

import (
	"github.com/outofforest/waveseq/blockfile"
	"github.com/outofforest/waveseq/samples"
)

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// releaseAdded drops references on block files created for a candidate list
// that never got committed. Failures only log: the mutation already failed
// and the sequence is unchanged.
func (s *Sequence) releaseAdded(added []blockfile.BlockFile) {
	for _, f := range added {
		if err := s.dm.Deref(f); err != nil {
			s.log.Warnf("releasing block file %s failed: %s", f.Name(), err)
		}
	}
}

// blockify splits a contiguous buffer of n samples (in the sequence format)
// into nearly equal blocks of at most maxSamples each and appends them to the
// list. Newly written files are recorded in added.
func (s *Sequence) blockify(list []SeqBlock, added *[]blockfile.BlockFile, start int64, buf []byte, n int) ([]SeqBlock, error) {
	if n <= 0 {
		return list, nil
	}
	num := (n + s.maxSamples - 1) / s.maxSamples

	for i := 0; i < num; i++ {
		offset := i * n / num
		newLen := (i+1)*n/num - offset

		file, err := s.dm.NewSimpleBlockFile(buf[samples.BufferSize(offset, s.format):], newLen, s.format)
		if err != nil {
			return nil, err
		}
		*added = append(*added, file)
		list = append(list, SeqBlock{Start: start + int64(offset), File: file})
	}
	return list, nil
}

// Append adds n samples from buf to the end of the sequence, converting from
// the buffer's format when it differs. A sub-minimum final block is enlarged
// in place first. Strong guarantee.
func (s *Sequence) Append(buf []byte, f samples.Format, n int) error {
	if n == 0 {
		return nil
	}
	if overflows(s.numSamples, int64(n)) {
		return inconsistency("appending %d samples to %d would overflow", n, s.numSamples)
	}

	var newBlocks []SeqBlock
	var added []blockfile.BlockFile
	newNumSamples := s.numSamples

	scratch := make([]byte, samples.BufferSize(s.maxSamples, s.format))
	replaceLast := false

	// If the last block is below the minimum, enlarge it with the leading
	// part of the input.
	if len(s.blocks) > 0 {
		last := s.blocks[len(s.blocks)-1]
		length := last.File.Length()
		if length < s.minSamples {
			addLen := minInt(s.maxSamples-length, n)

			if _, err := s.readBlock(scratch, s.format, last, 0, length, true); err != nil {
				return err
			}
			samples.Convert(buf, f, scratch[samples.BufferSize(length, s.format):], s.format, addLen)

			file, err := s.dm.NewSimpleBlockFile(scratch, length+addLen, s.format)
			if err != nil {
				return err
			}
			added = append(added, file)
			newBlocks = append(newBlocks, SeqBlock{Start: last.Start, File: file})

			n -= addLen
			newNumSamples += int64(addLen)
			buf = buf[samples.BufferSize(addLen, f):]
			replaceLast = true
		}
	}

	// Split the rest into ideal-sized blocks.
	for n > 0 {
		addedLen := minInt(s.IdealBlockSize(), n)

		var file blockfile.BlockFile
		var err error
		if f == s.format {
			file, err = s.dm.NewSimpleBlockFile(buf, addedLen, s.format)
		} else {
			samples.Convert(buf, f, scratch, s.format, addedLen)
			file, err = s.dm.NewSimpleBlockFile(scratch, addedLen, s.format)
		}
		if err != nil {
			s.releaseAdded(added)
			return err
		}
		added = append(added, file)
		newBlocks = append(newBlocks, SeqBlock{Start: newNumSamples, File: file})

		buf = buf[samples.BufferSize(addedLen, f):]
		newNumSamples += int64(addedLen)
		n -= addedLen
	}

	if err := s.appendBlocksIfConsistent(newBlocks, replaceLast, newNumSamples, "Append"); err != nil {
		s.releaseAdded(added)
		return err
	}
	return nil
}

// AppendBlockFile pushes an entry without copying data. The file is assumed
// to carry its reference already; used for fast cross-sequence transfer.
func (s *Sequence) AppendBlockFile(bf blockfile.BlockFile) {
	s.blocks = append(s.blocks, SeqBlock{Start: s.numSamples, File: bf})
	s.numSamples += int64(bf.Length())
}

// AppendAlias appends a window over an external WAV file without copying
// samples. With useOD the summary is deferred to the background pass.
// Strong guarantee.
func (s *Sequence) AppendAlias(path string, aliasStart int64, n, channel int, useOD bool) error {
	if overflows(s.numSamples, int64(n)) {
		return inconsistency("appending %d samples to %d would overflow", n, s.numSamples)
	}

	var file blockfile.BlockFile
	var err error
	if useOD {
		file, err = s.dm.NewODAliasBlockFile(path, aliasStart, n, channel)
	} else {
		file, err = s.dm.NewAliasBlockFile(path, aliasStart, n, channel)
	}
	if err != nil {
		return err
	}

	s.blocks = append(s.blocks, SeqBlock{Start: s.numSamples, File: file})
	s.numSamples += int64(n)
	return nil
}

// AppendCoded appends a window over a non-PCM source decoded on demand.
// Strong guarantee.
func (s *Sequence) AppendCoded(path string, sourceStart int64, n, channel, decoderType int) error {
	if overflows(s.numSamples, int64(n)) {
		return inconsistency("appending %d samples to %d would overflow", n, s.numSamples)
	}

	file, err := s.dm.NewODDecodeBlockFile(path, sourceStart, n, channel, decoderType)
	if err != nil {
		return err
	}

	s.blocks = append(s.blocks, SeqBlock{Start: s.numSamples, File: file})
	s.numSamples += int64(n)
	return nil
}

// GetIdealAppendLen returns the number of samples that would fill the last
// block exactly, or a whole ideal block when the sequence ends on a boundary.
func (s *Sequence) GetIdealAppendLen() int {
	max := s.maxSamples
	if len(s.blocks) == 0 {
		return max
	}
	lastLen := s.blocks[len(s.blocks)-1].File.Length()
	if lastLen == max {
		return max
	}
	return max - lastLen
}
