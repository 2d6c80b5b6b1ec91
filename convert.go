package waveseq

import (
	"github.com/outofforest/waveseq/blockfile"
	"github.com/outofforest/waveseq/samples"
)

// ConvertToSampleFormat rewrites every block in the new format and adjusts
// the block sizing window accordingly. Converted samples are re-blocked with
// a carry across block boundaries, so the result honors the new sizing
// window even when the per-sample byte width changed. Aliased blocks are kept
// as they are and convert to the sequence format on every read; nothing
// rewrites them at save. Returns
// false when the format is unchanged. Strong guarantee.
func (s *Sequence) ConvertToSampleFormat(f samples.Format) (bool, error) {
	if f == s.format {
		return false, nil
	}

	if len(s.blocks) == 0 {
		s.format = f
		s.minSamples = maxDiskBlockSize / f.Bytes() / 2
		s.maxSamples = s.minSamples * 2
		return true, nil
	}

	oldFormat := s.format
	oldMinSamples, oldMaxSamples := s.minSamples, s.maxSamples

	// The sizing window is recomputed up front because blockify depends on
	// it; the deferred restore undoes this when any later step fails.
	s.format = f
	s.minSamples = maxDiskBlockSize / f.Bytes() / 2
	s.maxSamples = s.minSamples * 2

	success := false
	defer func() {
		if !success {
			s.format = oldFormat
			s.minSamples = oldMinSamples
			s.maxSamples = oldMaxSamples
		}
	}()

	newBlocks := make([]SeqBlock, 0, 1+len(s.blocks)*(oldMaxSamples/s.maxSamples+1))
	var added []blockfile.BlockFile

	bufferOld := make([]byte, samples.BufferSize(oldMaxSamples, oldFormat))
	bufferNew := make([]byte, samples.BufferSize(oldMaxSamples, f))

	// Converted samples accumulate here until there is enough for a full
	// block plus an acceptable remainder.
	var pending []byte
	var pendingStart int64

	flushPending := func() error {
		if len(pending) == 0 {
			return nil
		}
		var err error
		newBlocks, err = s.blockify(newBlocks, &added, pendingStart, pending, len(pending)/f.Bytes())
		pending = nil
		return err
	}

	for _, oldBlock := range s.blocks {
		if oldBlock.File.IsAlias() {
			// Samples live in a foreign file; keep the entry and let reads
			// convert on the fly.
			if err := flushPending(); err != nil {
				s.releaseAdded(added)
				return false, err
			}
			newBlocks = append(newBlocks, oldBlock)
			continue
		}

		length := oldBlock.File.Length()
		if _, err := s.readBlock(bufferOld, oldFormat, oldBlock, 0, length, true); err != nil {
			s.releaseAdded(added)
			return false, err
		}
		samples.Convert(bufferOld, oldFormat, bufferNew, f, length)

		if len(pending) == 0 {
			pendingStart = oldBlock.Start
		}
		pending = append(pending, bufferNew[:samples.BufferSize(length, f)]...)

		for len(pending) >= samples.BufferSize(s.maxSamples+s.minSamples, f) {
			file, err := s.dm.NewSimpleBlockFile(pending, s.maxSamples, f)
			if err != nil {
				s.releaseAdded(added)
				return false, err
			}
			added = append(added, file)
			newBlocks = append(newBlocks, SeqBlock{Start: pendingStart, File: file})
			pendingStart += int64(s.maxSamples)
			pending = pending[samples.BufferSize(s.maxSamples, f):]
		}
	}
	if err := flushPending(); err != nil {
		s.releaseAdded(added)
		return false, err
	}

	if err := s.commitIfConsistent(newBlocks, s.numSamples, "ConvertToSampleFormat"); err != nil {
		s.releaseAdded(added)
		return false, err
	}

	success = true
	return true, nil
}
