package waveseq

import (
	"github.com/outofforest/waveseq/blockfile"
	"github.com/outofforest/waveseq/samples"
)

// Copy returns a new sequence over the samples in [s0, s1). Fully contained
// blocks are shared by reference; the partial blocks at the edges are
// materialized as fresh simple blocks. A leading fragment below the minimum
// block size is merged with the following block so the copy keeps the sizing
// invariant.
func (s *Sequence) Copy(s0, s1 int64) (*Sequence, error) {
	dest := New(s.dm, s.format)
	dest.minSamples = s.minSamples
	dest.maxSamples = s.maxSamples
	if s0 >= s1 || s0 >= s.numSamples || s1 < 0 {
		return dest, nil
	}
	if s1 > s.numSamples {
		s1 = s.numSamples
	}

	b0 := s.findBlock(s0)
	b1 := s.findBlock(s1 - 1)

	buffer := make([]byte, samples.BufferSize(s.maxSamples+s.minSamples, s.format))

	// The first block, when entered mid-way, is copied by value.
	block0 := s.blocks[b0]
	if s0 != block0.Start {
		end := block0.Start + int64(block0.File.Length())
		if s1 < end {
			end = s1
		}
		blocklen := int(end - s0)

		if blocklen >= s.minSamples || b1 == b0 {
			if _, err := s.getFrom(b0, buffer, s.format, s0, blocklen, true); err != nil {
				return nil, err
			}
			if err := dest.Append(buffer, s.format, blocklen); err != nil {
				return nil, err
			}
		} else {
			// The fragment is undersized and more blocks follow: merge it
			// with the next block's in-range portion.
			next := s.blocks[b0+1]
			nextEnd := next.Start + int64(next.File.Length())
			if s1 < nextEnd {
				nextEnd = s1
			}
			nextLen := int(nextEnd - next.Start)

			if _, err := s.getFrom(b0, buffer, s.format, s0, blocklen, true); err != nil {
				return nil, err
			}
			if _, err := s.getFrom(b0+1, buffer[samples.BufferSize(blocklen, s.format):],
				s.format, next.Start, nextLen, true); err != nil {
				return nil, err
			}

			var added []blockfile.BlockFile
			newBlocks, err := dest.blockify(dest.blocks, &added, 0, buffer, blocklen+nextLen)
			if err != nil {
				dest.releaseAdded(added)
				return nil, err
			}
			dest.blocks = newBlocks
			dest.numSamples = int64(blocklen + nextLen)
			b0++
		}
	} else {
		b0--
	}

	// Blocks in the middle are shared by reference.
	for bb := b0 + 1; bb < b1; bb++ {
		var err error
		dest.blocks, err = appendBlock(dest.dm, dest.blocks, &dest.numSamples, s.blocks[bb])
		if err != nil {
			dest.Close()
			return nil, err
		}
	}

	// The last block, when cut short, is copied by value too.
	if b1 > b0 {
		block := s.blocks[b1]
		blocklen := int(s1 - block.Start)
		if blocklen < block.File.Length() {
			if _, err := s.getFrom(b1, buffer, s.format, block.Start, blocklen, true); err != nil {
				dest.Close()
				return nil, err
			}
			if err := dest.Append(buffer, s.format, blocklen); err != nil {
				dest.Close()
				return nil, err
			}
		} else {
			var err error
			dest.blocks, err = appendBlock(dest.dm, dest.blocks, &dest.numSamples, block)
			if err != nil {
				dest.Close()
				return nil, err
			}
		}
	}

	dest.assertConsistent("Copy")
	return dest, nil
}
