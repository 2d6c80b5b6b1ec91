package waveseq

// findBlock returns the index of the block containing the sample position.
// Not a binary search: the guess interpolates proportionally inside the
// unsearched area, since sample counts are roughly proportional to block
// numbers. O(log log n) typical.
func (s *Sequence) findBlock(pos int64) int {
	if pos == 0 {
		return 0
	}

	lo, hi := 0, len(s.blocks)
	var loSamples, hiSamples int64 = 0, s.numSamples

	for {
		frac := float64(pos-loSamples) / float64(hiSamples-loSamples)
		guess := lo + int(frac*float64(hi-lo))
		if guess > hi-1 {
			guess = hi - 1
		}
		b := s.blocks[guess]

		if pos < b.Start {
			hi = guess
			hiSamples = b.Start
			continue
		}
		nextStart := b.Start + int64(b.File.Length())
		if pos < nextStart {
			return guess
		}
		lo = guess + 1
		loSamples = nextStart
	}
}

// GetBlockStart returns the absolute index of the first sample of the block
// containing the position.
func (s *Sequence) GetBlockStart(pos int64) int64 {
	return s.blocks[s.findBlock(pos)].Start
}

// GetBestBlockSize returns a nice number of samples to grab in one chunk in
// order to land on a block boundary, starting at the position. Always
// nonzero and never more than MaxBlockSize.
func (s *Sequence) GetBestBlockSize(start int64) int {
	if start < 0 || start >= s.numSamples {
		return s.maxSamples
	}

	b := s.findBlock(start)
	block := s.blocks[b]
	result := int(block.Start + int64(block.File.Length()) - start)

	for result < s.minSamples && b+1 < len(s.blocks) {
		length := s.blocks[b+1].File.Length()
		if result+length > s.maxSamples {
			break
		}
		b++
		result += length
	}
	return result
}
