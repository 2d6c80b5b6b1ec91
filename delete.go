package waveseq

import (
	"github.com/outofforest/waveseq/blockfile"
	"github.com/outofforest/waveseq/samples"
)

// Delete removes n samples starting at the position. Fragments left at the
// edges of the deleted range that fall below the minimum block size are
// absorbed into their neighbors so that no undersized block lands in the
// middle of the sequence. Strong guarantee.
func (s *Sequence) Delete(start, n int64) error {
	if n == 0 {
		return nil
	}
	if n < 0 || start < 0 || start >= s.numSamples || start+n > s.numSamples {
		return inconsistency("deletion of %d samples at %d exceeds the sequence of %d samples",
			n, start, s.numSamples)
	}

	// The background decoder iterates the block list; deletion restructures
	// it, so both sides serialize on the same mutex.
	s.deleteUpdateMu.Lock()
	defer s.deleteUpdateMu.Unlock()

	numBlocks := len(s.blocks)
	b0 := s.findBlock(start)
	b1 := s.findBlock(start + n - 1)
	sampleSize := s.format.Bytes()

	scratch := make([]byte, samples.BufferSize(s.maxSamples+s.minSamples, s.format))

	// Deletion within a single block leaving a block of acceptable size:
	// rewrite that block alone.
	if b0 == b1 {
		block := s.blocks[b0]
		length := block.File.Length()
		if int64(length)-n >= int64(s.minSamples) || (numBlocks == 1 && int64(length) > n) {
			pos := int(start - block.Start)
			newLen := length - int(n)

			if _, err := s.readBlock(scratch, s.format, block, 0, pos, true); err != nil {
				return err
			}
			if _, err := s.readBlock(scratch[pos*sampleSize:], s.format, block,
				pos+int(n), newLen-pos, true); err != nil {
				return err
			}

			file, err := s.dm.NewSimpleBlockFile(scratch, newLen, s.format)
			if err != nil {
				return err
			}

			// Modifying one entry in place still gives the strong guarantee.
			old := block.File
			s.blocks[b0].File = file
			for i := b0 + 1; i < numBlocks; i++ {
				s.blocks[i].Start -= n
			}
			s.numSamples -= n
			if err := s.dm.Deref(old); err != nil {
				s.log.Warnf("releasing block file %s failed: %s", old.Name(), err)
			}

			s.assertConsistent("Delete branch one")
			return nil
		}
	}

	newBlocks := make([]SeqBlock, 0, numBlocks-(b1-b0)+2)
	newBlocks = append(newBlocks, s.blocks[:b0]...)
	var added []blockfile.BlockFile

	preBlock := s.blocks[b0]
	preBufferLen := int(start - preBlock.Start)
	postBlock := s.blocks[b1]
	postBufferLen := int(postBlock.Start + int64(postBlock.File.Length()) - (start + n))
	postConsumed := false

	// The samples of block b0 before the deletion point: emit as a block of
	// their own when large enough, otherwise absorb into a neighbor. At the
	// sequence start the only neighbors are ahead, so a small pre-fragment
	// merges forward across the deleted range.
	if preBufferLen > 0 {
		switch {
		case preBufferLen >= s.minSamples:
			if _, err := s.readBlock(scratch, s.format, preBlock, 0, preBufferLen, true); err != nil {
				return err
			}
			file, err := s.dm.NewSimpleBlockFile(scratch, preBufferLen, s.format)
			if err != nil {
				return err
			}
			added = append(added, file)
			newBlocks = append(newBlocks, SeqBlock{Start: preBlock.Start, File: file})

		case b0 > 0:
			prepreBlock := s.blocks[b0-1]
			prepreLen := prepreBlock.File.Length()
			sum := prepreLen + preBufferLen

			if _, err := s.readBlock(scratch, s.format, prepreBlock, 0, prepreLen, true); err != nil {
				return err
			}
			if _, err := s.readBlock(scratch[prepreLen*sampleSize:], s.format,
				preBlock, 0, preBufferLen, true); err != nil {
				return err
			}

			newBlocks = newBlocks[:len(newBlocks)-1]
			var err error
			newBlocks, err = s.blockify(newBlocks, &added, prepreBlock.Start, scratch, sum)
			if err != nil {
				s.releaseAdded(added)
				return err
			}

		case postBufferLen > 0:
			// Merge the pre-fragment with the samples surviving after the
			// deleted range; when that is still undersized and more blocks
			// follow, absorb the next block as well.
			pos := int(start + n - postBlock.Start)
			sum := preBufferLen + postBufferLen
			absorbNext := sum < s.minSamples && b1+1 < numBlocks
			if absorbNext {
				sum += s.blocks[b1+1].File.Length()
			}

			buffer := scratch
			if samples.BufferSize(sum, s.format) > len(scratch) {
				buffer = make([]byte, samples.BufferSize(sum, s.format))
			}

			if _, err := s.readBlock(buffer, s.format, preBlock, 0, preBufferLen, true); err != nil {
				return err
			}
			if _, err := s.readBlock(buffer[preBufferLen*sampleSize:], s.format,
				postBlock, pos, postBufferLen, true); err != nil {
				return err
			}
			if absorbNext {
				nextBlock := s.blocks[b1+1]
				if _, err := s.readBlock(buffer[(preBufferLen+postBufferLen)*sampleSize:], s.format,
					nextBlock, 0, nextBlock.File.Length(), true); err != nil {
					return err
				}
			}

			var err error
			newBlocks, err = s.blockify(newBlocks, &added, preBlock.Start, buffer, sum)
			if err != nil {
				s.releaseAdded(added)
				return err
			}
			if absorbNext {
				b1++
			}
			postConsumed = true

		case b1+1 < numBlocks:
			// Nothing survives of block b1; absorb the pre-fragment into
			// the block following the deleted range.
			nextBlock := s.blocks[b1+1]
			nextLen := nextBlock.File.Length()
			sum := preBufferLen + nextLen

			if _, err := s.readBlock(scratch, s.format, preBlock, 0, preBufferLen, true); err != nil {
				return err
			}
			if _, err := s.readBlock(scratch[preBufferLen*sampleSize:], s.format,
				nextBlock, 0, nextLen, true); err != nil {
				return err
			}

			var err error
			newBlocks, err = s.blockify(newBlocks, &added, preBlock.Start, scratch, sum)
			if err != nil {
				s.releaseAdded(added)
				return err
			}
			b1++
			postConsumed = true

		default:
			// The fragment becomes the sole block of the sequence.
			if _, err := s.readBlock(scratch, s.format, preBlock, 0, preBufferLen, true); err != nil {
				return err
			}
			file, err := s.dm.NewSimpleBlockFile(scratch, preBufferLen, s.format)
			if err != nil {
				return err
			}
			added = append(added, file)
			newBlocks = append(newBlocks, SeqBlock{Start: preBlock.Start, File: file})
		}
	}

	// Symmetrically, the samples of block b1 after the deletion point.
	if postBufferLen > 0 && !postConsumed {
		pos := int(start + n - postBlock.Start)
		if postBufferLen >= s.minSamples || b1 == numBlocks-1 {
			if _, err := s.readBlock(scratch, s.format, postBlock, pos, postBufferLen, true); err != nil {
				s.releaseAdded(added)
				return err
			}
			file, err := s.dm.NewSimpleBlockFile(scratch, postBufferLen, s.format)
			if err != nil {
				s.releaseAdded(added)
				return err
			}
			added = append(added, file)
			newBlocks = append(newBlocks, SeqBlock{Start: start, File: file})
		} else {
			postpostBlock := s.blocks[b1+1]
			postpostLen := postpostBlock.File.Length()
			sum := postpostLen + postBufferLen

			if _, err := s.readBlock(scratch, s.format, postBlock, pos, postBufferLen, true); err != nil {
				s.releaseAdded(added)
				return err
			}
			if _, err := s.readBlock(scratch[postBufferLen*sampleSize:], s.format,
				postpostBlock, 0, postpostLen, true); err != nil {
				s.releaseAdded(added)
				return err
			}

			var err error
			newBlocks, err = s.blockify(newBlocks, &added, start, scratch, sum)
			if err != nil {
				s.releaseAdded(added)
				return err
			}
			b1++
		}
	}

	for i := b1 + 1; i < numBlocks; i++ {
		newBlocks = append(newBlocks, s.blocks[i].plus(-n))
	}

	if err := s.commitIfConsistent(newBlocks, s.numSamples-n, "Delete branch two"); err != nil {
		s.releaseAdded(added)
		return err
	}
	return nil
}
