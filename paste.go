package waveseq

import (
	"github.com/outofforest/waveseq/blockfile"
	"github.com/outofforest/waveseq/samples"
)

// Paste inserts the source sequence at the sample position. The formats must
// match. Three strategies keep I/O and fragmentation low: refcount-bumped
// append at the end, a single rewritten block when everything fits in one,
// and the general split-and-merge. Strong guarantee.
func (s *Sequence) Paste(at int64, src *Sequence) error {
	if at < 0 || at > s.numSamples {
		return inconsistency("paste position %d is outside the sequence of %d samples", at, s.numSamples)
	}
	if overflows(s.numSamples, src.numSamples) {
		return inconsistency("pasting %d samples into %d would overflow", src.numSamples, s.numSamples)
	}
	if src.format != s.format {
		return inconsistency("paste format %s does not match destination format %s", src.format, s.format)
	}

	// Snapshot the source entries so that pasting a sequence into itself is
	// well defined.
	srcBlocks := make([]SeqBlock, len(src.blocks))
	copy(srcBlocks, src.blocks)
	addedLen := src.numSamples

	if addedLen == 0 || len(srcBlocks) == 0 {
		return nil
	}

	sampleSize := s.format.Bytes()
	numBlocks := len(s.blocks)

	if numBlocks == 0 ||
		(at == s.numSamples && s.blocks[numBlocks-1].File.Length() >= s.minSamples) {
		// The sequence is empty, or it is safe to append onto the end
		// because the last block is not below the minimum size.
		newBlocks := make([]SeqBlock, numBlocks, numBlocks+len(srcBlocks))
		copy(newBlocks, s.blocks)
		numSamples := s.numSamples

		var added []blockfile.BlockFile
		for _, b := range srcBlocks {
			var err error
			newBlocks, err = appendBlock(s.dm, newBlocks, &numSamples, b)
			if err != nil {
				s.releaseAdded(added)
				return err
			}
			added = append(added, newBlocks[len(newBlocks)-1].File)
		}

		if err := s.commitIfConsistent(newBlocks, numSamples, "Paste branch one"); err != nil {
			s.releaseAdded(added)
			return err
		}
		return nil
	}

	b := numBlocks - 1
	if at != s.numSamples {
		b = s.findBlock(at)
	}
	splitBlock := s.blocks[b]
	length := splitBlock.File.Length()
	largerBlockLen := addedLen + int64(length)

	if largerBlockLen <= int64(s.maxSamples) {
		// All of the new samples fit inside one rewritten block. Modifying a
		// single entry in place still gives the strong guarantee.
		buffer := make([]byte, samples.BufferSize(int(largerBlockLen), s.format))
		sAddedLen := int(addedLen)
		splitPoint := int(at - splitBlock.Start)

		if _, err := s.readBlock(buffer, s.format, splitBlock, 0, splitPoint, true); err != nil {
			return err
		}
		if _, err := src.Get(buffer[splitPoint*sampleSize:], s.format, 0, sAddedLen, true); err != nil {
			return err
		}
		if _, err := s.readBlock(buffer[(splitPoint+sAddedLen)*sampleSize:], s.format,
			splitBlock, splitPoint, length-splitPoint, true); err != nil {
			return err
		}

		file, err := s.dm.NewSimpleBlockFile(buffer, int(largerBlockLen), s.format)
		if err != nil {
			return err
		}

		old := splitBlock.File
		s.blocks[b].File = file
		for i := b + 1; i < numBlocks; i++ {
			s.blocks[i].Start += addedLen
		}
		s.numSamples += addedLen
		if err := s.dm.Deref(old); err != nil {
			s.log.Warnf("releasing block file %s failed: %s", old.Name(), err)
		}

		s.assertConsistent("Paste branch two")
		return nil
	}

	// General case: split the target block at the paste point.
	newBlocks := make([]SeqBlock, 0, numBlocks+len(srcBlocks)+2)
	newBlocks = append(newBlocks, s.blocks[:b]...)
	var added []blockfile.BlockFile

	splitLen := splitBlock.File.Length()
	splitPoint := int(at - splitBlock.Start)

	if len(srcBlocks) <= 4 {
		// Inserting four or fewer blocks: lump everything together with the
		// split block and resplit.
		sAddedLen := int(addedLen)
		sum := splitLen + sAddedLen

		sumBuffer := make([]byte, samples.BufferSize(sum, s.format))
		if _, err := s.readBlock(sumBuffer, s.format, splitBlock, 0, splitPoint, true); err != nil {
			return err
		}
		if _, err := src.Get(sumBuffer[splitPoint*sampleSize:], s.format, 0, sAddedLen, true); err != nil {
			return err
		}
		if _, err := s.readBlock(sumBuffer[(splitPoint+sAddedLen)*sampleSize:], s.format,
			splitBlock, splitPoint, splitLen-splitPoint, true); err != nil {
			return err
		}

		var err error
		newBlocks, err = s.blockify(newBlocks, &added, splitBlock.Start, sumBuffer, sum)
		if err != nil {
			s.releaseAdded(added)
			return err
		}
	} else {
		// Inserting at least five blocks: merge the first two with the left
		// half of the split block, bump the middle ones by reference, and
		// merge the last two with the right half. Keeps at most about four
		// blocks' worth of samples in memory.
		srcFirstTwoLen := srcBlocks[0].File.Length() + srcBlocks[1].File.Length()
		leftLen := splitPoint + srcFirstTwoLen

		penultimate := srcBlocks[len(srcBlocks)-2]
		srcLastTwoLen := penultimate.File.Length() + srcBlocks[len(srcBlocks)-1].File.Length()
		rightSplit := splitLen - splitPoint
		rightLen := rightSplit + srcLastTwoLen

		bufLen := leftLen
		if rightLen > bufLen {
			bufLen = rightLen
		}
		buffer := make([]byte, samples.BufferSize(bufLen, s.format))

		if _, err := s.readBlock(buffer, s.format, splitBlock, 0, splitPoint, true); err != nil {
			return err
		}
		if _, err := src.getFrom(0, buffer[splitPoint*sampleSize:], s.format, 0, srcFirstTwoLen, true); err != nil {
			return err
		}

		var err error
		newBlocks, err = s.blockify(newBlocks, &added, splitBlock.Start, buffer, leftLen)
		if err != nil {
			s.releaseAdded(added)
			return err
		}

		for i := 2; i < len(srcBlocks)-2; i++ {
			file, err := s.dm.CopyBlockFile(srcBlocks[i].File)
			if err != nil {
				s.releaseAdded(added)
				return err
			}
			added = append(added, file)
			newBlocks = append(newBlocks, SeqBlock{Start: srcBlocks[i].Start + at, File: file})
		}

		lastStart := penultimate.Start
		if _, err := src.getFrom(len(srcBlocks)-2, buffer, s.format, lastStart, srcLastTwoLen, true); err != nil {
			s.releaseAdded(added)
			return err
		}
		if _, err := s.readBlock(buffer[srcLastTwoLen*sampleSize:], s.format,
			splitBlock, splitPoint, rightSplit, true); err != nil {
			s.releaseAdded(added)
			return err
		}

		newBlocks, err = s.blockify(newBlocks, &added, at+lastStart, buffer, rightLen)
		if err != nil {
			s.releaseAdded(added)
			return err
		}
	}

	for i := b + 1; i < numBlocks; i++ {
		newBlocks = append(newBlocks, s.blocks[i].plus(addedLen))
	}

	if err := s.commitIfConsistent(newBlocks, s.numSamples+addedLen, "Paste branch three"); err != nil {
		s.releaseAdded(added)
		return err
	}
	return nil
}
