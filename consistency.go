package waveseq

import (
	"fmt"
	"strings"
)

// checkConsistency verifies the structural invariants over the block list
// suffix starting at from: starts contiguous from zero, no nil files, no
// block longer than maxSamples, lengths summing to numSamples.
func checkConsistency(blocks []SeqBlock, maxSamples, from int, numSamples int64) error {
	pos := numSamples
	if from < len(blocks) {
		pos = blocks[from].Start
	}
	if from == 0 && pos != 0 {
		return inconsistency("first block starts at %d", pos)
	}

	for i := from; i < len(blocks); i++ {
		b := blocks[i]
		if pos != b.Start {
			return inconsistency("block %d starts at %d, expected %d", i, b.Start, pos)
		}
		if b.File == nil {
			return inconsistency("block %d has no file", i)
		}
		if !b.File.IsAlias() && b.File.Length() > maxSamples {
			return inconsistency("block %d of length %d exceeds the %d maximum",
				i, b.File.Length(), maxSamples)
		}
		pos += int64(b.File.Length())
	}
	if pos != numSamples {
		return inconsistency("blocks sum to %d samples, expected %d", pos, numSamples)
	}
	return nil
}

// commitIfConsistent validates the candidate block list and atomically swaps
// it in. On error nothing is modified.
func (s *Sequence) commitIfConsistent(newBlocks []SeqBlock, numSamples int64, where string) error {
	if err := checkConsistency(newBlocks, s.maxSamples, 0, numSamples); err != nil {
		s.log.Errorf("consistency check failed in %s: %s", where, err)
		return err
	}

	old := s.blocks
	s.blocks = newBlocks
	s.numSamples = numSamples
	s.derefDropped(old)
	return nil
}

// appendBlocksIfConsistent appends the additional blocks (replacing the
// current last one when replaceLast is set), validating only the added
// suffix to keep bulk appends linear. On inconsistency the list is rolled
// back to its previous state.
func (s *Sequence) appendBlocksIfConsistent(additional []SeqBlock, replaceLast bool, numSamples int64, where string) error {
	if len(additional) == 0 {
		return nil
	}

	var tail SeqBlock
	tailValid := false
	if replaceLast && len(s.blocks) > 0 {
		tail = s.blocks[len(s.blocks)-1]
		tailValid = true
		s.blocks = s.blocks[:len(s.blocks)-1]
	}
	prevSize := len(s.blocks)

	s.blocks = append(s.blocks, additional...)
	if err := checkConsistency(s.blocks, s.maxSamples, prevSize, numSamples); err != nil {
		s.blocks = s.blocks[:prevSize]
		if tailValid {
			s.blocks = append(s.blocks, tail)
		}
		s.log.Errorf("consistency check failed in %s: %s", where, err)
		return err
	}

	s.numSamples = numSamples
	if tailValid {
		s.derefDropped([]SeqBlock{tail})
	}
	return nil
}

// assertConsistent logs a consistency violation of already-committed state.
// It never returns an error: the commit protocol proves the swap kept the
// invariants, so a failure here is a bug worth a loud log, not an exception.
func (s *Sequence) assertConsistent(where string) {
	if err := checkConsistency(s.blocks, s.maxSamples, 0, s.numSamples); err != nil {
		s.log.Errorf("consistency check failed after %s: %s", where, err)
		s.log.Errorf("%s", s.Dump())
	}
}

// Dump renders the block index for diagnostic logs.
func (s *Sequence) Dump() string {
	var sb strings.Builder
	var pos int64
	for i, b := range s.blocks {
		name := b.File.Name()
		if name == "" {
			name = "<silent>"
		}
		fmt.Fprintf(&sb, "   block %3d: start %8d, len %8d, %s", i, b.Start, b.File.Length(), name)
		if pos != b.Start {
			sb.WriteString("      ERROR\n")
		} else {
			sb.WriteString("\n")
		}
		pos += int64(b.File.Length())
	}
	if pos != s.numSamples {
		fmt.Fprintf(&sb, "ERROR numSamples = %d, blocks sum to %d\n", s.numSamples, pos)
	}
	return sb.String()
}
