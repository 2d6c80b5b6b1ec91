package waveseq

import (
	"github.com/outofforest/waveseq/samples"
)

// readBlock fills buf with n samples of the block starting at the
// block-relative index, converting to the format. Returns false on a short
// read when mayThrow is off.
func (s *Sequence) readBlock(buf []byte, f samples.Format, b SeqBlock, blockRelStart, n int, mayThrow bool) (bool, error) {
	read, err := b.File.ReadData(buf, f, blockRelStart, n, mayThrow)
	if err != nil {
		return false, err
	}
	if read != n {
		s.log.Warnf("expected to read %d samples, got %d", n, read)
		return false, nil
	}
	return true, nil
}

// Get copies n samples starting at the absolute position into buf, converted
// to the format. With mayThrow off an out-of-range request zero-fills the
// buffer and returns false instead of an error.
func (s *Sequence) Get(buf []byte, f samples.Format, start int64, n int, mayThrow bool) (bool, error) {
	if start == s.numSamples && n == 0 {
		return true, nil
	}

	if start < 0 || start > s.numSamples || start+int64(n) > s.numSamples {
		if mayThrow {
			return false, inconsistency("read of %d samples at %d exceeds the sequence of %d samples",
				n, start, s.numSamples)
		}
		samples.Clear(buf, f, 0, n)
		return false, nil
	}
	return s.getFrom(s.findBlock(start), buf, f, start, n, mayThrow)
}

func (s *Sequence) getFrom(b int, buf []byte, f samples.Format, start int64, n int, mayThrow bool) (bool, error) {
	result := true
	for n > 0 {
		block := s.blocks[b]
		// start is in block
		bstart := int(start - block.Start)
		blen := block.File.Length() - bstart
		if blen > n {
			blen = n
		}

		ok, err := s.readBlock(buf, f, block, bstart, blen, mayThrow)
		if err != nil {
			return false, err
		}
		if !ok {
			result = false
		}

		n -= blen
		buf = buf[samples.BufferSize(blen, f):]
		b++
		start += int64(blen)
	}
	return result, nil
}
