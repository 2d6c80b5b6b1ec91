// Package waveseq implements the block-structured sample sequence underlying
// a waveform track: an ordered run of audio samples stored as a concatenation
// of immutable, reference-shared block files. Mutations give the strong
// guarantee: they either fully succeed or leave the sequence observably
// unchanged.
package waveseq

import (
	"sync"

	"github.com/pion/logging"

	"github.com/outofforest/waveseq/blockfile"
	"github.com/outofforest/waveseq/dirman"
	"github.com/outofforest/waveseq/samples"
)

// DefaultMaxDiskBlockSize is the default upper bound, in bytes, of a block
// file payload.
const DefaultMaxDiskBlockSize = 1048576

var maxDiskBlockSize = DefaultMaxDiskBlockSize

// SetMaxDiskBlockSize configures the process-wide block sizing. It must not
// be called while any sequence is live.
func SetMaxDiskBlockSize(bytes int) {
	maxDiskBlockSize = bytes
}

// MaxDiskBlockSize returns the process-wide block sizing.
func MaxDiskBlockSize() int {
	return maxDiskBlockSize
}

// SeqBlock is one entry of the block index: a block file and the absolute
// index of its first sample.
type SeqBlock struct {
	Start int64
	File  blockfile.BlockFile
}

func (b SeqBlock) plus(delta int64) SeqBlock {
	b.Start += delta
	return b
}

// Sequence is an ordered run of samples of one format, stored as a list of
// block files whose lengths stay within [minSamples, maxSamples].
type Sequence struct {
	dm  *dirman.Manager
	log logging.LeveledLogger

	format     samples.Format
	blocks     []SeqBlock
	numSamples int64
	minSamples int
	maxSamples int

	errorOpening bool

	// deleteUpdateMu serializes Delete against the background decoder
	// walking the block list.
	deleteUpdateMu sync.Mutex
}

// New returns new empty sequence of the format.
func New(dm *dirman.Manager, f samples.Format) *Sequence {
	minSamples := maxDiskBlockSize / f.Bytes() / 2
	return &Sequence{
		dm:         dm,
		log:        logging.NewDefaultLoggerFactory().NewLogger("waveseq"),
		format:     f,
		minSamples: minSamples,
		maxSamples: minSamples * 2,
	}
}

// Duplicate copies a sequence, possibly into another project's directory
// manager. Block files are shared by reference where the manager allows it.
func Duplicate(orig *Sequence, dm *dirman.Manager) (*Sequence, error) {
	s := New(dm, orig.format)
	s.minSamples = orig.minSamples
	s.maxSamples = orig.maxSamples
	if err := s.Paste(0, orig); err != nil {
		return nil, err
	}
	return s, nil
}

// Close drops the sequence's references on all its block files.
func (s *Sequence) Close() {
	for _, b := range s.blocks {
		if err := s.dm.Deref(b.File); err != nil {
			s.log.Warnf("releasing block file %s failed: %s", b.File.Name(), err)
		}
	}
	s.blocks = nil
	s.numSamples = 0
}

// Format returns the sample format shared by all blocks.
func (s *Sequence) Format() samples.Format {
	return s.format
}

// Len returns the total sample count.
func (s *Sequence) Len() int64 {
	return s.numSamples
}

// BlockCount returns the number of block files in the index.
func (s *Sequence) BlockCount() int {
	return len(s.blocks)
}

// MaxBlockSize returns the largest allowed block length in samples.
func (s *Sequence) MaxBlockSize() int {
	return s.maxSamples
}

// MinBlockSize returns the smallest block length the sizing policy aims for.
func (s *Sequence) MinBlockSize() int {
	return s.minSamples
}

// IdealBlockSize returns the target length of a freshly written block.
func (s *Sequence) IdealBlockSize() int {
	return s.maxSamples
}

// ErrorOpening tells whether structural damage was repaired while loading
// the sequence from a project file.
func (s *Sequence) ErrorOpening() bool {
	return s.errorOpening
}

// Lock pins all block files against deletion for the duration of a save.
func (s *Sequence) Lock() {
	for _, b := range s.blocks {
		b.File.Lock()
	}
}

// Unlock releases Lock.
func (s *Sequence) Unlock() {
	for _, b := range s.blocks {
		b.File.Unlock()
	}
}

// CloseLock pins all block files for the final save while closing.
func (s *Sequence) CloseLock() {
	for _, b := range s.blocks {
		b.File.CloseLock()
	}
}

// DeleteUpdateLock must be held by the background decoder while it iterates
// the block list; Delete acquires it for the duration of the restructuring.
func (s *Sequence) DeleteUpdateLock() {
	s.deleteUpdateMu.Lock()
}

// DeleteUpdateUnlock releases DeleteUpdateLock.
func (s *Sequence) DeleteUpdateUnlock() {
	s.deleteUpdateMu.Unlock()
}

// GetODFlags reports which on-demand completion passes the host still owes:
// decoder-type bits for undecoded data, ODPCMSummary for missing summaries.
func (s *Sequence) GetODFlags() uint {
	var flags uint
	for _, b := range s.blocks {
		if !b.File.IsDataAvailable() {
			if od, ok := b.File.(*blockfile.ODDecode); ok {
				flags |= uint(od.DecoderType())
			}
		} else if !b.File.IsSummaryAvailable() {
			flags |= blockfile.ODPCMSummary
		}
	}
	return flags
}

// appendBlock shares b into the list by bumping its reference (or deep
// copying when the manager requires it).
func appendBlock(dm *dirman.Manager, list []SeqBlock, numSamples *int64, b SeqBlock) ([]SeqBlock, error) {
	if overflows(*numSamples, int64(b.File.Length())) {
		return nil, inconsistency("appending %d samples to %d would overflow", b.File.Length(), *numSamples)
	}
	file, err := dm.CopyBlockFile(b.File)
	if err != nil {
		return nil, err
	}
	list = append(list, SeqBlock{Start: *numSamples, File: file})
	*numSamples += int64(file.Length())
	return list, nil
}

// derefDropped releases references held by entries of the old list that the
// committed list no longer carries. Every entry holds one reference, so the
// drop count per file is the difference of its occurrence counts. Runs after
// a successful commit; failures only log.
func (s *Sequence) derefDropped(old []SeqBlock) {
	kept := make(map[blockfile.BlockFile]int, len(s.blocks))
	for _, b := range s.blocks {
		kept[b.File]++
	}
	for _, b := range old {
		if kept[b.File] > 0 {
			kept[b.File]--
			continue
		}
		if err := s.dm.Deref(b.File); err != nil {
			s.log.Warnf("releasing block file %s failed: %s", b.File.Name(), err)
		}
	}
}
