package waveseq

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInconsistency reports that a mutation would violate, or a candidate
// block list violates, the structural invariants of the sequence. The
// sequence is unchanged when it is returned.
var ErrInconsistency = errors.New("sequence inconsistency")

func inconsistency(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInconsistency, format, args...)
}

// IsInconsistency tells whether the error reports an invariant violation
// rather than an I/O failure.
func IsInconsistency(err error) bool {
	return errors.Is(err, ErrInconsistency)
}

func overflows(a, b int64) bool {
	return a > math.MaxInt64-b
}
