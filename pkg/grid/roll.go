package grid

import "math/rand/v2"

// RollSource yields the random values used for announcement rolls and
// silence ids. The default source is the math/rand/v2 global generator,
// which is keyed from OS entropy; tests inject deterministic sources.
type RollSource interface {
	Uint64() uint64
}

type entropySource struct{}

func (entropySource) Uint64() uint64 { return rand.Uint64() }

// DefaultRollSource returns the OS-entropy-keyed roll source used outside
// of tests.
func DefaultRollSource() RollSource { return entropySource{} }
