package match

import "github.com/valyala/fastrand"

// Rand is the session's only randomness source, substitutable for
// deterministic draws in tests.
type Rand interface {
	Uint32n(n uint32) uint32
}

type FastRand struct{}

func (FastRand) Uint32n(n uint32) uint32 {
	return fastrand.Uint32n(n)
}
