// Package rng derives isolated, reproducible random streams from one seed.
package rng

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// Stream names used by the training pipeline.
const (
	StreamResample = "resample"
	StreamSplit    = "split"
)

// StreamTree returns the stream name for tree i of a forest.
func StreamTree(i int) string {
	return fmt.Sprintf("tree_%d", i)
}

// Partitioned hands out one deterministic *rand.Rand per named stream.
//
// Derivation: seed XOR fnv1a64(name). Two runs with the same seed draw
// the same numbers from the same stream no matter how many other streams
// were used in between.
//
// Thread-safety: NOT thread-safe. Goroutines should use Derive.
type Partitioned struct {
	seed    int64
	streams map[string]*rand.Rand
}

// New creates a Partitioned generator.
func New(seed int64) *Partitioned {
	return &Partitioned{
		seed:    seed,
		streams: make(map[string]*rand.Rand),
	}
}

// Stream returns the cached generator for name. Never returns nil.
func (p *Partitioned) Stream(name string) *rand.Rand {
	if r, ok := p.streams[name]; ok {
		return r
	}
	r := Derive(p.seed, name)
	p.streams[name] = r
	return r
}

// Seed returns the master seed.
func (p *Partitioned) Seed() int64 {
	return p.seed
}

// Derive returns a fresh generator for name. Each call returns a new
// instance, so it is safe to call from concurrent goroutines.
func Derive(seed int64, name string) *rand.Rand {
	return rand.New(rand.NewSource(seed ^ fnv1a64(name)))
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
