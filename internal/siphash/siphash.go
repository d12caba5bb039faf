// Package siphash provides the SipHash round function and the keyed
// random number generator built on it.
package siphash

import "math/bits"

// Key is a 128-bit SipHash key.
type Key struct {
	K0, K1 uint64
}

// KeyFromBytes reads a key from 16 little-endian bytes.
func KeyFromBytes(b []byte) Key {
	_ = b[15]
	return Key{K0: le64(b[0:8]), K1: le64(b[8:16])}
}

// Round applies one SipRound to the four state words.
func Round(v0, v1, v2, v3 uint64) (uint64, uint64, uint64, uint64) {
	v0 += v1
	v2 += v3
	v1 = bits.RotateLeft64(v1, 13)
	v3 = bits.RotateLeft64(v3, 16)
	v1 ^= v0
	v3 ^= v2
	v0 = bits.RotateLeft64(v0, 32)
	v2 += v1
	v0 += v3
	v1 = bits.RotateLeft64(v1, 17)
	v3 = bits.RotateLeft64(v3, 21)
	v1 ^= v2
	v3 ^= v0
	v2 = bits.RotateLeft64(v2, 32)
	return v0, v1, v2, v3
}

// RNG produces a stream of 64-bit words from a key and a salt.
// The zero value is not usable; construct with NewRNG.
type RNG struct {
	key   Key
	state [4]uint64
	count uint32
}

// NewRNG seeds a generator with key and salt.
func NewRNG(key Key, salt uint64) *RNG {
	g := &RNG{}
	g.Reset(key, salt)
	return g
}

// Reset reseeds g in place.
func (g *RNG) Reset(key Key, salt uint64) {
	v0 := 0x736f6d6570736575 ^ key.K0
	v1 := 0x646f72616e646f6d ^ key.K1
	v2 := 0x6c7967656e657261 ^ key.K0
	v3 := 0x7465646279746573 ^ key.K1

	v3 ^= salt
	v0, v1, v2, v3 = Round(v0, v1, v2, v3)
	v0 ^= salt
	v2 ^= 0xbb
	v0, v1, v2, v3 = Round(v0, v1, v2, v3)
	v0, v1, v2, v3 = Round(v0, v1, v2, v3)
	v0, v1, v2, v3 = Round(v0, v1, v2, v3)

	g.key = key
	g.state = [4]uint64{v0, v1, v2, v3}
	g.count = 4
}

// Next returns the next word. Words of a state block are handed out last
// to first; the block is remixed when exhausted.
func (g *RNG) Next() uint64 {
	if g.count == 0 {
		g.mix()
		g.count = 4
	}
	g.count--
	return g.state[g.count]
}

// Uint32 returns the low half of the next word.
func (g *RNG) Uint32() uint32 {
	return uint32(g.Next())
}

// Intn returns a value in [0, n). n must be positive.
func (g *RNG) Intn(n int) int {
	return int(g.Next() % uint64(n))
}

// State returns the current state block.
func (g *RNG) State() [4]uint64 {
	return g.state
}

// StateBytes returns the state block as 32 little-endian bytes.
func (g *RNG) StateBytes() [32]byte {
	var out [32]byte
	for i, v := range g.state {
		put64(out[i*8:], v)
	}
	return out
}

func (g *RNG) mix() {
	v0 := g.state[0] ^ g.key.K0
	v1 := g.state[1] ^ g.key.K1
	v2 := g.state[2] ^ g.key.K0
	v3 := g.state[3] ^ g.key.K1
	for i := 0; i < 4; i++ {
		v0, v1, v2, v3 = Round(v0, v1, v2, v3)
	}
	g.state = [4]uint64{v0, v1, v2, v3}
}

func le64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

func put64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
