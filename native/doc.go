// Package native is a pure Go hashing engine.
//
// It derives 32 ten-slot programs from the first half of a seed and runs
// them over a ten-register file initialised from the second half and the
// nonce. Interpreted contexts execute the programs directly. Compiled
// contexts translate them into a wasm side module with Compile; the loader
// links that module against the engine memory and runs it between
// ExecBegin and ExecFinal.
//
// Both paths produce the same value as Hash for every seed and nonce.
package native
