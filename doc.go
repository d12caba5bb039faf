// Package hashwx manages keyed hashing contexts over a hashing engine.
//
// A Manager hands out small integer handles for contexts owned by an
// engine. The engine is acquired on the first Alloc; if that fails, the
// error is kept and returned by every later Alloc without retrying.
//
//	m := hashwx.NewManager(hashwx.Config{})
//	defer m.Close(ctx)
//
//	h, err := m.Alloc(ctx, hashwx.ModeCompiled)
//	if err != nil {
//	    return err
//	}
//	defer m.Free(ctx, h)
//
//	if err := m.SetSeed(ctx, h, seed); err != nil { // exactly 32 bytes
//	    return err
//	}
//	v, err := m.Exec(ctx, h, nonce)
//
// # Handles
//
// Handles start at 1 and are reused first-fit: Alloc always returns the
// lowest free handle. Free on an absent handle is a no-op. Every other
// operation on an absent handle fails with ErrInvalidHandle.
//
// # Modes
//
// Interpreted contexts evaluate a nonce with a single engine call.
// Compiled contexts get a generated side module on every SetSeed, linked
// against the engine memory; Exec then runs the engine's begin step, the
// side module and the engine's final step. Both modes return the same
// value for the same seed and nonce.
//
// # Engines
//
// Config.Opener chooses the engine. The default is the pure Go reference
// engine in package native; engine.WasmOpener hosts an external hashwx
// module through wazero.
//
// # Errors
//
// Errors are *errors.Error values. Match them with the package sentinels:
//
//	if errors.Is(err, hashwx.ErrExhausted) {
//	    // engine is out of contexts, nothing was allocated
//	}
//
// # Thread Safety
//
// A Manager is safe for concurrent use; operations are serialized.
package hashwx
