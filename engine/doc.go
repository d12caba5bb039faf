// Package engine defines the hashing engine boundary and hosts external
// hashwx modules through wazero.
//
// # Engine
//
// An Engine owns a linear memory and a set of hashing contexts identified by
// native handles. The loader above it (package hashwx) keeps the handle table
// and decides which execution path to take:
//
//	interpreted:  Exec(native, nonce)
//	compiled:     ExecBegin(native, nonce)
//	              submodule.Exec(registers, memory)
//	              ExecFinal(native)
//
// Alloc reports failure through sentinels rather than errors: AllocFailed (0)
// when the engine is out of contexts and AllocNotSupported (-1) when the mode
// is unavailable. Errors are reserved for traps and broken modules.
//
// # External Modules
//
// WasmEngine runs a module exporting memory and the hashwx_* functions. It is
// instantiated under the name "env" so that side modules, which import
// env.memory, share its memory:
//
//	e, err := engine.OpenWasm(ctx, engine.WasmConfig{
//	    Location: "https://example.com/hashwx.wasm",
//	})
//
// Module bytes are fetched through a Loader. SharedLoader caches bytes by
// location for the whole process and collapses concurrent fetches; every
// runtime created with NewRuntime shares one compilation cache.
//
// # Side Modules
//
// Linker compiles side-module bytes and keeps compiled code in an LRU keyed
// by content hash. Each Link returns a fresh anonymous instance; closing it
// does not affect other instances of the same code.
//
// # Thread Safety
//
// Engines are not safe for concurrent use; callers serialize access.
// Loaders, the Linker cache and the shared caches are safe for concurrent use.
package engine
