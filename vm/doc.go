// Package vm wraps a gopher-lua state with the pieces luahost needs on top of it:
// parent-fallback environments, a name-keyed function cache, a require hook for
// host-side module resolution, and an explicit release queue drained by the GC
// scheduler.
//
// # Environments
//
// Every Environment except the global one is a fresh table whose metatable
// points __index at its parent. Reads that miss locally fall through to the
// parent; writes always land in the child:
//
//	env, _ := vm.NewEnvironment(state, state.Global(), map[string]any{"self": obj})
//	env.Get("print")   // found in the global table
//	env.Set("hp", 10)  // visible only inside env
//
// # Ownership
//
// Nothing in this package relies on finalizers. An Environment has exactly one
// owner, which calls Dispose once; further calls are no-ops. Disposed tables are
// queued on the State and wiped by Step/FullGC.
//
// # Thread Safety
//
// None of the types here are safe for concurrent use. All calls must come from
// the host's update goroutine or be serialized externally.
package vm
