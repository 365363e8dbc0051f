// Package runtime provides the script host: one Lua VM per process, a shared
// global environment, the module loader chain and the teardown of everything
// that holds references into the VM.
//
// # Quick Start
//
//	cfg, err := config.FindAndLoad(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rt, err := runtime.New(cfg, runtime.WithLogger(zapLogger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	// Apply the hot-patch, require LuaInit and call Init().
//	if err := rt.Init(); err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := rt.CallGlobalFunction("greet", false, "World")
//
// # Module Resolution
//
// require, DoModule and LoadConfigModule all resolve names through the
// configured loader:
//
//	use_bundle = false  - <script_root>/<a/b/c>.lua
//	use_bundle = true   - <bundle_prefix><a/b/c>.bytes inside the bundle
//	verify_scripts      - either of the above, plus a verified <path>.sig
//
// A module that cannot be found yields an error of kind not_found. Scripts
// keep running; the caller decides whether the module was optional.
//
// # Calling Into Scripts
//
//	rt.CallGlobalFunction("Game.Tick", true, dt)   // cached by name
//	rt.CallTableFunction("Inventory", "add", false, item)
//	rt.CallTableRef(tbl, "update", dt)
//
// Table functions receive the table as their first argument, so they can be
// written with Lua's method syntax (function Inventory:add(item)).
//
// # Environments
//
// CreateEnvironment returns a child of the global environment. Reads fall
// through to the globals, writes stay in the child:
//
//	env, _ := rt.CreateEnvironment(map[string]any{"speed": 3})
//	rt.DoBytes([]byte("x = speed * 2"), env, "mover")
//	env.Dispose()
//
// # Host Functions
//
// Go functions are exposed as fields of a global table:
//
//	rt.RegisterFunc("game", "now", func(L *lua.LState) int {
//	    L.Push(lua.LNumber(clock.Seconds()))
//	    return 1
//	})
//
// A "log" namespace (log.debug/info/warn/error) is always present.
//
// # Frame Loop
//
// Tick must be called once per frame with a monotonic clock. It runs
// callbacks queued with Schedule and an incremental collector step once per
// gc_interval. GC forces a full collection.
//
// # Teardown
//
// Close runs in a fixed order: pending callbacks are dropped, the hot-patch
// disable function runs, cached functions are invalidated, tracked behaviors
// are destroyed, remaining environments are disposed, then the VM closes.
// Only one Runtime may be open at a time.
package runtime
