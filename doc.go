// Package luahost embeds a Lua scripting runtime into a Go host application.
//
// A host creates one runtime per process, points it at a script source and
// drives it from its frame loop. Scripts get a sandboxed environment per
// attached behavior, structured logging through the log namespace, and any
// host namespaces the application registers.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	luahost/
//	├── runtime/         High-level API: lifecycle, require, calls, hosts
//	├── behavior/        Script bridge attached to a host object
//	├── vm/              gopher-lua state, environments, value conversion
//	├── loader/          Module path translation, file and bundle loaders
//	├── hotfix/          Signed hot-patch loading and verification
//	├── gc/              Incremental collection scheduling
//	├── resource/        Handle table for VM-owned objects
//	├── config/          luahost.toml configuration
//	├── errors/          Structured error types
//	└── cmd/luahost/     Command-line runner and interactive console
//
// # Quick Start
//
// Create a runtime and run the init script:
//
//	rt, err := runtime.New(config.Default())
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	if err := rt.Init(); err != nil {
//	    return err
//	}
//
// Attach a behavior and tick it every frame:
//
//	b := behavior.New(rt, "enemy", behavior.WithObject(obj))
//	if err := b.Init(); err != nil {
//	    return err
//	}
//	b.Enable()
//
//	for now := range frames {
//	    behavior.TickAll(rt)
//	    rt.Tick(now)
//	}
//
// # Host Functions
//
// Host functions are methods with the lua.LGFunction signature on a type that
// reports its namespace:
//
//	type Game struct{}
//
//	func (g *Game) Namespace() string { return "game" }
//
//	func (g *Game) SpawnEnemy(L *lua.LState) int {
//	    // ...
//	    return 0
//	}
//
//	rt.RegisterHost(&Game{}) // exposes game.spawn_enemy
//
// # Threading
//
// A runtime is not safe for concurrent use. All calls must come from the
// goroutine that drives the frame loop. Only one runtime may be open per
// process.
package luahost
