// Package behavior binds a host object to a script module.
//
// A Behavior gives its object a private environment (a child of the global
// environment with "self" and any injections bound), runs the object's module
// in it and forwards lifecycle events to the callbacks the module's returned
// table defines:
//
//	-- scripts/enemy.lua
//	local M = {}
//	function M.Awake()     hp = 10 end
//	function M.Start()     log.info("spawned", "id", self.id) end
//	function M.Update()    hp = hp - 1 end
//	function M.OnDestroy() log.info("gone", "id", self.id) end
//	return M
//
//	b := behavior.New(rt, "enemy", behavior.WithInjection("speed", 3))
//	if err := b.Init(); err != nil { ... }
//	b.Enable()
//	b.Tick() // Start, then Update
//	b.Destroy()
//
// Every callback is optional. A module that cannot be loaded leaves the
// object without scripted behavior; Init reports why.
package behavior
