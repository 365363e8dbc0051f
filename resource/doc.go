// Package resource tracks live owners of script state by handle.
//
// Every object that holds references into the VM (behavior bridges,
// environments created on behalf of the host) is inserted into a Table when
// it comes alive and removed when it is destroyed. Teardown then walks the
// table kind by kind so owners release their references before the
// environments they point into go away.
//
//	table := resource.NewTable()
//	h := table.Insert(resource.KindBehavior, bridge)
//
//	// Remove calls bridge.Drop() if it implements resource.Dropper.
//	table.Remove(h)
//
//	// Drop everything of one kind, oldest first.
//	table.ClearKind(resource.KindBehavior)
//
// Handles are reused after removal. Handle 0 is never valid.
//
// # Observers
//
// Observers see EventTracked and EventDropped for every insert and removal:
//
//	table.Subscribe(observer)
//
// Values are not collected automatically. An owner that is never removed
// keeps its script state reachable until Close.
package resource
