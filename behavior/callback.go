package behavior

import (
	lua "github.com/yuin/gopher-lua"
)

// Slot names a lifecycle callback in a module table.
type Slot string

const (
	SlotAwake     Slot = "Awake"
	SlotStart     Slot = "Start"
	SlotUpdate    Slot = "Update"
	SlotOnEnable  Slot = "OnEnable"
	SlotOnDisable Slot = "OnDisable"
	SlotOnDestroy Slot = "OnDestroy"
)

// Callback is one lifecycle slot. The zero value is an absent callback.
type Callback struct {
	fn   *lua.LFunction
	slot Slot
}

// Present reports whether the module defined the slot.
func (c Callback) Present() bool {
	return c.fn != nil
}

// Slot returns the slot name.
func (c Callback) Slot() Slot {
	return c.slot
}

func extract(L *lua.LState, t *lua.LTable, slot Slot) Callback {
	fn, _ := L.GetField(t, string(slot)).(*lua.LFunction)
	return Callback{fn: fn, slot: slot}
}
