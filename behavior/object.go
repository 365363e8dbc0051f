package behavior

import (
	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
)

// Object is the host-side owner of a behavior.
type Object interface {
	ID() string
}

// Identity is a random object identity for hosts without their own.
type Identity uuid.UUID

// NewIdentity returns a fresh random identity.
func NewIdentity() Identity {
	return Identity(uuid.New())
}

func (i Identity) ID() string {
	return uuid.UUID(i).String()
}

// selfValue wraps obj as userdata whose "id" field reads obj.ID().
func selfValue(L *lua.LState, obj Object) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = obj

	meta := L.NewTable()
	meta.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		if L.CheckString(2) == "id" {
			L.Push(lua.LString(obj.ID()))
			return 1
		}
		L.Push(lua.LNil)
		return 1
	}))
	meta.RawSetString("__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString("object<" + obj.ID() + ">"))
		return 1
	}))
	L.SetMetatable(ud, meta)
	return ud
}
