package behavior

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/luahost/errors"
	"github.com/wippyai/luahost/resource"
	"github.com/wippyai/luahost/runtime"
	"github.com/wippyai/luahost/vm"
)

// State is the bridge lifecycle state.
type State uint8

const (
	Uninitialized State = iota
	Initialized
	Enabled
	Disabled
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Injection is a named value bound into the behavior's environment.
type Injection struct {
	Name  string
	Value any
}

// Option configures New.
type Option func(*Behavior)

// WithObject sets the host object exposed to the script as self.
func WithObject(o Object) Option {
	return func(b *Behavior) {
		if o != nil {
			b.object = o
		}
	}
}

// WithInjection binds name to value in the behavior's environment.
// Injections are applied after self, in order.
func WithInjection(name string, value any) Option {
	return func(b *Behavior) {
		b.injections = append(b.injections, Injection{Name: name, Value: value})
	}
}

// WithLogger overrides the runtime logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Behavior) {
		if l != nil {
			b.log = l
		}
	}
}

// Behavior pairs one host object with one script environment and forwards
// lifecycle events into the module's callbacks.
type Behavior struct {
	rt         *runtime.Runtime
	module     string
	object     Object
	injections []Injection
	log        *zap.Logger

	env    *vm.Environment
	table  *lua.LTable
	handle resource.Handle

	start     Callback
	update    Callback
	onEnable  Callback
	onDisable Callback
	onDestroy Callback

	state State
}

// New creates an uninitialized behavior for module. Without WithObject the
// behavior gets a random Identity.
func New(rt *runtime.Runtime, module string, opts ...Option) *Behavior {
	b := &Behavior{
		rt:     rt,
		module: module,
		log:    rt.Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.object == nil {
		b.object = NewIdentity()
	}
	b.log = b.log.With(zap.String("module", module), zap.String("object", b.object.ID()))
	return b
}

// Module returns the module name.
func (b *Behavior) Module() string { return b.module }

// Object returns the host object.
func (b *Behavior) Object() Object { return b.object }

// State returns the lifecycle state.
func (b *Behavior) State() State { return b.state }

// Env returns the behavior's environment, nil before Init and after Destroy.
func (b *Behavior) Env() *vm.Environment { return b.env }

// Table returns the table the module returned, nil when it returned none.
func (b *Behavior) Table() *lua.LTable { return b.table }

// Has reports whether the module defines slot.
func (b *Behavior) Has(slot Slot) bool {
	switch slot {
	case SlotStart:
		return b.start.Present()
	case SlotUpdate:
		return b.update.Present()
	case SlotOnEnable:
		return b.onEnable.Present()
	case SlotOnDisable:
		return b.onDisable.Present()
	case SlotOnDestroy:
		return b.onDestroy.Present()
	default:
		return false
	}
}

// Init creates the environment, runs the module in it, binds the callbacks
// and runs Awake. A module that cannot be loaded leaves the behavior
// initialized with no callbacks and returns the load error. Init runs once.
func (b *Behavior) Init() error {
	if b.state != Uninitialized {
		return nil
	}

	env, err := b.rt.CreateEnvironment(nil)
	if err != nil {
		return err
	}
	L := b.rt.State().L
	env.Set("self", selfValue(L, b.object))
	for _, inj := range b.injections {
		env.Set(inj.Name, inj.Value)
	}
	b.env = env
	b.handle = b.rt.Track(resource.KindBehavior, b)
	b.state = Initialized

	results, err := b.rt.DoModule(b.module, env, b.module)
	if err != nil {
		b.log.Warn("behavior has no script", zap.Error(err))
		return err
	}

	if len(results) > 0 {
		b.table, _ = results[0].(*lua.LTable)
	}
	if b.table == nil {
		b.log.Warn("module returned no table")
		return nil
	}

	awake := extract(L, b.table, SlotAwake)
	b.start = extract(L, b.table, SlotStart)
	b.update = extract(L, b.table, SlotUpdate)
	b.onEnable = extract(L, b.table, SlotOnEnable)
	b.onDisable = extract(L, b.table, SlotOnDisable)
	b.onDestroy = extract(L, b.table, SlotOnDestroy)

	b.call(awake)
	return nil
}

// Enable fires OnEnable.
func (b *Behavior) Enable() {
	if b.state != Initialized && b.state != Disabled {
		return
	}
	b.state = Enabled
	b.call(b.onEnable)
}

// Disable fires OnDisable. A disabled behavior does not tick.
func (b *Behavior) Disable() {
	if b.state != Initialized && b.state != Enabled {
		return
	}
	b.state = Disabled
	b.call(b.onDisable)
}

// Tick forwards one frame. The first tick runs Start once, then every tick
// runs Update.
func (b *Behavior) Tick() {
	if b.state != Initialized && b.state != Enabled {
		return
	}
	if b.start.Present() {
		start := b.start
		b.start = Callback{}
		b.call(start)
		if b.state == Destroyed {
			return
		}
	}
	b.call(b.update)
}

// Destroy fires OnDestroy, releases the environment and the module table and
// untracks the behavior. Only the first call has an effect.
func (b *Behavior) Destroy() {
	if b.state == Destroyed {
		return
	}
	prev := b.state
	b.state = Destroyed

	if prev != Uninitialized {
		b.call(b.onDestroy)
	}

	b.start = Callback{}
	b.update = Callback{}
	b.onEnable = Callback{}
	b.onDisable = Callback{}
	b.onDestroy = Callback{}
	b.table = nil

	if b.env != nil {
		b.env.Dispose()
		b.env = nil
	}
	b.rt.Untrack(b.handle)
	b.handle = 0
}

// Drop destroys the behavior when the runtime tears down. The table has
// already released the handle.
func (b *Behavior) Drop() {
	b.handle = 0
	b.Destroy()
}

// call runs cb in protected mode; failures are logged, never propagated.
func (b *Behavior) call(cb Callback) {
	if !cb.Present() {
		return
	}
	if _, err := b.rt.State().Call(cb.fn); err != nil {
		b.log.Error("behavior callback failed",
			zap.String("slot", string(cb.Slot())),
			zap.Error(errors.Script(errors.PhaseCall, b.module+"."+string(cb.Slot()), err)),
		)
	}
}

// TickAll ticks every live behavior tracked by rt, oldest first.
func TickAll(rt *runtime.Runtime) {
	resource.Typed[*Behavior](rt.Owners(), resource.KindBehavior).Each(func(_ resource.Handle, b *Behavior) bool {
		b.Tick()
		return true
	})
}

// Live returns the live behaviors tracked by rt, oldest first.
func Live(rt *runtime.Runtime) []*Behavior {
	var out []*Behavior
	resource.Typed[*Behavior](rt.Owners(), resource.KindBehavior).Each(func(_ resource.Handle, b *Behavior) bool {
		out = append(out, b)
		return true
	})
	return out
}
