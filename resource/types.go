package resource

// Handle is an opaque reference to a tracked owner in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind groups tracked values so they can be torn down in a fixed order.
type Kind uint32

const (
	KindBehavior Kind = iota + 1
	KindEnvironment
)

func (k Kind) String() string {
	switch k {
	case KindBehavior:
		return "behavior"
	case KindEnvironment:
		return "environment"
	default:
		return "unknown"
	}
}

// EventType identifies a lifecycle notification.
type EventType uint8

const (
	EventTracked EventType = iota
	EventDropped
)

// Event represents a lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by tracked values that need cleanup when
// they are removed from the table.
type Dropper interface {
	Drop()
}
