package search

// State is the build phase of an Engine.
type State int32

const (
	StateUninitialized State = iota
	StateLoaded
	StateIndexed
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoaded:
		return "loaded"
	case StateIndexed:
		return "indexed"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}
