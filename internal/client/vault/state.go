package vault

// State is the lifecycle position of the vault for the signed-in user.
type State int

const (
	// Uninitialized: no bundle lookup has completed for the current user.
	Uninitialized State = iota
	// Loading: the first bundle lookup is in flight.
	Loading
	// NoBundle: the user has never created a vault, or reset it.
	NoBundle
	// Locked: a bundle exists, the data key is not in memory.
	Locked
	// Unlocked: the data key is held in guarded memory.
	Unlocked
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case NoBundle:
		return "no-bundle"
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}
