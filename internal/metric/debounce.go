package metric

import "routerwatch/internal/model"

type Observation int

const (
	ObservedUnknown Observation = iota
	ObservedUp
	ObservedDown
)

func (o Observation) String() string {
	switch o {
	case ObservedUp:
		return "up"
	case ObservedDown:
		return "down"
	default:
		return "unknown"
	}
}

type LinkState int

const (
	StateUp LinkState = iota
	StateDownPending
	StateDownConfirmed
)

func (s LinkState) String() string {
	switch s {
	case StateDownPending:
		return "DOWN_PENDING"
	case StateDownConfirmed:
		return "DOWN_CONFIRMED"
	default:
		return "UP"
	}
}

// confirmDownAfter is the number of consecutive down observations that confirm an outage.
const confirmDownAfter = 2

func StateOf(streak int) LinkState {
	switch {
	case streak >= confirmDownAfter:
		return StateDownConfirmed
	case streak == 1:
		return StateDownPending
	default:
		return StateUp
	}
}

// Debounce advances the consecutive-down streak of one interface.
// DOWN is emitted only on the confirmation edge, UP only when recovering from a
// confirmed outage. Unknown observations leave the streak untouched.
func Debounce(streak int, obs Observation) (int, model.InterfaceEvent) {
	if streak < 0 {
		streak = 0
	}
	switch obs {
	case ObservedDown:
		next := streak + 1
		if next == confirmDownAfter {
			return next, model.EventDown
		}
		return next, model.EventNone
	case ObservedUp:
		if streak >= confirmDownAfter {
			return 0, model.EventUp
		}
		return 0, model.EventNone
	default:
		return streak, model.EventNone
	}
}

// ObserveOperStatus maps an IF-MIB ifOperStatus value to an observation.
// 1 is up, 2 (down) and 7 (lowerLayerDown) are down, the rest is unknown.
func ObserveOperStatus(v int64) Observation {
	switch v {
	case 1:
		return ObservedUp
	case 2, 7:
		return ObservedDown
	default:
		return ObservedUnknown
	}
}

func (o Observation) LinkStatus() model.LinkStatus {
	switch o {
	case ObservedUp:
		return model.LinkUp
	case ObservedDown:
		return model.LinkDown
	default:
		return model.LinkUnknown
	}
}
