package profile

// Level is the ordinal permission level of a sender.
// Higher values mean more privilege.
type Level int

const (
	LevelAnonymous     Level = 0
	LevelAuthenticated Level = 1
	LevelOperator      Level = 2
)

func (l Level) String() string {
	switch l {
	case LevelAnonymous:
		return "anonymous"
	case LevelAuthenticated:
		return "authenticated"
	case LevelOperator:
		return "operator"
	default:
		return "unknown"
	}
}

// Valid reports whether l is one of the three defined levels.
func (l Level) Valid() bool {
	return l >= LevelAnonymous && l <= LevelOperator
}

// clampLevel maps any out-of-range level value to anonymous.
// Unknown levels must never resolve upward.
func clampLevel(v int) Level {
	l := Level(v)
	if !l.Valid() {
		return LevelAnonymous
	}
	return l
}
