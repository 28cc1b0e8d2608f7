package room

// Event names a requested room transition.
type Event string

const (
	EventStartGame         Event = "START_GAME"
	EventStartPlaying      Event = "START_PLAYING"
	EventContinueAfterFail Event = "CONTINUE_AFTER_FAIL"
	EventFinish            Event = "FINISH"
	EventReset             Event = "RESET"
)

// transitions maps a status to the set of statuses it may move to.
var transitions = map[Status][]Status{
	StatusWaiting:  {StatusClue},
	StatusClue:     {StatusPlaying, StatusWaiting},
	StatusPlaying:  {StatusFinished},
	StatusReveal:   {StatusFinished},
	StatusFinished: {StatusWaiting, StatusClue},
}

// eventTargets maps an event to the status it drives toward.
var eventTargets = map[Event]Status{
	EventStartGame:         StatusClue,
	EventStartPlaying:      StatusPlaying,
	EventContinueAfterFail: StatusClue,
	EventFinish:            StatusFinished,
	EventReset:             StatusWaiting,
}

// CanTransition reports whether (current, next) is in the transition table.
func CanTransition(current, next Status) bool {
	for _, s := range transitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// NextStatusForEvent resolves an event against the transition table.
// It returns the target status only when the move is allowed from
// current; otherwise ok is false and the command must be rejected.
func NextStatusForEvent(current Status, event Event) (Status, bool) {
	target, known := eventTargets[event]
	if !known {
		return "", false
	}
	if !CanTransition(current, target) {
		return "", false
	}
	return target, true
}
