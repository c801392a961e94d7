package conversation

// State is one step of the automated booking conversation.
type State string

const (
	StateNew               State = "NEW"
	StateIdentifyIntent    State = "IDENTIFY_INTENT"
	StateCollectService    State = "COLLECT_SERVICE_TYPE"
	StateCollectTimePref   State = "COLLECT_TIME_PREF"
	StateCollectProfile    State = "COLLECT_PROFILE"
	StateProposeSlots      State = "PROPOSE_SLOTS"
	StateAwaitSlotSelect   State = "AWAIT_SLOT_SELECTION"
	StateConfirmDetails    State = "CONFIRM_DETAILS"
	StateBookingInProgress State = "BOOKING_IN_PROGRESS"
	StateBooked            State = "BOOKED"
	StateRescheduleFlow    State = "RESCHEDULE_FLOW"
	StateCancelFlow        State = "CANCEL_FLOW"
	StateEscalated         State = "ESCALATED"
)

const (
	IntentBook       = "book"
	IntentReschedule = "reschedule"
	IntentCancel     = "cancel"
	IntentUnknown    = "unknown"
)

// TransitionInput carries the signals observed on one conversation turn.
// Absent signals leave the machine waiting in its current state.
type TransitionInput struct {
	State             State
	Intent            string
	HasServiceType    bool
	HasTimePreference bool
	HasProfile        bool
	SelectedSlot      bool
	Escalate          bool
}

// NextState is a pure transition function over the closed state set. An
// escalate signal wins from any state and ESCALATED is terminal for the
// automated flow.
func NextState(input TransitionInput) State {
	if input.Escalate {
		return StateEscalated
	}

	switch input.State {
	case StateNew:
		return StateIdentifyIntent
	case StateIdentifyIntent:
		if input.Intent == IntentReschedule {
			return StateRescheduleFlow
		}
		if input.Intent == IntentCancel {
			return StateCancelFlow
		}
		return StateCollectService
	case StateCollectService:
		if input.HasServiceType {
			return StateCollectTimePref
		}
		return StateCollectService
	case StateCollectTimePref:
		if input.HasTimePreference {
			return StateCollectProfile
		}
		return StateCollectTimePref
	case StateCollectProfile:
		if input.HasProfile {
			return StateProposeSlots
		}
		return StateCollectProfile
	case StateProposeSlots:
		return StateAwaitSlotSelect
	case StateAwaitSlotSelect:
		if input.SelectedSlot {
			return StateConfirmDetails
		}
		return StateAwaitSlotSelect
	case StateConfirmDetails:
		return StateBookingInProgress
	case StateBookingInProgress:
		return StateBooked
	default:
		return input.State
	}
}
