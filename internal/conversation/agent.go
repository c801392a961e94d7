package conversation

import (
	"context"
	"strings"
)

// FallbackReply is sent when the responder fails or times out, so the client
// always gets some timely answer.
const FallbackReply = "Thanks for your message. A team member will follow up shortly."

// ReplyInput is one inbound turn handed to the responder.
type ReplyInput struct {
	ThreadID string
	TenantID string
	Text     string
	State    State
	Context  map[string]any
}

// Responder produces the outbound reply for a turn. The usual implementation
// wraps an LLM; its reasoning is opaque here and it may call back into the
// booking operations through its own tools.
type Responder interface {
	Respond(ctx context.Context, input ReplyInput) (string, error)
}

// DetectIntent maps free text onto the coarse intents the state machine
// branches on.
func DetectIntent(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "reschedul") || strings.Contains(lower, "move my"):
		return IntentReschedule
	case strings.Contains(lower, "cancel"):
		return IntentCancel
	case strings.Contains(lower, "book") || strings.Contains(lower, "appointment") || strings.Contains(lower, "schedule"):
		return IntentBook
	default:
		return IntentUnknown
	}
}

// ScriptedResponder is the default stand-in responder: canned prompts keyed
// by conversation state. It keeps the pipeline functional when no LLM is
// configured.
type ScriptedResponder struct{}

func NewScriptedResponder() *ScriptedResponder {
	return &ScriptedResponder{}
}

func (r *ScriptedResponder) Respond(_ context.Context, input ReplyInput) (string, error) {
	switch input.State {
	case StateNew, StateIdentifyIntent:
		switch DetectIntent(input.Text) {
		case IntentReschedule:
			return "Sure, I can help you reschedule. Which appointment would you like to move?", nil
		case IntentCancel:
			return "I can help with that. Which appointment would you like to cancel?", nil
		default:
			return "Hi! I can help you book an appointment. What service are you looking for?", nil
		}
	case StateCollectService:
		return "What service would you like to book?", nil
	case StateCollectTimePref:
		return "Do you prefer morning, afternoon or evening?", nil
	case StateCollectProfile:
		return "Could you share your name so I can complete the booking?", nil
	case StateProposeSlots, StateAwaitSlotSelect:
		return "Please pick one of the proposed times, or ask for other options.", nil
	case StateConfirmDetails:
		return "Great, shall I confirm this appointment?", nil
	case StateEscalated:
		return "", nil
	default:
		return "Thanks! Anything else I can help you with?", nil
	}
}
