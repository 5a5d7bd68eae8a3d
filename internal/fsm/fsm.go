package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle             State = "idle"
	StateSetup            State = "setup"
	StateLoadingQuestions State = "loading_questions"
	StateReady            State = "ready"
	StateAsking           State = "asking"
	StateEvaluating       State = "evaluating"
	StateFinished         State = "finished"
)

const (
	EventNeedSetup       Event = "need_setup"
	EventLoad            Event = "load"
	EventLoaded          Event = "loaded"
	EventLoadFailed      Event = "load_failed"
	EventRetry           Event = "retry"
	EventStart           Event = "start"
	EventChangeInfo      Event = "change_info"
	EventNextQuestion    Event = "next_question"
	EventAnswersComplete Event = "answers_complete"
	EventEvaluated       Event = "evaluated"
	EventEvaluateFailed  Event = "evaluate_failed"
	EventReset           Event = "reset"
)

// Transition returns the phase reached from current on event. Failed remote
// calls keep the session in the phase that issued them so a retry re-issues
// the same request.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventNeedSetup:
			return StateSetup, nil
		case EventLoad:
			return StateLoadingQuestions, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSetup:
		switch event {
		case EventLoad:
			return StateLoadingQuestions, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateLoadingQuestions:
		switch event {
		case EventLoaded:
			return StateReady, nil
		case EventLoadFailed, EventRetry:
			return StateLoadingQuestions, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateReady:
		switch event {
		case EventStart:
			return StateAsking, nil
		case EventChangeInfo:
			return StateSetup, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAsking:
		switch event {
		case EventNextQuestion:
			return StateAsking, nil
		case EventAnswersComplete:
			return StateEvaluating, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateEvaluating:
		switch event {
		case EventEvaluated:
			return StateFinished, nil
		case EventEvaluateFailed, EventRetry:
			return StateEvaluating, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFinished:
		switch event {
		case EventReset:
			return StateReady, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
