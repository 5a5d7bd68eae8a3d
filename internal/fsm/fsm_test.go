package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionInfoDrivenHappyPath(t *testing.T) {
	steps := []struct {
		event Event
		want  State
	}{
		{EventNeedSetup, StateSetup},
		{EventLoad, StateLoadingQuestions},
		{EventLoaded, StateReady},
		{EventStart, StateAsking},
		{EventNextQuestion, StateAsking},
		{EventAnswersComplete, StateEvaluating},
		{EventEvaluated, StateFinished},
		{EventReset, StateReady},
	}

	s := StateIdle
	for _, step := range steps {
		next, err := Transition(s, step.event)
		require.NoError(t, err, "event %s from %s", step.event, s)
		require.Equal(t, step.want, next)
		s = next
	}
}

func TestTransitionResumeDrivenSkipsSetup(t *testing.T) {
	next, err := Transition(StateIdle, EventLoad)
	require.NoError(t, err)
	require.Equal(t, StateLoadingQuestions, next)
}

func TestTransitionFailuresStayRetryable(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{name: "load failed", state: StateLoadingQuestions, event: EventLoadFailed},
		{name: "load retry", state: StateLoadingQuestions, event: EventRetry},
		{name: "evaluate failed", state: StateEvaluating, event: EventEvaluateFailed},
		{name: "evaluate retry", state: StateEvaluating, event: EventRetry},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.NoError(t, err)
			require.Equal(t, tc.state, next)
		})
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{name: "idle start invalid", state: StateIdle, event: EventStart},
		{name: "setup start invalid", state: StateSetup, event: EventStart},
		{name: "loading start invalid", state: StateLoadingQuestions, event: EventStart},
		{name: "ready next invalid", state: StateReady, event: EventNextQuestion},
		{name: "ready reset invalid", state: StateReady, event: EventReset},
		{name: "asking change info invalid", state: StateAsking, event: EventChangeInfo},
		{name: "asking retry invalid", state: StateAsking, event: EventRetry},
		{name: "evaluating next invalid", state: StateEvaluating, event: EventNextQuestion},
		{name: "finished start invalid", state: StateFinished, event: EventStart},
		{name: "finished retry invalid", state: StateFinished, event: EventRetry},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid transition")
			require.Equal(t, tc.state, next)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}
