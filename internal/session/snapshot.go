package session

import (
	"fmt"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/timer"
	"github.com/rbright/rehearse/internal/transcript"
)

// Snapshot is an immutable copy of the observable session state.
type Snapshot struct {
	ID              string
	Phase           fsm.State
	HasResume       bool
	Info            InterviewInfo
	Questions       []Question
	Index           int
	Answer          string
	Listening       bool
	SpeechSupported bool
	SpeechError     transcript.ErrorCode
	HintVisible     bool
	Elapsed         int
	Answers         []AnswerRecord
	Evaluation      *Evaluation
	Busy            bool
	Progress        int
	ProgressLabel   string
	LastError       string
}

// Snapshot copies the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	speech := c.transcript.Snapshot()
	snap := Snapshot{
		ID:              c.id,
		Phase:           c.state,
		HasResume:       c.hasResume,
		Info:            c.info,
		Questions:       append([]Question(nil), c.questions...),
		Index:           c.index,
		Answer:          c.answer,
		Listening:       speech.Listening,
		SpeechSupported: speech.Supported,
		SpeechError:     speech.Err,
		HintVisible:     c.hintVisible,
		Elapsed:         c.timer.Elapsed(),
		Busy:            c.busy,
		Progress:        c.progress,
		ProgressLabel:   c.progressLabel,
		LastError:       c.lastError,
	}
	snap.Answers = make([]AnswerRecord, len(c.answers))
	copy(snap.Answers, c.answers)
	if c.evaluation != nil {
		eval := *c.evaluation
		eval.PerQuestion = append([]QuestionScore(nil), c.evaluation.PerQuestion...)
		snap.Evaluation = &eval
	}
	return snap
}

// Current returns the active question, if any.
func (s Snapshot) Current() (Question, bool) {
	if s.Phase != fsm.StateAsking || s.Index < 0 || s.Index >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.Index], true
}

// Hint returns the active question's hint when it is visible.
func (s Snapshot) Hint() string {
	q, ok := s.Current()
	if !ok || !s.HintVisible {
		return ""
	}
	return q.Hint
}

// CanChangeInfo reports whether the ready screen offers returning to setup.
func (s Snapshot) CanChangeInfo() bool {
	return s.Phase == fsm.StateReady && !s.HasResume
}

// AverageScore is the mean of the scored answers.
func (s Snapshot) AverageScore() float64 {
	return AverageScore(s.Answers)
}

// TotalTime sums the time spent across answers.
func (s Snapshot) TotalTime() int {
	return TotalTime(s.Answers)
}

// Status is a one-line summary used by the status command.
func (s Snapshot) Status() string {
	switch s.Phase {
	case fsm.StateSetup:
		return "waiting for interview info"
	case fsm.StateLoadingQuestions:
		if s.Busy {
			return fmt.Sprintf("loading questions %d%%", s.Progress)
		}
		return "question load failed; retry available"
	case fsm.StateReady:
		return fmt.Sprintf("%d questions ready", len(s.Questions))
	case fsm.StateAsking:
		mic := "off"
		if s.Listening {
			mic = "on"
		}
		return fmt.Sprintf("question %d/%d %s mic=%s", s.Index+1, len(s.Questions), timer.Format(s.Elapsed), mic)
	case fsm.StateEvaluating:
		if s.Busy {
			return fmt.Sprintf("evaluating %d%%", s.Progress)
		}
		return "evaluation failed; retry available"
	case fsm.StateFinished:
		return fmt.Sprintf("average %.1f/100 over %d answers", s.AverageScore(), len(s.Answers))
	default:
		return string(s.Phase)
	}
}
