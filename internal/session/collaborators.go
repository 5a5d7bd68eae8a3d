package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyAnswer rejects a submission whose trimmed text is empty.
	ErrEmptyAnswer = errors.New("answer is empty")
	// ErrIncompleteInfo rejects a setup form with a blank field.
	ErrIncompleteInfo = errIncompleteInfo
	// ErrNoQuestions reports a question source that returned nothing.
	ErrNoQuestions = errors.New("question source returned no questions")
	// ErrBusy rejects a retry while a remote call is still in flight.
	ErrBusy = errors.New("a request is already in flight")
	// ErrEditWhileListening rejects manual answer edits while the microphone is live.
	ErrEditWhileListening = errors.New("answer follows the live transcript while listening; stop the microphone to edit")
	// ErrResumeDriven rejects changing interview info for a résumé-driven session.
	ErrResumeDriven = errors.New("session is driven by résumé context")
	// ErrEvaluatorUnavailable is returned when no evaluator is wired.
	ErrEvaluatorUnavailable = errors.New("answer evaluator not configured")
)

// QuestionSource generates the question list for a session.
type QuestionSource interface {
	ResumeQuestions(ctx context.Context, resumeText string) ([]Question, error)
	InfoQuestions(ctx context.Context, info InterviewInfo) ([]Question, error)
}

// Evaluator scores a complete answer batch.
type Evaluator interface {
	Evaluate(ctx context.Context, info InterviewInfo, answers []AnswerSubmission) (Evaluation, error)
}

// ResumeContext is the persisted résumé the user uploaded earlier, if any.
type ResumeContext interface {
	HasResume() bool
	ResumeText() string
}

// Notifier is the fire-and-forget user notification channel.
type Notifier interface {
	Success(context.Context, string)
	Error(context.Context, string)
	Info(context.Context, string)
}

// Cuer is optionally implemented by notifiers that play audio cues for the
// microphone and for accepted answers.
type Cuer interface {
	CueListening(context.Context)
	CueStopped(context.Context)
	CueAnswered(context.Context)
}

// Recorder receives session metrics.
type Recorder interface {
	SessionStarted(ctx context.Context, resumeDriven bool)
	AnswerSubmitted(ctx context.Context, seconds int)
	SessionFinished(ctx context.Context, average float64)
	RemoteCall(ctx context.Context, op string, d time.Duration, err error)
	SpeechError(ctx context.Context, code string)
}

type noopNotifier struct{}

func (noopNotifier) Success(context.Context, string) {}
func (noopNotifier) Error(context.Context, string)   {}
func (noopNotifier) Info(context.Context, string)    {}

type noopRecorder struct{}

func (noopRecorder) SessionStarted(context.Context, bool)                     {}
func (noopRecorder) AnswerSubmitted(context.Context, int)                     {}
func (noopRecorder) SessionFinished(context.Context, float64)                 {}
func (noopRecorder) RemoteCall(context.Context, string, time.Duration, error) {}
func (noopRecorder) SpeechError(context.Context, string)                      {}

type noResume struct{}

func (noResume) HasResume() bool    { return false }
func (noResume) ResumeText() string { return "" }

type unavailableEvaluator struct{}

func (unavailableEvaluator) Evaluate(context.Context, InterviewInfo, []AnswerSubmission) (Evaluation, error) {
	return Evaluation{}, ErrEvaluatorUnavailable
}

type emptySource struct{}

func (emptySource) ResumeQuestions(context.Context, string) ([]Question, error) {
	return nil, ErrNoQuestions
}

func (emptySource) InfoQuestions(context.Context, InterviewInfo) ([]Question, error) {
	return nil, ErrNoQuestions
}
