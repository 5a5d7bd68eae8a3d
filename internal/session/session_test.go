package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/progress"
	"github.com/rbright/rehearse/internal/transcript"
)

type fakeSource struct {
	questions []Question
	err       atomic.Pointer[error]

	resumeCalls atomic.Int32
	infoCalls   atomic.Int32
	mu          sync.Mutex
	lastResume  string
	lastInfo    InterviewInfo
}

func (f *fakeSource) failWith(err error) {
	if err == nil {
		f.err.Store(nil)
		return
	}
	f.err.Store(&err)
}

func (f *fakeSource) result() ([]Question, error) {
	if errp := f.err.Load(); errp != nil {
		return nil, *errp
	}
	return f.questions, nil
}

func (f *fakeSource) ResumeQuestions(_ context.Context, resumeText string) ([]Question, error) {
	f.resumeCalls.Add(1)
	f.mu.Lock()
	f.lastResume = resumeText
	f.mu.Unlock()
	return f.result()
}

func (f *fakeSource) InfoQuestions(_ context.Context, info InterviewInfo) ([]Question, error) {
	f.infoCalls.Add(1)
	f.mu.Lock()
	f.lastInfo = info
	f.mu.Unlock()
	return f.result()
}

type fakeEvaluator struct {
	eval  Evaluation
	err   atomic.Pointer[error]
	calls atomic.Int32

	mu        sync.Mutex
	lastInfo  InterviewInfo
	submitted []AnswerSubmission
}

func (f *fakeEvaluator) failWith(err error) {
	if err == nil {
		f.err.Store(nil)
		return
	}
	f.err.Store(&err)
}

func (f *fakeEvaluator) Evaluate(_ context.Context, info InterviewInfo, answers []AnswerSubmission) (Evaluation, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastInfo = info
	f.submitted = append([]AnswerSubmission(nil), answers...)
	f.mu.Unlock()
	if errp := f.err.Load(); errp != nil {
		return Evaluation{}, *errp
	}
	return f.eval, nil
}

type fakeResume struct{ text string }

func (f fakeResume) HasResume() bool    { return f.text != "" }
func (f fakeResume) ResumeText() string { return f.text }

type fakeNotifier struct {
	mu       sync.Mutex
	success  []string
	errors   []string
	infos    []string
	listens  atomic.Int32
	stopCues atomic.Int32
	answered atomic.Int32
}

func (f *fakeNotifier) Success(_ context.Context, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.success = append(f.success, msg)
}

func (f *fakeNotifier) Error(_ context.Context, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, msg)
}

func (f *fakeNotifier) Info(_ context.Context, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos = append(f.infos, msg)
}

func (f *fakeNotifier) CueListening(context.Context) { f.listens.Add(1) }
func (f *fakeNotifier) CueStopped(context.Context)   { f.stopCues.Add(1) }
func (f *fakeNotifier) CueAnswered(context.Context)  { f.answered.Add(1) }

func (f *fakeNotifier) errorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errors)
}

type fakeRecognizer struct {
	mu       sync.Mutex
	segments []chan transcript.Event
}

func (f *fakeRecognizer) Start(context.Context) (<-chan transcript.Event, error) {
	ch := make(chan transcript.Event)
	f.mu.Lock()
	f.segments = append(f.segments, ch)
	f.mu.Unlock()
	return ch, nil
}

func (f *fakeRecognizer) Stop() {}

func (f *fakeRecognizer) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ch := range f.segments {
		if ch != nil {
			close(ch)
			f.segments[i] = nil
		}
	}
}

// emit delivers ev followed by an empty barrier event so ev is fully applied
// on return.
func (f *fakeRecognizer) emit(t *testing.T, segment int, ev transcript.Event) {
	t.Helper()
	f.mu.Lock()
	require.Greater(t, len(f.segments), segment)
	ch := f.segments[segment]
	f.mu.Unlock()
	for _, e := range []transcript.Event{ev, {}} {
		select {
		case ch <- e:
		case <-time.After(2 * time.Second):
			t.Fatalf("segment %d did not accept event", segment)
		}
	}
}

type fakeCapability struct {
	supported bool
	rec       fakeRecognizer
}

func (f *fakeCapability) Supported() bool { return f.supported }

func (f *fakeCapability) NewRecognizer(transcript.Options) (transcript.Recognizer, error) {
	return &f.rec, nil
}

var instantProfile = progress.Profile{Name: "test", Step: 10, Cap: 90, Interval: time.Millisecond, Floor: time.Millisecond}

func testOptions() Options {
	opts := DefaultOptions()
	opts.PreRoll = 10 * time.Millisecond
	opts.Tick = 5 * time.Millisecond
	opts.ResumeProfile = instantProfile
	opts.InfoProfile = instantProfile
	opts.EvaluationProfile = instantProfile
	return opts
}

func threeQuestions() []Question {
	return []Question{
		{Text: "Tell me about yourself", Hint: "Keep it short"},
		{Text: "Describe a hard bug", Hint: "Use STAR"},
		{Text: "Why this company?", Hint: "Be specific"},
	}
}

type harness struct {
	ctrl      *Controller
	source    *fakeSource
	evaluator *fakeEvaluator
	notifier  *fakeNotifier
	speech    *fakeCapability
}

func newHarness(t *testing.T, resume string) *harness {
	t.Helper()
	h := &harness{
		source:    &fakeSource{questions: threeQuestions()},
		evaluator: &fakeEvaluator{},
		notifier:  &fakeNotifier{},
		speech:    &fakeCapability{supported: true},
	}
	h.ctrl = NewController(nil, Deps{
		Questions: h.source,
		Evaluator: h.evaluator,
		Resume:    fakeResume{text: resume},
		Notifier:  h.notifier,
		Speech:    h.speech,
	}, testOptions())
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) toReady(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Begin())
	if h.ctrl.State() == fsm.StateSetup {
		require.NoError(t, h.ctrl.SubmitSetup(InterviewInfo{Position: "Backend Engineer", Field: "Fintech", Level: "Senior"}))
	}
	waitForState(t, h.ctrl, fsm.StateReady)
}

func (h *harness) answerAll(t *testing.T, answers ...string) {
	t.Helper()
	for _, answer := range answers {
		require.NoError(t, h.ctrl.SetAnswer(answer))
		require.NoError(t, h.ctrl.Submit())
	}
}

func TestBeginWithoutResumeEntersSetup(t *testing.T) {
	h := newHarness(t, "")

	require.NoError(t, h.ctrl.Begin())
	require.Equal(t, fsm.StateSetup, h.ctrl.State())
	require.Equal(t, int32(0), h.source.infoCalls.Load())
	require.NotEmpty(t, h.ctrl.Snapshot().ID)

	err := h.ctrl.Begin()
	require.ErrorIs(t, err, ErrInvalidPhase)
}

func TestSubmitSetupRejectsBlankFields(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.ctrl.Begin())

	err := h.ctrl.SubmitSetup(InterviewInfo{Position: "Engineer", Field: "  ", Level: "Junior"})
	require.ErrorIs(t, err, ErrIncompleteInfo)
	require.Equal(t, fsm.StateSetup, h.ctrl.State())
	require.Equal(t, 1, h.notifier.errorCount())
	require.Equal(t, int32(0), h.source.infoCalls.Load())
}

func TestInfoDrivenSessionRunsToFinished(t *testing.T) {
	h := newHarness(t, "")
	h.evaluator.eval = Evaluation{
		TotalScore: 80,
		PerQuestion: []QuestionScore{
			{QuestionID: 1, Score: 80, Feedback: "clear"},
			{QuestionID: 2, Score: 60, Feedback: "vague"},
			{QuestionID: 3, Score: 100, Feedback: "great"},
		},
		GeneralFeedback:        "Solid overall.",
		ImprovementSuggestions: "Quantify impact.",
	}

	h.toReady(t)
	require.Equal(t, int32(1), h.source.infoCalls.Load())
	require.Equal(t, "Backend Engineer", h.source.lastInfo.Position)
	require.True(t, h.ctrl.Snapshot().CanChangeInfo())

	require.NoError(t, h.ctrl.Start())
	require.Equal(t, fsm.StateAsking, h.ctrl.State())

	h.answerAll(t, "I build payment systems.")
	snap := h.ctrl.Snapshot()
	require.Equal(t, 1, snap.Index)
	require.Len(t, snap.Answers, snap.Index)
	require.Empty(t, snap.Answer)

	h.answerAll(t, "  A race in the ledger.  ", "Mission.")
	waitForState(t, h.ctrl, fsm.StateFinished)

	snap = h.ctrl.Snapshot()
	require.Len(t, snap.Answers, 3)
	require.Equal(t, "A race in the ledger.", snap.Answers[1].AnswerText)
	for _, record := range snap.Answers {
		require.NotNil(t, record.Score)
	}
	require.InDelta(t, 80.0, snap.AverageScore(), 0.001)
	require.Equal(t, "Solid overall.", snap.Evaluation.GeneralFeedback)

	h.evaluator.mu.Lock()
	require.Equal(t, []int{1, 2, 3}, []int{h.evaluator.submitted[0].QuestionID, h.evaluator.submitted[1].QuestionID, h.evaluator.submitted[2].QuestionID})
	require.Equal(t, "Backend Engineer", h.evaluator.lastInfo.Position)
	h.evaluator.mu.Unlock()
}

func TestResumeDrivenSessionSkipsSetup(t *testing.T) {
	h := newHarness(t, "Go developer, 5 years")

	require.NoError(t, h.ctrl.Begin())
	require.NotEqual(t, fsm.StateSetup, h.ctrl.State())
	waitForState(t, h.ctrl, fsm.StateReady)

	require.Equal(t, int32(1), h.source.resumeCalls.Load())
	require.Equal(t, int32(0), h.source.infoCalls.Load())
	h.source.mu.Lock()
	require.Equal(t, "Go developer, 5 years", h.source.lastResume)
	h.source.mu.Unlock()

	require.False(t, h.ctrl.Snapshot().CanChangeInfo())
	require.ErrorIs(t, h.ctrl.ChangeInfo(), ErrResumeDriven)

	h.evaluator.eval = Evaluation{PerQuestion: []QuestionScore{{QuestionID: 1, Score: 50}, {QuestionID: 2, Score: 50}, {QuestionID: 3, Score: 50}}}
	require.NoError(t, h.ctrl.Start())
	h.answerAll(t, "a", "b", "c")
	waitForState(t, h.ctrl, fsm.StateFinished)

	h.evaluator.mu.Lock()
	require.Equal(t, "general", h.evaluator.lastInfo.Position)
	h.evaluator.mu.Unlock()
}

func TestChangeInfoReturnsToSetup(t *testing.T) {
	h := newHarness(t, "")
	h.toReady(t)

	require.NoError(t, h.ctrl.ChangeInfo())
	require.Equal(t, fsm.StateSetup, h.ctrl.State())

	require.NoError(t, h.ctrl.SubmitSetup(InterviewInfo{Position: "SRE", Field: "Cloud", Level: "Mid"}))
	waitForState(t, h.ctrl, fsm.StateReady)
	require.Equal(t, int32(2), h.source.infoCalls.Load())
	require.Equal(t, "SRE", h.ctrl.Snapshot().Info.Position)
}

func TestQuestionLoadFailureIsRetryable(t *testing.T) {
	h := newHarness(t, "")
	h.source.failWith(errors.New("backend down"))

	require.NoError(t, h.ctrl.Begin())
	require.NoError(t, h.ctrl.SubmitSetup(InterviewInfo{Position: "QA", Field: "Games", Level: "Junior"}))
	waitFor(t, func() bool { return h.notifier.errorCount() == 1 })

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateLoadingQuestions, snap.Phase)
	require.False(t, snap.Busy)
	require.Contains(t, snap.LastError, "backend down")

	h.source.failWith(nil)
	require.NoError(t, h.ctrl.Retry())
	waitForState(t, h.ctrl, fsm.StateReady)
	require.Equal(t, int32(2), h.source.infoCalls.Load())
}

func TestEmptyQuestionListCountsAsFailure(t *testing.T) {
	h := newHarness(t, "")
	h.source.questions = nil

	require.NoError(t, h.ctrl.Begin())
	require.NoError(t, h.ctrl.SubmitSetup(InterviewInfo{Position: "QA", Field: "Games", Level: "Junior"}))
	waitFor(t, func() bool { return h.notifier.errorCount() == 1 })
	require.Equal(t, fsm.StateLoadingQuestions, h.ctrl.State())
	require.Contains(t, h.ctrl.Snapshot().LastError, ErrNoQuestions.Error())
}

func TestSubmitRejectsBlankAnswer(t *testing.T) {
	h := newHarness(t, "")
	h.toReady(t)
	require.NoError(t, h.ctrl.Start())

	require.NoError(t, h.ctrl.SetAnswer(" \n\t "))
	require.ErrorIs(t, h.ctrl.Submit(), ErrEmptyAnswer)

	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateAsking, snap.Phase)
	require.Equal(t, 0, snap.Index)
	require.Empty(t, snap.Answers)
	require.Equal(t, 1, h.notifier.errorCount())
	require.Zero(t, h.notifier.answered.Load())

	require.NoError(t, h.ctrl.SetAnswer("A real answer"))
	require.NoError(t, h.ctrl.Submit())
	require.Equal(t, int32(1), h.notifier.answered.Load())
}

func TestMissingEvaluationDefaultsToZero(t *testing.T) {
	h := newHarness(t, "")
	h.evaluator.eval = Evaluation{PerQuestion: []QuestionScore{
		{QuestionID: 1, Score: 70, Feedback: "ok"},
		{QuestionID: 3, Score: 90, Feedback: "good"},
	}}
	h.toReady(t)
	require.NoError(t, h.ctrl.Start())
	h.answerAll(t, "one", "two", "three")
	waitForState(t, h.ctrl, fsm.StateFinished)

	answers := h.ctrl.Snapshot().Answers
	require.Equal(t, 70, *answers[0].Score)
	require.Equal(t, 0, *answers[1].Score)
	require.Equal(t, NoEvaluationFeedback, answers[1].Feedback)
	require.Equal(t, 90, *answers[2].Score)
	require.Equal(t, "good", answers[2].Feedback)
}

func TestEvaluationFailureKeepsBatchForRetry(t *testing.T) {
	h := newHarness(t, "")
	h.evaluator.failWith(errors.New("timeout"))
	h.evaluator.eval = Evaluation{PerQuestion: []QuestionScore{{QuestionID: 1, Score: 10}, {QuestionID: 2, Score: 20}, {QuestionID: 3, Score: 30}}}
	h.toReady(t)
	require.NoError(t, h.ctrl.Start())
	h.answerAll(t, "one", "two", "three")

	waitFor(t, func() bool { return h.notifier.errorCount() == 1 })
	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateEvaluating, snap.Phase)
	require.Len(t, snap.Answers, 3)
	require.Nil(t, snap.Answers[0].Score)

	h.evaluator.failWith(nil)
	require.NoError(t, h.ctrl.Retry())
	waitForState(t, h.ctrl, fsm.StateFinished)
	require.Equal(t, int32(2), h.evaluator.calls.Load())
	require.InDelta(t, 20.0, h.ctrl.Snapshot().AverageScore(), 0.001)
}

func TestResetReturnsToReadyWithQuestions(t *testing.T) {
	h := newHarness(t, "")
	h.evaluator.eval = Evaluation{PerQuestion: []QuestionScore{{QuestionID: 1, Score: 1}, {QuestionID: 2, Score: 2}, {QuestionID: 3, Score: 3}}}
	h.toReady(t)
	require.NoError(t, h.ctrl.Start())
	h.answerAll(t, "one", "two", "three")
	waitForState(t, h.ctrl, fsm.StateFinished)

	require.NoError(t, h.ctrl.Reset())
	snap := h.ctrl.Snapshot()
	require.Equal(t, fsm.StateReady, snap.Phase)
	require.Empty(t, snap.Answers)
	require.Nil(t, snap.Evaluation)
	require.Len(t, snap.Questions, 3)
	require.Zero(t, snap.AverageScore())

	require.ErrorIs(t, h.ctrl.Reset(), ErrInvalidPhase)
}

func TestQuestionChangeResetsTimer(t *testing.T) {
	h := newHarness(t, "")
	h.toReady(t)
	require.NoError(t, h.ctrl.Start())

	waitFor(t, func() bool { return h.ctrl.Snapshot().Elapsed >= 3 })
	require.NoError(t, h.ctrl.SetAnswer("first"))
	require.NoError(t, h.ctrl.Submit())

	snap := h.ctrl.Snapshot()
	require.Equal(t, 1, snap.Index)
	require.GreaterOrEqual(t, snap.Answers[0].TimeSpentSeconds, 3)
	require.Less(t, snap.Elapsed, snap.Answers[0].TimeSpentSeconds)
}

func TestMicrophoneTranscriptDrivesAnswer(t *testing.T) {
	h := newHarness(t, "")
	h.toReady(t)
	require.NoError(t, h.ctrl.Start())

	require.NoError(t, h.ctrl.SetAnswer("typed draft"))
	require.NoError(t, h.ctrl.ToggleMic())
	require.True(t, h.ctrl.Snapshot().Listening)
	require.Equal(t, int32(1), h.notifier.listens.Load())
	require.Empty(t, h.ctrl.Snapshot().Answer, "live transcript replaces the answer")

	h.speech.rec.emit(t, 0, transcript.Event{Fragments: []transcript.Fragment{{Text: "I led", Final: true}}})
	require.Equal(t, "I led", h.ctrl.Snapshot().Answer)

	require.ErrorIs(t, h.ctrl.SetAnswer("manual"), ErrEditWhileListening)

	require.NoError(t, h.ctrl.ToggleMic())
	require.False(t, h.ctrl.Snapshot().Listening)
	require.Equal(t, int32(1), h.notifier.stopCues.Load())

	require.NoError(t, h.ctrl.SetAnswer("I led the migration"))
	require.NoError(t, h.ctrl.Submit())
	require.Equal(t, "I led the migration", h.ctrl.Snapshot().Answers[0].AnswerText)
}

func TestTrailingFinalAfterQuestionChangeIsDiscarded(t *testing.T) {
	h := newHarness(t, "")
	h.toReady(t)
	require.NoError(t, h.ctrl.Start())

	require.NoError(t, h.ctrl.ToggleMic())
	h.speech.rec.emit(t, 0, transcript.Event{Fragments: []transcript.Fragment{{Text: "answer one", Final: true}}})
	require.NoError(t, h.ctrl.Submit())

	h.speech.rec.emit(t, 0, transcript.Event{Fragments: []transcript.Fragment{{Text: "late words", Final: true}}})

	snap := h.ctrl.Snapshot()
	require.Equal(t, 1, snap.Index)
	require.Empty(t, snap.Answer)
	require.Equal(t, "answer one", snap.Answers[0].AnswerText)
	require.False(t, snap.Listening)
}

func TestSpeechErrorIsSurfaced(t *testing.T) {
	h := newHarness(t, "")
	h.toReady(t)
	require.NoError(t, h.ctrl.Start())

	require.NoError(t, h.ctrl.ToggleMic())
	h.speech.rec.emit(t, 0, transcript.Event{Err: transcript.ErrorNoSpeech})

	snap := h.ctrl.Snapshot()
	require.False(t, snap.Listening)
	require.Equal(t, transcript.ErrorNoSpeech, snap.SpeechError)
	h.notifier.mu.Lock()
	require.Contains(t, h.notifier.errors, transcript.ErrorNoSpeech.Message())
	h.notifier.mu.Unlock()
}

func TestUnsupportedSpeechNotifiesOnEveryMicClick(t *testing.T) {
	h := newHarness(t, "")
	h.speech.supported = false
	h.ctrl = NewController(nil, Deps{Questions: h.source, Notifier: h.notifier, Speech: h.speech}, testOptions())
	t.Cleanup(h.ctrl.Close)

	h.toReady(t)
	require.NoError(t, h.ctrl.Start())

	require.Zero(t, h.notifier.errorCount())
	require.ErrorIs(t, h.ctrl.ToggleMic(), transcript.ErrUnsupported)
	require.Equal(t, 1, h.notifier.errorCount())
	require.ErrorIs(t, h.ctrl.ToggleMic(), transcript.ErrUnsupported)
	require.Equal(t, 2, h.notifier.errorCount())
	require.False(t, h.ctrl.Snapshot().Listening)

	h.notifier.mu.Lock()
	require.Contains(t, h.notifier.infos, transcript.ErrorUnsupported.Message())
	h.notifier.mu.Unlock()
	require.False(t, h.ctrl.Snapshot().SpeechSupported)
}

func TestCommandsRejectedOutsideTheirPhase(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.ctrl.Begin())

	require.ErrorIs(t, h.ctrl.Start(), ErrInvalidPhase)
	require.ErrorIs(t, h.ctrl.Submit(), ErrInvalidPhase)
	require.ErrorIs(t, h.ctrl.ToggleMic(), ErrInvalidPhase)
	require.ErrorIs(t, h.ctrl.Retry(), ErrInvalidPhase)
	_, err := h.ctrl.ToggleHint()
	require.ErrorIs(t, err, ErrInvalidPhase)
}

func TestReportCommittedOnFinish(t *testing.T) {
	var report atomic.Pointer[string]
	source := &fakeSource{questions: threeQuestions()[:1]}
	ctrl := NewController(nil, Deps{
		Questions: source,
		Evaluator: &fakeEvaluator{eval: Evaluation{PerQuestion: []QuestionScore{{QuestionID: 1, Score: 88, Feedback: "crisp"}}}},
		Committer: CommitFunc(func(_ context.Context, r string) error {
			report.Store(&r)
			return nil
		}),
	}, testOptions())
	t.Cleanup(ctrl.Close)

	require.NoError(t, ctrl.Begin())
	require.NoError(t, ctrl.SubmitSetup(InterviewInfo{Position: "PM", Field: "Health", Level: "Lead"}))
	waitForState(t, ctrl, fsm.StateReady)
	require.NoError(t, ctrl.Start())
	require.NoError(t, ctrl.SetAnswer("roadmaps"))
	require.NoError(t, ctrl.Submit())
	waitForState(t, ctrl, fsm.StateFinished)

	waitFor(t, func() bool { return report.Load() != nil })
	require.Contains(t, *report.Load(), "Score: 88/100")
	require.Contains(t, *report.Load(), "crisp")
}

func waitForState(t *testing.T, ctrl *Controller, desired fsm.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == desired && !ctrl.Snapshot().Busy {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s (current=%s)", desired, ctrl.State())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}
