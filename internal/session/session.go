// Package session drives one mock interview from setup through evaluation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/ipc"
	"github.com/rbright/rehearse/internal/progress"
	"github.com/rbright/rehearse/internal/timer"
	"github.com/rbright/rehearse/internal/transcript"
)

// ErrInvalidPhase wraps commands issued in a phase that does not accept them.
var ErrInvalidPhase = errors.New("invalid phase")

const (
	msgSetupRequired   = "Enter the position, field and level to generate questions."
	msgIncompleteInfo  = "Please fill in position, field and level."
	msgLoadFailed      = "Could not load interview questions. Please try again."
	msgEmptyAnswer     = "Please enter an answer before continuing."
	msgEvaluateFailed  = "Could not evaluate your answers. Please try again."
	msgEvaluated       = "Your answers have been evaluated."
	msgListening       = "Listening..."
	msgStoppedListen   = "Microphone off."
	msgReportFailed    = "Could not export the interview report."
	msgResumeAnalyzing = "Analyzing your résumé..."
	msgEvaluating      = "Scoring your answers..."
)

type action int

const (
	actionQuit action = iota + 1
)

// Options tunes a Controller.
type Options struct {
	Speech            transcript.Options
	PreRoll           time.Duration
	Tick              time.Duration
	ResumeProfile     progress.Profile
	InfoProfile       progress.Profile
	EvaluationProfile progress.Profile
	// ResumeInfo is sent with résumé-driven answer batches, which have no
	// setup form to take InterviewInfo from.
	ResumeInfo InterviewInfo
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		Speech:            transcript.Options{Language: "vi-VN", Continuous: true, InterimResults: true, MaxAlternatives: 1},
		PreRoll:           timer.DefaultPreRoll,
		Tick:              timer.DefaultTick,
		ResumeProfile:     progress.ResumeQuestions,
		InfoProfile:       progress.InfoQuestions,
		EvaluationProfile: progress.Evaluation,
		ResumeInfo:        InterviewInfo{Position: "general", Field: "general", Level: "general"},
	}
}

// Deps bundles the controller collaborators. Nil fields fall back to inert
// defaults.
type Deps struct {
	Questions QuestionSource
	Evaluator Evaluator
	Resume    ResumeContext
	Notifier  Notifier
	Speech    transcript.Capability
	Recorder  Recorder
	Committer Committer
}

// Result is the lifecycle summary returned by Run.
type Result struct {
	ID         string
	State      fsm.State
	Answers    []AnswerRecord
	Evaluation *Evaluation
	Average    float64
	TotalTime  int
	Cancelled  bool
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Controller owns all mutable session state. Timer ticks, recognition events
// and remote call completions re-enter through generation-checked callbacks.
type Controller struct {
	logger    *slog.Logger
	source    QuestionSource
	evaluator Evaluator
	resume    ResumeContext
	notifier  Notifier
	recorder  Recorder
	committer Committer
	opts      Options

	transcript *transcript.Reconciler
	timer      *timer.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.RWMutex
	state            fsm.State
	id               string
	startedAt        time.Time
	generation       uint64
	hasResume        bool
	info             InterviewInfo
	questions        []Question
	index            int
	answer           string
	followTranscript bool
	hintVisible      bool
	answers          []AnswerRecord
	evaluation       *Evaluation
	busy             bool
	progress         int
	progressLabel    string
	lastError        string
	lastSpeechErr    transcript.ErrorCode
	onUpdate         func(Snapshot)

	actions chan action
}

// NewController constructs a controller with safe default fallbacks.
func NewController(logger *slog.Logger, deps Deps, opts Options) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.Questions == nil {
		deps.Questions = emptySource{}
	}
	if deps.Evaluator == nil {
		deps.Evaluator = unavailableEvaluator{}
	}
	if deps.Resume == nil {
		deps.Resume = noResume{}
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	if deps.Committer == nil {
		deps.Committer = CommitFunc(func(context.Context, string) error { return nil })
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		logger:    logger,
		source:    deps.Questions,
		evaluator: deps.Evaluator,
		resume:    deps.Resume,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		committer: deps.Committer,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		state:     fsm.StateIdle,
		actions:   make(chan action, 1),
	}
	c.transcript = transcript.NewReconciler(logger, deps.Speech, opts.Speech, c.onTranscript)
	c.timer = timer.New(opts.PreRoll, opts.Tick, c.onTick)
	return c
}

// Subscribe registers fn to receive a snapshot after every observable change.
// fn runs without controller locks held.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// transitionLocked applies one FSM event. Callers hold c.mu.
func (c *Controller) transitionLocked(event fsm.Event) error {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	if next != c.state {
		c.logger.Debug("session transition", "session_id", c.id, "from", string(c.state), "to", string(next), "event", string(event))
	}
	c.state = next
	return nil
}

// Begin starts the session, skipping setup when résumé context exists.
func (c *Controller) Begin() error {
	c.mu.Lock()
	if c.state != fsm.StateIdle {
		state := c.state
		c.mu.Unlock()
		return phaseError("begin", state)
	}

	c.id = uuid.New().String()
	c.startedAt = time.Now()
	c.hasResume = c.resume.HasResume()
	unsupported := !c.transcript.Supported()

	var err error
	if c.hasResume {
		if err = c.transitionLocked(fsm.EventLoad); err == nil {
			c.startLoadLocked()
		}
	} else {
		err = c.transitionLocked(fsm.EventNeedSetup)
	}
	hasResume := c.hasResume
	id := c.id
	c.mu.Unlock()

	if err != nil {
		return err
	}

	c.logger.Info("session started", "session_id", id, "resume_driven", hasResume, "speech_supported", !unsupported)
	c.recorder.SessionStarted(c.ctx, hasResume)
	if unsupported {
		c.notifier.Info(c.ctx, transcript.ErrorUnsupported.Message())
	}
	if !hasResume {
		c.notifier.Info(c.ctx, msgSetupRequired)
	}
	c.publish()
	return nil
}

// SubmitSetup validates info and loads questions for it.
func (c *Controller) SubmitSetup(info InterviewInfo) error {
	c.mu.Lock()
	if c.state != fsm.StateSetup {
		state := c.state
		c.mu.Unlock()
		return phaseError("submit setup", state)
	}
	if err := info.Validate(); err != nil {
		c.mu.Unlock()
		c.notifier.Error(c.ctx, msgIncompleteInfo)
		return ErrIncompleteInfo
	}
	if err := c.transitionLocked(fsm.EventLoad); err != nil {
		c.mu.Unlock()
		return err
	}
	c.info = info.Normalize()
	c.startLoadLocked()
	c.mu.Unlock()

	c.publish()
	return nil
}

// ChangeInfo returns a ready, info-driven session to setup.
func (c *Controller) ChangeInfo() error {
	c.mu.Lock()
	if c.state != fsm.StateReady {
		state := c.state
		c.mu.Unlock()
		return phaseError("change info", state)
	}
	if c.hasResume {
		c.mu.Unlock()
		return ErrResumeDriven
	}
	if err := c.transitionLocked(fsm.EventChangeInfo); err != nil {
		c.mu.Unlock()
		return err
	}
	c.generation++
	c.questions = nil
	c.mu.Unlock()

	c.publish()
	return nil
}

// Start asks the first question.
func (c *Controller) Start() error {
	c.mu.Lock()
	if err := c.transitionLocked(fsm.EventStart); err != nil {
		state := c.state
		c.mu.Unlock()
		return phaseError("start", state)
	}
	c.index = 0
	c.answers = nil
	c.evaluation = nil
	c.activateQuestionLocked()
	c.mu.Unlock()

	c.publish()
	return nil
}

// SetAnswer replaces the answer buffer. It is rejected while listening
// because the live transcript owns the buffer then.
func (c *Controller) SetAnswer(text string) error {
	c.mu.Lock()
	if c.state != fsm.StateAsking {
		state := c.state
		c.mu.Unlock()
		return phaseError("edit answer", state)
	}
	if c.transcript.Snapshot().Listening {
		c.mu.Unlock()
		return ErrEditWhileListening
	}
	c.answer = text
	c.followTranscript = false
	c.mu.Unlock()

	c.publish()
	return nil
}

// ToggleHint shows or hides the active question's hint.
func (c *Controller) ToggleHint() (bool, error) {
	c.mu.Lock()
	if c.state != fsm.StateAsking {
		state := c.state
		c.mu.Unlock()
		return false, phaseError("toggle hint", state)
	}
	c.hintVisible = !c.hintVisible
	visible := c.hintVisible
	c.mu.Unlock()

	c.publish()
	return visible, nil
}

// ToggleMic starts or stops a listening segment for the active question.
// While listening, the answer buffer mirrors the live transcript.
func (c *Controller) ToggleMic() error {
	c.mu.Lock()
	if c.state != fsm.StateAsking {
		state := c.state
		c.mu.Unlock()
		return phaseError("toggle microphone", state)
	}

	if c.transcript.Snapshot().Listening {
		c.transcript.StopListening()
		c.mu.Unlock()
		c.cue(false)
		c.notifier.Info(c.ctx, msgStoppedListen)
		c.publish()
		return nil
	}

	if !c.transcript.Supported() {
		c.mu.Unlock()
		c.notifier.Error(c.ctx, transcript.ErrorUnsupported.Message())
		return transcript.ErrUnsupported
	}

	if err := c.transcript.StartListening(c.ctx); err != nil {
		code := c.transcript.Snapshot().Err
		c.lastSpeechErr = code
		c.mu.Unlock()
		c.logger.Warn("start listening failed", "session_id", c.id, "code", string(code), "error", err)
		c.recorder.SpeechError(c.ctx, string(code))
		c.notifier.Error(c.ctx, code.Message())
		c.publish()
		return err
	}
	c.followTranscript = true
	c.lastSpeechErr = transcript.ErrorNone
	c.answer = c.transcript.Snapshot().Transcript()
	c.mu.Unlock()

	c.cue(true)
	c.notifier.Info(c.ctx, msgListening)
	c.publish()
	return nil
}

// Submit records the current answer and advances to the next question, or
// to evaluation after the last one.
func (c *Controller) Submit() error {
	c.mu.Lock()
	if c.state != fsm.StateAsking {
		state := c.state
		c.mu.Unlock()
		return phaseError("submit", state)
	}
	text := strings.TrimSpace(c.answer)
	if text == "" {
		c.mu.Unlock()
		c.notifier.Error(c.ctx, msgEmptyAnswer)
		return ErrEmptyAnswer
	}

	c.transcript.StopListening()
	c.timer.Stop()
	spent := c.timer.Elapsed()
	c.answers = append(c.answers, AnswerRecord{
		QuestionText:     c.questions[c.index].Text,
		AnswerText:       text,
		TimeSpentSeconds: spent,
	})

	var err error
	if c.index+1 < len(c.questions) {
		if err = c.transitionLocked(fsm.EventNextQuestion); err == nil {
			c.index++
			c.activateQuestionLocked()
		}
	} else if err = c.transitionLocked(fsm.EventAnswersComplete); err == nil {
		c.transcript.ResetTranscript()
		c.answer = ""
		c.followTranscript = false
		c.hintVisible = false
		c.startEvaluationLocked()
	}
	index := c.index
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.logger.Info("answer submitted", "session_id", c.id, "question_index", index, "time_spent_s", spent)
	c.recorder.AnswerSubmitted(c.ctx, spent)
	if cuer, ok := c.notifier.(Cuer); ok {
		cuer.CueAnswered(c.ctx)
	}
	c.publish()
	return nil
}

// Retry re-issues the failed remote call for the current phase.
func (c *Controller) Retry() error {
	c.mu.Lock()
	state := c.state
	if state != fsm.StateLoadingQuestions && state != fsm.StateEvaluating {
		c.mu.Unlock()
		return phaseError("retry", state)
	}
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if err := c.transitionLocked(fsm.EventRetry); err != nil {
		c.mu.Unlock()
		return err
	}
	c.lastError = ""
	if state == fsm.StateLoadingQuestions {
		c.startLoadLocked()
	} else {
		c.startEvaluationLocked()
	}
	c.mu.Unlock()

	c.publish()
	return nil
}

// Reset clears the finished session and returns to the question summary.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if err := c.transitionLocked(fsm.EventReset); err != nil {
		state := c.state
		c.mu.Unlock()
		return phaseError("reset", state)
	}
	c.generation++
	c.timer.Stop()
	c.transcript.StopListening()
	c.transcript.ResetTranscript()
	c.index = 0
	c.answer = ""
	c.followTranscript = false
	c.hintVisible = false
	c.answers = nil
	c.evaluation = nil
	c.lastError = ""
	c.mu.Unlock()

	c.publish()
	return nil
}

// Run begins the session and blocks until ctx ends or a quit is requested.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}
	defer c.Close()

	if err := c.Begin(); err != nil {
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	select {
	case <-ctx.Done():
		result.Cancelled = true
	case <-c.actions:
	}

	snap := c.Snapshot()
	result.ID = snap.ID
	result.State = snap.Phase
	result.Answers = snap.Answers
	result.Evaluation = snap.Evaluation
	result.Average = snap.AverageScore()
	result.TotalTime = snap.TotalTime()
	result.FinishedAt = time.Now()
	return result
}

// Close cancels in-flight work and releases the timer and recognizer.
func (c *Controller) Close() {
	c.mu.Lock()
	c.generation++
	c.mu.Unlock()

	c.cancel()
	c.timer.Close()
	c.transcript.Close()
	c.wg.Wait()
}

// Handle serves IPC commands for the running session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return ipc.Response{OK: true, State: string(c.State()), Message: c.Snapshot().Status()}
	case "start":
		return c.respond(c.Start(), "started")
	case "setup":
		if len(req.Args) != 3 {
			return ipc.Response{OK: false, State: string(c.State()), Error: "setup requires position, field and level"}
		}
		return c.respond(c.SubmitSetup(InterviewInfo{Position: req.Args[0], Field: req.Args[1], Level: req.Args[2]}), "loading questions")
	case "change-info":
		return c.respond(c.ChangeInfo(), "back to setup")
	case "answer":
		return c.respond(c.SetAnswer(strings.Join(req.Args, " ")), "answer updated")
	case "mic":
		err := c.ToggleMic()
		if err == nil && c.Snapshot().Listening {
			return c.respond(nil, "listening")
		}
		return c.respond(err, "microphone off")
	case "hint":
		visible, err := c.ToggleHint()
		if err != nil || !visible {
			return c.respond(err, "hint hidden")
		}
		return c.respond(nil, c.Snapshot().Hint())
	case "submit":
		return c.respond(c.Submit(), "answer submitted")
	case "retry":
		return c.respond(c.Retry(), "retrying")
	case "reset":
		return c.respond(c.Reset(), "session reset")
	case "quit":
		return c.requestQuit()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) respond(err error, message string) ipc.Response {
	state := string(c.State())
	if err != nil {
		return ipc.Response{OK: false, State: state, Error: err.Error()}
	}
	return ipc.Response{OK: true, State: state, Message: message}
}

// requestQuit enqueues a quit for Run.
func (c *Controller) requestQuit() ipc.Response {
	state := string(c.State())
	select {
	case c.actions <- actionQuit:
		return ipc.Response{OK: true, State: state, Message: "quit requested"}
	default:
		return ipc.Response{OK: true, State: state, Message: "quit already requested"}
	}
}

// Quit asks Run to return.
func (c *Controller) Quit() {
	c.requestQuit()
}

// activateQuestionLocked binds timer and transcript to c.index.
func (c *Controller) activateQuestionLocked() {
	c.transcript.StopListening()
	c.transcript.ResetTranscript()
	c.timer.Activate(c.index)
	c.answer = ""
	c.followTranscript = false
	c.hintVisible = false
	c.lastSpeechErr = transcript.ErrorNone
}

func (c *Controller) startLoadLocked() {
	c.busy = true
	c.progress = 0
	gen := c.generation
	hasResume := c.hasResume
	info := c.info
	profile := c.opts.InfoProfile
	c.progressLabel = fmt.Sprintf("Preparing %s questions for %s...", info.Level, info.Position)
	resumeText := ""
	if hasResume {
		profile = c.opts.ResumeProfile
		c.progressLabel = msgResumeAnalyzing
		resumeText = c.resume.ResumeText()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		started := time.Now()
		questions, err := progress.Wait(c.ctx, profile, c.progressReporter(gen), func(ctx context.Context) ([]Question, error) {
			if hasResume {
				return c.source.ResumeQuestions(ctx, resumeText)
			}
			return c.source.InfoQuestions(ctx, info)
		})
		if err == nil && len(questions) == 0 {
			err = ErrNoQuestions
		}
		c.recorder.RemoteCall(c.ctx, "questions", time.Since(started), err)
		c.finishLoad(gen, questions, err)
	}()
}

func (c *Controller) finishLoad(gen uint64, questions []Question, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.busy = false
	c.progress = 0
	c.progressLabel = ""
	if err != nil {
		_ = c.transitionLocked(fsm.EventLoadFailed)
		c.lastError = err.Error()
		c.mu.Unlock()

		c.logger.Error("question load failed", "session_id", c.id, "error", err)
		c.notifier.Error(c.ctx, msgLoadFailed)
		c.publish()
		return
	}
	c.questions = append([]Question(nil), questions...)
	_ = c.transitionLocked(fsm.EventLoaded)
	count := len(c.questions)
	c.mu.Unlock()

	c.logger.Info("questions loaded", "session_id", c.id, "count", count)
	c.notifier.Success(c.ctx, fmt.Sprintf("%d interview questions are ready.", count))
	c.publish()
}

func (c *Controller) startEvaluationLocked() {
	c.busy = true
	c.progress = 0
	c.progressLabel = msgEvaluating
	gen := c.generation
	info := c.info
	if c.hasResume {
		info = c.opts.ResumeInfo
	}
	submissions := Submissions(c.answers)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		started := time.Now()
		eval, err := progress.Wait(c.ctx, c.opts.EvaluationProfile, c.progressReporter(gen), func(ctx context.Context) (Evaluation, error) {
			return c.evaluator.Evaluate(ctx, info, submissions)
		})
		c.recorder.RemoteCall(c.ctx, "evaluate", time.Since(started), err)
		c.finishEvaluation(gen, eval, err)
	}()
}

func (c *Controller) finishEvaluation(gen uint64, eval Evaluation, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.busy = false
	c.progress = 0
	c.progressLabel = ""
	if err != nil {
		_ = c.transitionLocked(fsm.EventEvaluateFailed)
		c.lastError = err.Error()
		pending := len(c.answers)
		c.mu.Unlock()

		c.logger.Error("evaluation failed", "session_id", c.id, "answers", pending, "error", err)
		c.notifier.Error(c.ctx, msgEvaluateFailed)
		c.publish()
		return
	}
	c.answers = MergeEvaluation(c.answers, eval)
	c.evaluation = &eval
	_ = c.transitionLocked(fsm.EventEvaluated)
	c.mu.Unlock()

	snap := c.Snapshot()
	average := snap.AverageScore()
	c.logger.Info("session evaluated", "session_id", snap.ID, "average", average, "total_time_s", snap.TotalTime())
	c.recorder.SessionFinished(c.ctx, average)
	c.notifier.Success(c.ctx, msgEvaluated)
	if err := c.committer.Commit(c.ctx, Report(snap)); err != nil {
		c.logger.Error("report export failed", "session_id", snap.ID, "error", err)
		c.notifier.Error(c.ctx, msgReportFailed)
	}
	c.publish()
}

func (c *Controller) progressReporter(gen uint64) func(int) {
	return func(value int) {
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.progress = value
		c.mu.Unlock()
		c.publish()
	}
}

// onTranscript mirrors recognition updates into the answer buffer.
func (c *Controller) onTranscript(update transcript.State) {
	c.mu.Lock()
	current := c.transcript.Snapshot()
	if update.Epoch != current.Epoch {
		c.mu.Unlock()
		return
	}
	if c.state == fsm.StateAsking && c.followTranscript {
		c.answer = current.Transcript()
	}
	var failed transcript.ErrorCode
	if current.Err != transcript.ErrorNone && current.Err != c.lastSpeechErr {
		failed = current.Err
	}
	c.lastSpeechErr = current.Err
	c.mu.Unlock()

	if failed != transcript.ErrorNone {
		c.logger.Warn("speech recognition error", "session_id", c.id, "code", string(failed))
		c.recorder.SpeechError(c.ctx, string(failed))
		c.notifier.Error(c.ctx, failed.Message())
	}
	c.publish()
}

// onTick publishes elapsed time for the active question only.
func (c *Controller) onTick(tick timer.Tick) {
	if tick.Generation != c.timer.Generation() {
		return
	}
	c.publish()
}

func (c *Controller) cue(listening bool) {
	cuer, ok := c.notifier.(Cuer)
	if !ok {
		return
	}
	if listening {
		cuer.CueListening(c.ctx)
		return
	}
	cuer.CueStopped(c.ctx)
}

func (c *Controller) publish() {
	c.mu.RLock()
	fn := c.onUpdate
	c.mu.RUnlock()
	if fn != nil {
		fn(c.Snapshot())
	}
}

func phaseError(action string, state fsm.State) error {
	return fmt.Errorf("cannot %s from state %s: %w", action, state, ErrInvalidPhase)
}
