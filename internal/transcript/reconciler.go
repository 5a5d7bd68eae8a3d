package transcript

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// State is the merged, observable view of the reconciler.
type State struct {
	FinalText   string
	InterimText string
	Listening   bool
	Supported   bool
	Err         ErrorCode
	// Epoch changes on every reset. Consumers compare it to drop callbacks
	// that were produced before a reset they have already applied.
	Epoch uint64
}

// Transcript is the best current estimate of what was said.
func (s State) Transcript() string {
	return Join(s.FinalText, s.InterimText)
}

// segment binds one listening segment to the epoch whose buffer it feeds.
type segment struct {
	epoch uint64
}

// Reconciler owns the platform recognizer and merges its events into one
// append-only final buffer plus a replace-only interim buffer.
type Reconciler struct {
	logger     *slog.Logger
	capability Capability
	supported  bool
	onChange   func(State)

	mu         sync.Mutex
	opts       Options
	recognizer Recognizer
	live       *segment
	final      string
	interim    string
	err        ErrorCode
	epoch      uint64
	closed     bool

	pumps sync.WaitGroup
}

// NewReconciler builds a reconciler. onChange runs on event pump goroutines
// whenever a recognition event or segment end changes the state; it is never
// called from the command methods, so callers may hold their own locks while
// commanding the reconciler.
func NewReconciler(logger *slog.Logger, capability Capability, opts Options, onChange func(State)) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if capability == nil {
		capability = Unsupported{}
	}
	return &Reconciler{
		logger:     logger,
		capability: capability,
		supported:  capability.Supported(),
		onChange:   onChange,
		opts:       opts,
	}
}

// Snapshot returns the current merged state.
func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Supported reports the capability probe result taken at construction.
func (r *Reconciler) Supported() bool {
	return r.supported
}

// StartListening begins a listening segment. It is a no-op while a segment
// is already live.
func (r *Reconciler) StartListening(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.live != nil {
		r.mu.Unlock()
		return nil
	}
	if !r.supported {
		r.err = ErrorUnsupported
		r.mu.Unlock()
		return ErrUnsupported
	}

	if r.recognizer == nil {
		recognizer, err := r.capability.NewRecognizer(r.opts)
		if err != nil {
			r.err = codeFor(err)
			r.mu.Unlock()
			return err
		}
		r.recognizer = recognizer
	}

	events, err := r.recognizer.Start(ctx)
	if err != nil {
		r.err = codeFor(err)
		r.mu.Unlock()
		return err
	}

	seg := &segment{epoch: r.epoch}
	r.live = seg
	r.err = ErrorNone
	r.pumps.Add(1)
	r.mu.Unlock()

	go r.pump(seg, events)
	return nil
}

// StopListening ends the live segment. A final result the platform delivers
// afterwards is still merged unless a reset happens first.
func (r *Reconciler) StopListening() {
	r.mu.Lock()
	if r.live == nil {
		r.mu.Unlock()
		return
	}
	r.live = nil
	recognizer := r.recognizer
	r.mu.Unlock()

	if recognizer != nil {
		recognizer.Stop()
	}
}

// ResetTranscript clears both buffers and the error. A live segment keeps
// running and feeds the cleared buffer; a draining segment is cut off.
func (r *Reconciler) ResetTranscript() {
	r.mu.Lock()
	r.epoch++
	r.final = ""
	r.interim = ""
	r.err = ErrorNone
	if r.live != nil {
		r.live.epoch = r.epoch
	}
	r.mu.Unlock()
}

// Configure swaps recognizer options. A recognizer built for different
// options is aborted and rebuilt on the next StartListening.
func (r *Reconciler) Configure(opts Options) {
	r.mu.Lock()
	if opts == r.opts {
		r.mu.Unlock()
		return
	}
	r.opts = opts
	old := r.recognizer
	r.recognizer = nil
	r.live = nil
	r.mu.Unlock()

	if old != nil {
		old.Abort()
	}
}

// Close aborts the recognizer and waits for event pumps to drain.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.epoch++
	r.live = nil
	recognizer := r.recognizer
	r.recognizer = nil
	r.mu.Unlock()

	if recognizer != nil {
		recognizer.Abort()
	}
	r.pumps.Wait()
}

func (r *Reconciler) pump(seg *segment, events <-chan Event) {
	defer r.pumps.Done()
	for event := range events {
		r.apply(seg, event)
	}
	r.finish(seg)
}

func (r *Reconciler) apply(seg *segment, event Event) {
	r.mu.Lock()
	if seg.epoch != r.epoch {
		r.mu.Unlock()
		r.logger.Debug("discarding stale recognition event", "segment_epoch", seg.epoch, "epoch", r.epochSnapshot())
		return
	}

	if event.Err != ErrorNone {
		r.err = event.Err
		if r.live == seg {
			r.live = nil
		}
		state := r.snapshotLocked()
		r.mu.Unlock()
		r.logger.Warn("recognition error", "code", string(event.Err))
		r.notify(state)
		return
	}

	final, interim := splitFragments(event.Fragments)
	if final != "" {
		r.final = Join(r.final, final)
	}
	r.interim = interim
	state := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(state)
}

func (r *Reconciler) finish(seg *segment) {
	r.mu.Lock()
	if r.live != seg {
		r.mu.Unlock()
		return
	}
	r.live = nil
	state := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(state)
}

func (r *Reconciler) epochSnapshot() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

func (r *Reconciler) snapshotLocked() State {
	return State{
		FinalText:   r.final,
		InterimText: r.interim,
		Listening:   r.live != nil,
		Supported:   r.supported,
		Err:         r.err,
		Epoch:       r.epoch,
	}
}

func (r *Reconciler) notify(state State) {
	if r.onChange != nil {
		r.onChange(state)
	}
}

func codeFor(err error) ErrorCode {
	var code ErrorCode
	if errors.As(err, &code) {
		return code
	}
	if errors.Is(err, ErrUnsupported) {
		return ErrorUnsupported
	}
	return ErrorUnknown
}
