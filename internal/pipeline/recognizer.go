// Package pipeline is the platform speech recognizer: microphone capture
// streamed to Deepgram, surfaced as transcript events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/deepgram"
	"github.com/rbright/rehearse/internal/transcript"
)

const (
	defaultDrainTimeout = 3 * time.Second
	eventBuffer         = 16
)

// Config wires capture and streaming.
type Config struct {
	Enable   bool
	APIKey   string
	Endpoint string
	Model    string
	Audio    audio.Preference
	// NoSpeechTimeout ends a segment with no-speech when nothing is
	// recognized in time. Zero disables it.
	NoSpeechTimeout time.Duration
	// DrainTimeout bounds the wait for trailing results after a stop.
	DrainTimeout time.Duration
	DebugDump    bool
}

type source interface {
	Chunks() <-chan []byte
	Stop() error
	Device() audio.Device
	Peak() float64
}

type stream interface {
	Send(ctx context.Context, chunk []byte) error
	CloseSend(ctx context.Context) error
	Results() <-chan deepgram.Result
	Err() error
	Close() error
}

type (
	openSourceFunc func(ctx context.Context) (source, error)
	openStreamFunc func(ctx context.Context, opts deepgram.StreamOptions) (stream, error)
)

// Capability probes configuration for a usable recognizer.
type Capability struct {
	logger     *slog.Logger
	cfg        Config
	openSource openSourceFunc
}

// NewCapability builds the capability for cfg.
func NewCapability(logger *slog.Logger, cfg Config) *Capability {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	c := &Capability{logger: logger, cfg: cfg}
	c.openSource = c.selectAndCapture
	return c
}

// Supported reports whether speech is enabled and credentials are present.
func (c *Capability) Supported() bool {
	return c.cfg.Enable && strings.TrimSpace(c.cfg.APIKey) != ""
}

// NewRecognizer builds a recognizer for opts.
func (c *Capability) NewRecognizer(opts transcript.Options) (transcript.Recognizer, error) {
	if !c.Supported() {
		return nil, transcript.ErrUnsupported
	}
	client, err := deepgram.New(deepgram.Config{
		Endpoint:   c.cfg.Endpoint,
		APIKey:     c.cfg.APIKey,
		Model:      c.cfg.Model,
		SampleRate: audio.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	openStream := func(ctx context.Context, so deepgram.StreamOptions) (stream, error) {
		return client.Open(ctx, so)
	}
	return newRecognizer(c.logger, c.cfg, opts, c.openSource, openStream), nil
}

func (c *Capability) selectAndCapture(ctx context.Context) (source, error) {
	selection, err := audio.SelectDevice(ctx, c.cfg.Audio)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" {
		c.logger.Warn(selection.Warning, "device", selection.Device.Label())
	}
	capture, err := audio.StartCapture(ctx, selection.Device)
	if err != nil {
		return nil, err
	}
	return capture, nil
}

// Recognizer runs one capture and one stream per listening segment.
type Recognizer struct {
	logger     *slog.Logger
	cfg        Config
	opts       transcript.Options
	openSource openSourceFunc
	openStream openStreamFunc

	mu      sync.Mutex
	current *run
	active  map[*run]struct{}
	aborted bool
	runs    sync.WaitGroup
}

type run struct {
	stop   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
}

func (r *run) halt() {
	r.once.Do(func() { close(r.stop) })
}

func newRecognizer(logger *slog.Logger, cfg Config, opts transcript.Options, openSource openSourceFunc, openStream openStreamFunc) *Recognizer {
	return &Recognizer{
		logger:     logger,
		cfg:        cfg,
		opts:       opts,
		openSource: openSource,
		openStream: openStream,
		active:     make(map[*run]struct{}),
	}
}

// Start begins a segment. Connection and capture failures arrive as error
// events on the returned channel.
func (r *Recognizer) Start(ctx context.Context) (<-chan transcript.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted {
		return nil, transcript.ErrClosed
	}
	if r.current != nil {
		r.current.halt()
	}

	runCtx, cancel := context.WithCancel(ctx)
	seg := &run{stop: make(chan struct{}), cancel: cancel}
	r.current = seg
	r.active[seg] = struct{}{}
	events := make(chan transcript.Event, eventBuffer)

	r.runs.Add(1)
	go r.run(runCtx, seg, events)
	return events, nil
}

// Stop ends capture for the live segment. Results already in flight are
// still delivered.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	seg := r.current
	r.current = nil
	r.mu.Unlock()

	if seg != nil {
		seg.halt()
	}
}

// Abort cancels every segment and waits for them to close their channels.
func (r *Recognizer) Abort() {
	r.mu.Lock()
	r.aborted = true
	r.current = nil
	for seg := range r.active {
		seg.cancel()
	}
	r.mu.Unlock()

	r.runs.Wait()
}

func (r *Recognizer) forget(seg *run) {
	r.mu.Lock()
	delete(r.active, seg)
	if r.current == seg {
		r.current = nil
	}
	r.mu.Unlock()
}

func (r *Recognizer) run(ctx context.Context, seg *run, events chan<- transcript.Event) {
	defer r.runs.Done()
	defer close(events)
	defer r.forget(seg)
	defer seg.cancel()

	emit := func(ev transcript.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(code transcript.ErrorCode, msg string, err error) {
		r.logger.Error(msg, "code", string(code), "error", err)
		emit(transcript.Event{Err: code})
	}

	src, err := r.openSource(ctx)
	if err != nil {
		fail(captureErrorCode(err), "start audio capture", err)
		return
	}
	defer func() { _ = src.Stop() }()

	st, err := r.openStream(ctx, deepgram.StreamOptions{
		Language:       streamLanguage(r.opts.Language),
		InterimResults: r.opts.InterimResults,
		Alternatives:   r.opts.MaxAlternatives,
	})
	if err != nil {
		fail(streamErrorCode(err), "open speech stream", err)
		return
	}
	defer func() { _ = st.Close() }()

	dump := r.newDump()
	defer dump.close()

	r.logger.Debug("listening segment started", "device", src.Device().Label(), "language", r.opts.Language)

	var noSpeech <-chan time.Time
	if r.cfg.NoSpeechTimeout > 0 {
		t := time.NewTimer(r.cfg.NoSpeechTimeout)
		defer t.Stop()
		noSpeech = t.C
	}

	var (
		chunks  = src.Chunks()
		results = st.Results()
		stop    = seg.stop
		drain   <-chan time.Time
		heard   bool
		stopped bool
	)
	endCapture := func() {
		chunks = nil
		noSpeech = nil
		_ = src.Stop()
		if err := st.CloseSend(ctx); err != nil {
			r.logger.Debug("close speech stream", "error", err)
		}
		t := time.NewTimer(r.cfg.DrainTimeout)
		drain = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-stop:
			stop = nil
			stopped = true
			noSpeech = nil
			// Stopping the source closes chunks after the tail flush.
			_ = src.Stop()

		case chunk, ok := <-chunks:
			if !ok {
				endCapture()
				continue
			}
			dump.audio(chunk)
			if err := st.Send(ctx, chunk); err != nil && !errors.Is(err, deepgram.ErrStreamClosed) {
				r.logger.Warn("send audio", "error", err)
				endCapture()
			}

		case res, ok := <-results:
			if !ok {
				if err := st.Err(); err != nil && !stopped {
					fail(transcript.ErrorNetwork, "speech stream ended", err)
				}
				r.logger.Debug("listening segment ended", "heard", heard, "peak", src.Peak())
				return
			}
			dump.result(res)
			if strings.TrimSpace(res.Text) != "" {
				heard = true
				noSpeech = nil
			}
			if !emit(transcript.Event{Fragments: []transcript.Fragment{{Text: res.Text, Final: res.Final}}}) {
				return
			}
			if !r.opts.Continuous && res.SpeechFinal && heard {
				seg.halt()
			}

		case <-noSpeech:
			fail(transcript.ErrorNoSpeech, "no speech detected", fmt.Errorf("nothing recognized within %s", r.cfg.NoSpeechTimeout))
			return

		case <-drain:
			r.logger.Debug("speech stream drain timed out")
			return
		}
	}
}

func captureErrorCode(err error) transcript.ErrorCode {
	if errors.Is(err, audio.ErrMuted) {
		return transcript.ErrorNotAllowed
	}
	return transcript.ErrorAudioCapture
}

func streamErrorCode(err error) transcript.ErrorCode {
	var dialErr *deepgram.DialError
	if !errors.As(err, &dialErr) {
		return transcript.ErrorUnknown
	}
	switch dialErr.StatusCode {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
		return transcript.ErrorServiceNotAllowed
	case http.StatusBadRequest:
		return transcript.ErrorLanguageNotSupported
	default:
		return transcript.ErrorNetwork
	}
}

// regionalTags are the locales Deepgram accepts with a region suffix. Other
// tags are reduced to their base language.
var regionalTags = map[string]bool{
	"en-us": true, "en-gb": true, "en-au": true, "en-in": true, "en-nz": true,
	"es-419": true, "fr-ca": true, "pt-br": true, "pt-pt": true,
	"zh-cn": true, "zh-tw": true, "nl-be": true, "de-ch": true,
}

func streamLanguage(tag string) string {
	tag = strings.TrimSpace(strings.ReplaceAll(tag, "_", "-"))
	if tag == "" || regionalTags[strings.ToLower(tag)] {
		return tag
	}
	base, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(base)
}
