// Package indicator surfaces session notices as desktop notifications and
// plays the microphone audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/hypr"
)

const (
	infoTimeoutMS    = 2500
	successTimeoutMS = 4000
)

type level int

const (
	levelInfo level = iota + 1
	levelSuccess
	levelError
)

type style struct {
	icon    int
	color   string
	urgency urgency
}

var styles = map[level]style{
	levelInfo:    {icon: 1, color: "rgb(89b4fa)", urgency: urgencyLow},
	levelSuccess: {icon: 5, color: "rgb(a6e3a1)", urgency: urgencyNormal},
	levelError:   {icon: 3, color: "rgb(f38ba8)", urgency: urgencyCritical},
}

// Notifier implements the session notifier and microphone cues. Visual
// output goes through Hyprland or desktop DBus depending on config backend.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
	cues                  sync.WaitGroup
}

// New creates a notifier from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
	}
}

func (n *Notifier) Success(ctx context.Context, text string) {
	n.playCue(cueResults)
	if text == "" {
		text = n.messages.success
	}
	n.show(ctx, levelSuccess, successTimeoutMS, text)
}

func (n *Notifier) Error(ctx context.Context, text string) {
	n.playCue(cueProblem)
	if text == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.show(ctx, levelError, timeout, text)
}

func (n *Notifier) Info(ctx context.Context, text string) {
	if text == "" {
		return
	}
	n.show(ctx, levelInfo, infoTimeoutMS, text)
}

// CueListening plays the start cue.
func (n *Notifier) CueListening(context.Context) {
	n.playCue(cueListen)
}

// CueStopped plays the stop cue.
func (n *Notifier) CueStopped(context.Context) {
	n.playCue(cueMute)
}

// CueAnswered plays the submission cue.
func (n *Notifier) CueAnswered(context.Context) {
	n.playCue(cueAnswered)
}

// Dismiss clears the current notification.
func (n *Notifier) Dismiss(ctx context.Context) {
	if !n.visual() {
		return
	}
	n.run(ctx, n.dismiss)
}

// Wait blocks until queued cues have played.
func (n *Notifier) Wait() {
	n.cues.Wait()
}

func (n *Notifier) visual() bool {
	return n.cfg.Enable && n.backend() != "none"
}

func (n *Notifier) backend() string {
	return strings.ToLower(strings.TrimSpace(n.cfg.Backend))
}

func (n *Notifier) show(ctx context.Context, lvl level, timeoutMS int, text string) {
	if !n.visual() {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, lvl, timeoutMS, text)
	})
}

// notify dispatches output through the configured backend.
func (n *Notifier) notify(ctx context.Context, lvl level, timeoutMS int, text string) error {
	st := styles[lvl]
	if n.backend() == "desktop" {
		return n.notifyDesktop(ctx, st.urgency, timeoutMS, text)
	}
	return hypr.Notify(ctx, st.icon, timeoutMS, st.color, text)
}

func (n *Notifier) dismiss(ctx context.Context) error {
	if n.backend() == "desktop" {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, u urgency, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "rehearse"
	}

	id, err := desktopNotify(ctx, appName, replaceID, n.messages.summary, text, u, timeoutMS)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes a notification with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := emitCue(kind, n.cfg); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
