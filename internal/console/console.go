// Package console is the line-oriented terminal frontend for an interview
// session. It renders controller snapshots and maps typed lines to session
// commands.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/session"
	"github.com/rbright/rehearse/internal/timer"
	"github.com/rbright/rehearse/internal/transcript"
)

const progressStep = 20

// Controller is the subset of the session controller the console drives.
type Controller interface {
	Snapshot() session.Snapshot
	SubmitSetup(session.InterviewInfo) error
	ChangeInfo() error
	Start() error
	SetAnswer(string) error
	ToggleHint() (bool, error)
	ToggleMic() error
	Submit() error
	Retry() error
	Reset() error
	Quit()
}

// view is the part of a snapshot whose change warrants output.
type view struct {
	phase     fsm.State
	index     int
	questions int
	busy      bool
	step      int
	hint      bool
	listening bool
	speechErr transcript.ErrorCode
	lastError string
	evaluated bool
}

func viewOf(s session.Snapshot) view {
	return view{
		phase:     s.Phase,
		index:     s.Index,
		questions: len(s.Questions),
		busy:      s.Busy,
		step:      s.Progress / progressStep,
		hint:      s.HintVisible,
		listening: s.Listening,
		speechErr: s.SpeechError,
		lastError: s.LastError,
		evaluated: s.Evaluation != nil,
	}
}

// Console renders to out and reads commands from in.
type Console struct {
	ctl    Controller
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	mu         sync.Mutex
	last       view
	rendered   bool
	lastAnswer string
}

// New builds a console bound to ctl.
func New(ctl Controller, in io.Reader, out io.Writer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Console{ctl: ctl, in: in, out: out, logger: logger}
}

// Render prints what changed since the previous snapshot. It is safe to
// register as the controller subscriber.
func (c *Console) Render(s session.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := viewOf(s)
	prev := c.last
	first := !c.rendered
	c.last = next
	c.rendered = true

	if next.lastError != "" && next.lastError != prev.lastError {
		fmt.Fprintf(c.out, "! %s\n", next.lastError)
	}

	phaseChanged := first || next.phase != prev.phase
	switch s.Phase {
	case fsm.StateSetup:
		if phaseChanged {
			fmt.Fprintln(c.out, "Interview info: type  position | field | level")
		}
	case fsm.StateLoadingQuestions, fsm.StateEvaluating:
		if next.busy && (phaseChanged || next.step != prev.step || !prev.busy) {
			fmt.Fprintf(c.out, "[%3d%%] %s\n", s.Progress, s.ProgressLabel)
		}
		if !next.busy && (phaseChanged || prev.busy) {
			fmt.Fprintln(c.out, "Type :retry to try again.")
		}
	case fsm.StateReady:
		if phaseChanged {
			fmt.Fprintf(c.out, "%d questions ready. Press Enter to start.\n", len(s.Questions))
			if s.CanChangeInfo() {
				fmt.Fprintln(c.out, "Type :change to edit the interview info.")
			}
		}
	case fsm.StateAsking:
		c.renderAsking(s, prev, phaseChanged)
	case fsm.StateFinished:
		if phaseChanged || next.evaluated != prev.evaluated {
			fmt.Fprintln(c.out)
			fmt.Fprint(c.out, session.Report(s))
			fmt.Fprintln(c.out, "Type :reset to practice again or :quit to exit.")
		}
	}
}

func (c *Console) renderAsking(s session.Snapshot, prev view, phaseChanged bool) {
	next := c.last
	if q, ok := s.Current(); ok && (phaseChanged || next.index != prev.index) {
		c.lastAnswer = ""
		fmt.Fprintf(c.out, "\nQuestion %d/%d: %s\n", s.Index+1, len(s.Questions), q.Text)
	}
	if next.hint && (!prev.hint || next.index != prev.index) {
		if hint := s.Hint(); hint != "" {
			fmt.Fprintf(c.out, "Hint: %s\n", hint)
		}
	}
	if next.listening != prev.listening && !phaseChanged {
		if next.listening {
			fmt.Fprintln(c.out, "(listening)")
		} else {
			fmt.Fprintf(c.out, "(microphone off) %s\n", timer.Format(s.Elapsed))
		}
	}
	if next.speechErr != transcript.ErrorNone && next.speechErr != prev.speechErr {
		fmt.Fprintf(c.out, "! %s\n", next.speechErr.Message())
	}
	if next.listening && s.Answer != c.lastAnswer {
		fmt.Fprintf(c.out, "  > %s\n", s.Answer)
	}
	c.lastAnswer = s.Answer
}

// Run reads lines until ctx ends, input closes, or :quit is typed. Closed
// input leaves the session running so it can still be driven over IPC.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	done := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		done <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-done:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		case line := <-lines:
			if c.handle(line) {
				return nil
			}
		}
	}
}

// handle dispatches one input line and reports whether the console should stop.
func (c *Console) handle(line string) bool {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, ":") {
		return c.command(strings.ToLower(strings.TrimPrefix(line, ":")))
	}

	snap := c.ctl.Snapshot()
	var err error
	switch snap.Phase {
	case fsm.StateSetup:
		if line == "" {
			return false
		}
		info, parseErr := parseInfo(line)
		if parseErr != nil {
			err = parseErr
			break
		}
		err = c.ctl.SubmitSetup(info)
	case fsm.StateReady:
		if line == "" {
			err = c.ctl.Start()
		}
	case fsm.StateAsking:
		if line == "" {
			return false
		}
		err = c.ctl.SetAnswer(appendDraft(snap.Answer, line))
	default:
		if line != "" {
			c.printf("Nothing to do with input now. Type :help for commands.\n")
		}
	}
	c.report(err)
	return false
}

func (c *Console) command(name string) bool {
	var err error
	switch name {
	case "quit", "q":
		c.ctl.Quit()
		return true
	case "submit", "s":
		err = c.ctl.Submit()
	case "mic", "m":
		err = c.ctl.ToggleMic()
	case "hint", "h":
		var visible bool
		visible, err = c.ctl.ToggleHint()
		if err == nil && !visible {
			c.printf("Hint hidden.\n")
		}
	case "clear":
		err = c.ctl.SetAnswer("")
	case "answer":
		c.printf("%s\n", c.ctl.Snapshot().Answer)
	case "start":
		err = c.ctl.Start()
	case "change":
		err = c.ctl.ChangeInfo()
	case "retry":
		err = c.ctl.Retry()
	case "reset":
		err = c.ctl.Reset()
	case "status":
		c.printf("%s\n", c.ctl.Snapshot().Status())
	case "help", "?":
		c.printf("%s", helpText)
	default:
		err = fmt.Errorf("unknown command :%s", name)
	}
	c.report(err)
	return false
}

func (c *Console) report(err error) {
	if err == nil {
		return
	}
	c.logger.Debug("console command rejected", "error", err.Error())
	var unknown *unknownInput
	if errors.As(err, &unknown) {
		c.printf("%s\n", unknown.Error())
		return
	}
	c.printf("! %s\n", err.Error())
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

type unknownInput struct{ msg string }

func (e *unknownInput) Error() string { return e.msg }

// parseInfo splits "position | field | level".
func parseInfo(line string) (session.InterviewInfo, error) {
	parts := strings.Split(line, "|")
	if len(parts) != 3 {
		return session.InterviewInfo{}, &unknownInput{msg: "Expected: position | field | level"}
	}
	return session.InterviewInfo{Position: parts[0], Field: parts[1], Level: parts[2]}, nil
}

// appendDraft adds a typed line to the answer as a new paragraph line.
func appendDraft(answer, line string) string {
	if strings.TrimSpace(answer) == "" {
		return line
	}
	return answer + "\n" + line
}

const helpText = `Commands:
  :mic (:m)      start or stop the microphone
  :hint (:h)     show or hide the hint
  :submit (:s)   submit the current answer
  :clear         clear the current answer
  :answer        print the current answer
  :start         start the interview
  :change        edit the interview info
  :retry         retry a failed request
  :reset         practice the same questions again
  :status        print the session status
  :quit (:q)     end the session
Plain lines append to the answer, or fill the setup form.
`
