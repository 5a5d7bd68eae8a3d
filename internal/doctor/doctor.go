// Package doctor runs readiness diagnostics for config, backend, speech, and desktop tools.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/questionbank"
	"github.com/rbright/rehearse/internal/remote"
	"github.com/rbright/rehearse/internal/resume"
)

const backendProbeTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	checks = append(checks, checkBackend(ctx, cfg))
	checks = append(checks, checkResume(cfg.Interview))

	if cfg.Speech.Enable {
		checks = append(checks, checkEnv(cfg.Speech.APIKeyEnv, func(v string) bool {
			return strings.TrimSpace(v) != ""
		}, "speech API key is set", "speech API key is empty; microphone input disabled"))
		checks = append(checks, checkAudioSelection(ctx, cfg))
	}

	if cfg.Indicator.Enable {
		switch strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend)) {
		case "hypr":
			checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
				return strings.TrimSpace(v) != ""
			}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))
			checks = append(checks, checkBinary("hyprctl", "notifications use hyprctl"))
		case "desktop":
			checks = append(checks, checkBinary("busctl", "notifications use DBus"))
		}
	}

	if cfg.Report.ClipboardEnable {
		checks = append(checks, checkCommand(cfg.Report.Clipboard.Argv, "clipboard_cmd"))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

func checkConfig(loaded config.Loaded) Check {
	msg := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		msg = fmt.Sprintf("using defaults; %q not found", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 {
		msg = fmt.Sprintf("%s (%d warning(s))", msg, n)
	}
	return Check{Name: "config", Pass: true, Message: msg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, audio.Preference{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback})
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkBackend probes the question backend, or the local bank when the
// backend is disabled.
func checkBackend(ctx context.Context, cfg config.Config) Check {
	transport := strings.ToLower(strings.TrimSpace(cfg.Backend.Transport))
	if transport == "none" {
		if _, err := questionbank.Load(cfg.Interview.QuestionBank); err != nil {
			return Check{Name: "question_bank", Pass: false, Message: err.Error()}
		}
		return Check{Name: "question_bank", Pass: true, Message: fmt.Sprintf("loaded %q", cfg.Interview.QuestionBank)}
	}

	ctx, cancel := context.WithTimeout(ctx, backendProbeTimeout)
	defer cancel()

	rc := remote.ConfigFrom(cfg.Backend)
	rc.Timeout = backendProbeTimeout
	client, err := remote.New(ctx, nil, rc)
	if err != nil {
		return Check{Name: "backend", Pass: false, Message: err.Error()}
	}
	defer func() { _ = client.Close() }()

	target := cfg.Backend.URL
	if transport == remote.TransportGRPC {
		target = cfg.Backend.GRPCAddress
	}
	if err := client.Health(ctx); err != nil {
		return Check{Name: "backend", Pass: false, Message: fmt.Sprintf("%s unhealthy: %v", target, err)}
	}
	return Check{Name: "backend", Pass: true, Message: fmt.Sprintf("%s ready at %s", transport, target)}
}

// checkResume reports which session mode the stored résumé selects.
func checkResume(cfg config.InterviewConfig) Check {
	path := strings.TrimSpace(cfg.ResumeContext)
	if path == "" {
		var err error
		if path, err = resume.DefaultPath(); err != nil {
			return Check{Name: "resume", Pass: false, Message: err.Error()}
		}
	}
	ctx, err := resume.Load(path)
	if err != nil {
		return Check{Name: "resume", Pass: false, Message: err.Error()}
	}
	if ctx.HasResume() {
		return Check{Name: "resume", Pass: true, Message: fmt.Sprintf("résumé-driven (%d sections)", len(ctx.Sections()))}
	}
	return Check{Name: "resume", Pass: true, Message: "no résumé stored; sessions start with the info form"}
}
