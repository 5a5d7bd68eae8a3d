package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch cfg.Backend.Transport {
	case "http":
		u, err := url.Parse(strings.TrimSpace(cfg.Backend.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("backend.url must be an absolute http(s) URL")
		}
	case "grpc":
		if strings.TrimSpace(cfg.Backend.GRPCAddress) == "" {
			return nil, fmt.Errorf("backend.grpc_address must not be empty when backend.transport=grpc")
		}
	case "none":
		if strings.TrimSpace(cfg.Interview.QuestionBank) == "" {
			return nil, fmt.Errorf("interview.question_bank is required when backend.transport=none")
		}
		warnings = append(warnings, Warning{Message: "backend.transport=none; answers cannot be evaluated"})
	default:
		return nil, fmt.Errorf("backend.transport must be one of: http, grpc, none")
	}
	if cfg.Backend.TimeoutMS <= 0 {
		return nil, fmt.Errorf("backend.timeout_ms must be > 0")
	}

	if cfg.Speech.Enable {
		if strings.TrimSpace(cfg.Speech.Language) == "" {
			return nil, fmt.Errorf("speech.language must not be empty")
		}
		if strings.TrimSpace(cfg.Speech.APIKeyEnv) == "" {
			return nil, fmt.Errorf("speech.api_key_env must not be empty when speech.enable=true")
		}
		u, err := url.Parse(strings.TrimSpace(cfg.Speech.Endpoint))
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return nil, fmt.Errorf("speech.endpoint must be a ws(s) URL")
		}
	}
	if cfg.Speech.MaxAlternatives < 1 {
		return nil, fmt.Errorf("speech.max_alternatives must be >= 1")
	}
	if cfg.Speech.NoSpeechTimeoutMS < 0 {
		return nil, fmt.Errorf("speech.no_speech_timeout_ms must be >= 0")
	}

	if cfg.Interview.PreRollMS < 0 {
		return nil, fmt.Errorf("interview.preroll_ms must be >= 0")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend != "hypr" && backend != "desktop" && backend != "none" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop, none")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if cfg.Report.ClipboardEnable && !cfg.Report.Clipboard.Enabled() {
		return nil, fmt.Errorf("report.clipboard_cmd must not be empty when report.clipboard_enable=true")
	}

	if listen := strings.TrimSpace(cfg.Metrics.Listen); listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			return nil, fmt.Errorf("metrics.listen must be host:port: %w", err)
		}
	}

	return warnings, nil
}
