package config

import (
	"strings"
	"testing"
)

func TestParseValidConfig(t *testing.T) {
	input := `
{
  // backend served by the interview API
  "backend": {
    "transport": "http",
    "url": "https://interview.example.com/api",
    "timeout_ms": 30000,
  },
  "speech": {
    "language": "en-US",
    "continuous": false,
    "max_alternatives": 2,
    "no_speech_timeout_ms": 8000,
  },
  "audio": {"input": "Elgato"},
  "interview": {"preroll_ms": 0, "question_bank": "~/bank.yaml"},
  "report": {"save": false, "dir": " ~/reports ", "clipboard_enable": true, "clipboard_cmd": "wl-copy --type 'text/plain'"},
  "metrics": {"listen": "127.0.0.1:9464"},
  "debug": {"stream_dump": true},
}
`

	cfg, warnings, err := Parse(input, Default())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %#v", warnings)
	}
	if cfg.Backend.URL != "https://interview.example.com/api" || cfg.Backend.TimeoutMS != 30000 {
		t.Fatalf("unexpected backend: %#v", cfg.Backend)
	}
	if cfg.Speech.Language != "en-US" || cfg.Speech.Continuous || cfg.Speech.MaxAlternatives != 2 {
		t.Fatalf("unexpected speech: %#v", cfg.Speech)
	}
	if !cfg.Speech.InterimResults {
		t.Fatal("expected interim results default to survive")
	}
	if cfg.Audio.Input != "Elgato" || cfg.Audio.Fallback != "default" {
		t.Fatalf("unexpected audio: %#v", cfg.Audio)
	}
	if cfg.Interview.PreRollMS != 0 || cfg.Interview.QuestionBank != "~/bank.yaml" {
		t.Fatalf("unexpected interview: %#v", cfg.Interview)
	}
	if cfg.Report.Save || cfg.Report.Dir != "~/reports" {
		t.Fatalf("unexpected report: %#v", cfg.Report)
	}
	if got := strings.Join(cfg.Report.Clipboard.Argv, "|"); got != "wl-copy|--type|text/plain" {
		t.Fatalf("unexpected clipboard argv: %q", got)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9464" || !cfg.Debug.StreamDump {
		t.Fatalf("unexpected metrics/debug: %#v %#v", cfg.Metrics, cfg.Debug)
	}
}

func TestParseBlankContentReturnsBase(t *testing.T) {
	cfg, _, err := Parse("  \n", Default())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Backend.Transport != "http" {
		t.Fatalf("unexpected transport: %q", cfg.Backend.Transport)
	}
}

func TestParseRejectsNonObject(t *testing.T) {
	_, _, err := Parse(`speech.enable = false`, Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "JSONC object") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseLineNumberOnError(t *testing.T) {
	_, _, err := Parse("{\n\n  \"speech\": {\"enable\": yes}\n}", Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("expected line number in error, got %v", err)
	}
}

func TestParseOfflineTransportWarns(t *testing.T) {
	cfg, warnings, err := Parse(`{
  "backend": {"transport": "none"},
  "interview": {"question_bank": "/tmp/bank.yaml"}
}`, Default())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Backend.Transport != "none" {
		t.Fatalf("unexpected transport: %q", cfg.Backend.Transport)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "cannot be evaluated") {
		t.Fatalf("unexpected warnings: %#v", warnings)
	}
}

func TestParseIndicatorSoundFiles(t *testing.T) {
	cfg, _, err := Parse(`{
  "indicator": {
    "sound_enable": false,
    "sound_start_file": "/tmp/start.wav",
    "sound_stop_file": "/tmp/stop.wav",
    "sound_answered_file": "/tmp/answered.wav",
    "sound_complete_file": "/tmp/complete.wav",
    "sound_error_file": "/tmp/error.wav"
  }
}`, Default())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Indicator.SoundEnable {
		t.Fatal("expected indicator.sound_enable=false")
	}
	if cfg.Indicator.SoundStartFile != "/tmp/start.wav" {
		t.Fatalf("unexpected start file: %q", cfg.Indicator.SoundStartFile)
	}
	if cfg.Indicator.SoundStopFile != "/tmp/stop.wav" {
		t.Fatalf("unexpected stop file: %q", cfg.Indicator.SoundStopFile)
	}
	if cfg.Indicator.SoundAnsweredFile != "/tmp/answered.wav" {
		t.Fatalf("unexpected answered file: %q", cfg.Indicator.SoundAnsweredFile)
	}
	if cfg.Indicator.SoundCompleteFile != "/tmp/complete.wav" {
		t.Fatalf("unexpected complete file: %q", cfg.Indicator.SoundCompleteFile)
	}
	if cfg.Indicator.SoundErrorFile != "/tmp/error.wav" {
		t.Fatalf("unexpected error file: %q", cfg.Indicator.SoundErrorFile)
	}
}
