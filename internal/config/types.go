// Package config resolves, parses, validates, and defaults rehearse configuration.
package config

// Config is the fully materialized runtime configuration used by rehearse.
type Config struct {
	Backend   BackendConfig
	Speech    SpeechConfig
	Audio     AudioConfig
	Interview InterviewConfig
	Indicator IndicatorConfig
	Report    ReportConfig
	Metrics   MetricsConfig
	Debug     DebugConfig
}

// BackendConfig selects the interview backend transport.
type BackendConfig struct {
	// Transport is http, grpc, or none. With none, questions come from the
	// local question bank and answers cannot be evaluated.
	Transport   string
	URL         string
	GRPCAddress string
	TimeoutMS   int
	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string
}

// SpeechConfig controls microphone transcription.
type SpeechConfig struct {
	Enable            bool
	Endpoint          string
	Model             string
	Language          string
	Continuous        bool
	InterimResults    bool
	MaxAlternatives   int
	APIKeyEnv         string
	NoSpeechTimeoutMS int
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// InterviewConfig tunes session pacing and question sources.
type InterviewConfig struct {
	PreRollMS    int
	QuestionBank string
	// ResumeContext is the résumé sections file. Empty means the default
	// data path.
	ResumeContext string
}

// IndicatorConfig controls desktop notification and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool
	Backend           string
	DesktopAppName    string
	SoundEnable       bool
	SoundStartFile    string
	SoundStopFile     string
	SoundAnsweredFile string
	SoundCompleteFile string
	SoundErrorFile    string
	ErrorTimeoutMS    int
}

// ReportConfig controls export of the finished session report.
type ReportConfig struct {
	// Save writes each report under Dir, or the state directory when Dir
	// is empty.
	Save            bool
	Dir             string
	ClipboardEnable bool
	Clipboard       CommandConfig
}

// MetricsConfig controls the Prometheus scrape endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	StreamDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
