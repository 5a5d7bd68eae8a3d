package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Backend: BackendConfig{
			Transport:   "http",
			URL:         "http://localhost:8080/api",
			GRPCAddress: "127.0.0.1:50051",
			TimeoutMS:   60000,
			TokenEnv:    "REHEARSE_BACKEND_TOKEN",
		},
		Speech: SpeechConfig{
			Enable:            true,
			Endpoint:          "wss://api.deepgram.com/v1/listen",
			Model:             "nova-2",
			Language:          "vi-VN",
			Continuous:        true,
			InterimResults:    true,
			MaxAlternatives:   1,
			APIKeyEnv:         "DEEPGRAM_API_KEY",
			NoSpeechTimeoutMS: 0,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Interview: InterviewConfig{
			PreRollMS: 3000,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "rehearse",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Report: ReportConfig{
			Save:            true,
			ClipboardEnable: false,
			Clipboard:       mustParseCommand(clipboard),
		},
		Metrics: MetricsConfig{},
		Debug:   DebugConfig{},
	}
}
