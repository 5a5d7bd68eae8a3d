package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Backend   *jsoncBackend   `json:"backend"`
	Speech    *jsoncSpeech    `json:"speech"`
	Audio     *jsoncAudio     `json:"audio"`
	Interview *jsoncInterview `json:"interview"`
	Indicator *jsoncIndicator `json:"indicator"`
	Report    *jsoncReport    `json:"report"`
	Metrics   *jsoncMetrics   `json:"metrics"`
	Debug     *jsoncDebug     `json:"debug"`
}

type jsoncBackend struct {
	Transport   *string `json:"transport"`
	URL         *string `json:"url"`
	GRPCAddress *string `json:"grpc_address"`
	TimeoutMS   *int    `json:"timeout_ms"`
	TokenEnv    *string `json:"token_env"`
}

type jsoncSpeech struct {
	Enable            *bool   `json:"enable"`
	Endpoint          *string `json:"endpoint"`
	Model             *string `json:"model"`
	Language          *string `json:"language"`
	Continuous        *bool   `json:"continuous"`
	InterimResults    *bool   `json:"interim_results"`
	MaxAlternatives   *int    `json:"max_alternatives"`
	APIKeyEnv         *string `json:"api_key_env"`
	NoSpeechTimeoutMS *int    `json:"no_speech_timeout_ms"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncInterview struct {
	PreRollMS     *int    `json:"preroll_ms"`
	QuestionBank  *string `json:"question_bank"`
	ResumeContext *string `json:"resume_context"`
}

type jsoncIndicator struct {
	Enable            *bool   `json:"enable"`
	Backend           *string `json:"backend"`
	DesktopAppName    *string `json:"desktop_app_name"`
	SoundEnable       *bool   `json:"sound_enable"`
	SoundStartFile    *string `json:"sound_start_file"`
	SoundStopFile     *string `json:"sound_stop_file"`
	SoundAnsweredFile *string `json:"sound_answered_file"`
	SoundCompleteFile *string `json:"sound_complete_file"`
	SoundErrorFile    *string `json:"sound_error_file"`
	ErrorTimeoutMS    *int    `json:"error_timeout_ms"`
}

type jsoncReport struct {
	Save            *bool   `json:"save"`
	Dir             *string `json:"dir"`
	ClipboardEnable *bool   `json:"clipboard_enable"`
	ClipboardCmd    *string `json:"clipboard_cmd"`
}

type jsoncMetrics struct {
	Listen *string `json:"listen"`
}

type jsoncDebug struct {
	StreamDump *bool `json:"stream_dump"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if b := payload.Backend; b != nil {
		setString(&cfg.Backend.Transport, b.Transport)
		setString(&cfg.Backend.URL, b.URL)
		setString(&cfg.Backend.GRPCAddress, b.GRPCAddress)
		setInt(&cfg.Backend.TimeoutMS, b.TimeoutMS)
		setString(&cfg.Backend.TokenEnv, b.TokenEnv)
		cfg.Backend.Transport = strings.ToLower(cfg.Backend.Transport)
	}

	if s := payload.Speech; s != nil {
		setBool(&cfg.Speech.Enable, s.Enable)
		setString(&cfg.Speech.Endpoint, s.Endpoint)
		setString(&cfg.Speech.Model, s.Model)
		setString(&cfg.Speech.Language, s.Language)
		setBool(&cfg.Speech.Continuous, s.Continuous)
		setBool(&cfg.Speech.InterimResults, s.InterimResults)
		setInt(&cfg.Speech.MaxAlternatives, s.MaxAlternatives)
		setString(&cfg.Speech.APIKeyEnv, s.APIKeyEnv)
		setInt(&cfg.Speech.NoSpeechTimeoutMS, s.NoSpeechTimeoutMS)
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
	}

	if i := payload.Interview; i != nil {
		setInt(&cfg.Interview.PreRollMS, i.PreRollMS)
		setString(&cfg.Interview.QuestionBank, i.QuestionBank)
		setString(&cfg.Interview.ResumeContext, i.ResumeContext)
	}

	if ind := payload.Indicator; ind != nil {
		setBool(&cfg.Indicator.Enable, ind.Enable)
		setString(&cfg.Indicator.Backend, ind.Backend)
		setString(&cfg.Indicator.DesktopAppName, ind.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, ind.SoundEnable)
		setString(&cfg.Indicator.SoundStartFile, ind.SoundStartFile)
		setString(&cfg.Indicator.SoundStopFile, ind.SoundStopFile)
		setString(&cfg.Indicator.SoundAnsweredFile, ind.SoundAnsweredFile)
		setString(&cfg.Indicator.SoundCompleteFile, ind.SoundCompleteFile)
		setString(&cfg.Indicator.SoundErrorFile, ind.SoundErrorFile)
		setInt(&cfg.Indicator.ErrorTimeoutMS, ind.ErrorTimeoutMS)
	}

	if r := payload.Report; r != nil {
		setBool(&cfg.Report.Save, r.Save)
		setString(&cfg.Report.Dir, r.Dir)
		setBool(&cfg.Report.ClipboardEnable, r.ClipboardEnable)
		if r.ClipboardCmd != nil {
			cmd, err := ParseCommand(*r.ClipboardCmd)
			if err != nil {
				return fmt.Errorf("invalid report.clipboard_cmd: %w", err)
			}
			cfg.Report.Clipboard = cmd
		}
	}

	if m := payload.Metrics; m != nil {
		setString(&cfg.Metrics.Listen, m.Listen)
	}

	if d := payload.Debug; d != nil {
		setBool(&cfg.Debug.StreamDump, d.StreamDump)
	}

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
