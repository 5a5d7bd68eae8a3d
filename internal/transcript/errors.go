package transcript

import (
	"errors"
	"fmt"
)

// ErrorCode is the fixed vocabulary of recognition failures.
type ErrorCode string

const (
	ErrorNone                 ErrorCode = ""
	ErrorNoSpeech             ErrorCode = "no-speech"
	ErrorAudioCapture         ErrorCode = "audio-capture"
	ErrorNotAllowed           ErrorCode = "not-allowed"
	ErrorNetwork              ErrorCode = "network"
	ErrorLanguageNotSupported ErrorCode = "language-not-supported"
	ErrorServiceNotAllowed    ErrorCode = "service-not-allowed"
	ErrorUnknown              ErrorCode = "unknown"
	ErrorUnsupported          ErrorCode = "unsupported"
)

var (
	// ErrUnsupported is returned by StartListening when no recognizer is available.
	ErrUnsupported = errors.New("speech recognition is not supported on this system")
	// ErrClosed is returned once the reconciler has been torn down.
	ErrClosed = errors.New("transcript reconciler closed")
)

var errorMessages = map[ErrorCode]string{
	ErrorNoSpeech:             "No speech detected. Please try again.",
	ErrorAudioCapture:         "No microphone found or the microphone is not working.",
	ErrorNotAllowed:           "Microphone access was denied.",
	ErrorNetwork:              "Network error during speech recognition.",
	ErrorLanguageNotSupported: "The selected language is not supported.",
	ErrorServiceNotAllowed:    "The speech recognition service is not allowed.",
	ErrorUnsupported:          "Speech recognition is not supported on this system.",
}

// Known reports whether code belongs to the fixed vocabulary.
func (c ErrorCode) Known() bool {
	_, ok := errorMessages[c]
	return ok
}

// Message returns the user-facing text for c.
func (c ErrorCode) Message() string {
	if c == ErrorNone {
		return ""
	}
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("Speech recognition error: %s", string(c))
}

// Error lets an ErrorCode travel as a Go error.
func (c ErrorCode) Error() string {
	return c.Message()
}
