package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinNormalizesWhitespace(t *testing.T) {
	t.Parallel()

	got := Join(" hello", "world.", "\nfrom", "rehearse")
	require.Equal(t, "hello world. from rehearse", got)
}

func TestJoinSkipsWhitespaceOnlyParts(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hello", Join("  ", "\n\t", "hello", ""))
	require.Empty(t, Join())
}

func TestSplitFragmentsSeparatesFinalAndInterim(t *testing.T) {
	t.Parallel()

	final, interim := splitFragments([]Fragment{
		{Text: "tôi là", Final: true},
		{Text: "kỹ sư", Final: true},
		{Text: "phần", Final: false},
		{Text: "mềm", Final: false},
	})
	require.Equal(t, "tôi là kỹ sư", final)
	require.Equal(t, "phần mềm", interim)
}

func TestErrorCodeMessages(t *testing.T) {
	t.Parallel()

	known := []ErrorCode{
		ErrorNoSpeech,
		ErrorAudioCapture,
		ErrorNotAllowed,
		ErrorNetwork,
		ErrorLanguageNotSupported,
		ErrorServiceNotAllowed,
		ErrorUnsupported,
	}
	seen := map[string]ErrorCode{}
	for _, code := range known {
		msg := code.Message()
		require.NotEmpty(t, msg, code)
		require.True(t, code.Known(), code)
		prev, dup := seen[msg]
		require.False(t, dup, "%s and %s share a message", code, prev)
		seen[msg] = code
	}

	require.Empty(t, ErrorNone.Message())
	require.Equal(t, "Speech recognition error: aborted", ErrorCode("aborted").Message())
	require.Contains(t, ErrorUnknown.Message(), "unknown")
}
