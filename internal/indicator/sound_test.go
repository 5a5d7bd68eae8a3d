package indicator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/rehearse/internal/config"
)

func TestEveryCueHasBuiltInPhrase(t *testing.T) {
	for _, kind := range []cueKind{cueListen, cueMute, cueAnswered, cueResults, cueProblem} {
		require.NotEmpty(t, cuePCM(kind), "cue %d", kind)
	}
	require.Nil(t, cuePCM(cueKind(99)))
	require.Empty(t, cuePath(cueKind(99), config.IndicatorConfig{SoundStartFile: "/x.wav"}))
}

func TestProblemCueOutlastsListenCue(t *testing.T) {
	require.Greater(t, len(cuePCM(cueProblem)), len(cuePCM(cueListen)))
}

func TestAnsweredCueDiffersFromListenCue(t *testing.T) {
	require.NotEqual(t, cuePCM(cueListen), cuePCM(cueAnswered))
}

func TestRenderNoteLengthAndFadeIn(t *testing.T) {
	got := renderNote(note{hz: 440, dur: 100 * time.Millisecond, gain: 0.2})
	require.Len(t, got, sampleCount(100*time.Millisecond))
	require.Zero(t, got[0])
	require.Zero(t, got[len(got)-1])
}

func TestRenderNoteRejectsSilentNotes(t *testing.T) {
	tests := []struct {
		name string
		note note
	}{
		{name: "no pitch", note: note{hz: 0, dur: 100 * time.Millisecond, gain: 0.2}},
		{name: "no duration", note: note{hz: 440, gain: 0.2}},
		{name: "no gain", note: note{hz: 440, dur: 100 * time.Millisecond}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Empty(t, renderNote(tc.note))
		})
	}
}

func TestRenderPhraseSeparatesNotes(t *testing.T) {
	got := renderPhrase([]note{tone(440, 50), tone(440, 50)})
	want := 2*sampleCount(50*time.Millisecond) + sampleCount(noteGap)
	require.Len(t, got, want)
	require.Nil(t, renderPhrase(nil))
}

func TestEnvelope(t *testing.T) {
	require.Zero(t, envelope(0, 100, 10))
	require.InDelta(t, 0.5, envelope(5, 100, 10), 1e-9)
	require.Equal(t, 1.0, envelope(50, 100, 10))
	require.Zero(t, envelope(99, 100, 10))
}

func TestSampleCount(t *testing.T) {
	require.Equal(t, 0, sampleCount(0))
	require.Equal(t, 400, sampleCount(25*time.Millisecond))
}

func TestCuePathResolvesHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := config.IndicatorConfig{
		SoundStartFile:    "~/cues/start.wav",
		SoundAnsweredFile: " ~/cues/next.wav ",
		SoundErrorFile:    "/abs/error.wav",
	}
	require.Equal(t, filepath.Join(home, "cues", "start.wav"), cuePath(cueListen, cfg))
	require.Equal(t, filepath.Join(home, "cues", "next.wav"), cuePath(cueAnswered, cfg))
	require.Equal(t, "/abs/error.wav", cuePath(cueProblem, cfg))
	require.Empty(t, cuePath(cueMute, cfg))
	require.Equal(t, home, resolveCueFile("~"))
	require.Equal(t, "~user/cue.wav", resolveCueFile("~user/cue.wav"))
}

func TestPlayCueFileMissing(t *testing.T) {
	err := playFile(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "stat cue file")
}

func installPwPlayStub(t *testing.T) (dir string, argsFile string) {
	t.Helper()
	dir = t.TempDir()
	argsFile = filepath.Join(dir, "args.log")
	t.Setenv("PW_ARGS_FILE", argsFile)
	script := "#!/usr/bin/env bash\nprintf '%s\\n' \"$*\" > \"${PW_ARGS_FILE}\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pw-play"), []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
	return dir, argsFile
}

func TestPlayCueFileUsesPwPlay(t *testing.T) {
	dir, argsFile := installPwPlayStub(t)

	cue := filepath.Join(dir, "start.wav")
	require.NoError(t, os.WriteFile(cue, []byte("RIFF"), 0o600))

	require.NoError(t, playFile(cue))
	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Equal(t, "--media-role Notification "+cue+"\n", string(data))
}

func TestNotifierPlaysAnsweredCueFile(t *testing.T) {
	dir, argsFile := installPwPlayStub(t)
	cue := filepath.Join(dir, "answered.wav")
	require.NoError(t, os.WriteFile(cue, []byte("RIFF"), 0o600))

	cfg := quietConfig()
	cfg.SoundEnable = true
	cfg.SoundAnsweredFile = cue
	notify := New(cfg, nil)
	notify.CueAnswered(context.Background())
	notify.Wait()

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Equal(t, "--media-role Notification "+cue+"\n", string(data))
}
