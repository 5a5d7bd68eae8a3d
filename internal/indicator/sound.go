package indicator

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/rbright/rehearse/internal/config"
)

// cueKind names the interview moment a sound marks.
type cueKind int

const (
	cueListen cueKind = iota + 1
	cueMute
	cueAnswered
	cueResults
	cueProblem
)

const (
	cueSampleRate = 16000
	noteGap       = 22 * time.Millisecond
	noteRamp      = 5 * time.Millisecond
	filePlayLimit = 4 * time.Second
)

// note is one sine tone of a cue phrase.
type note struct {
	hz   float64
	dur  time.Duration
	gain float64
}

func tone(hz float64, ms int) note {
	return note{hz: hz, dur: time.Duration(ms) * time.Millisecond, gain: 0.18}
}

// cueSound pairs the user-configured file for a cue with its built-in phrase.
type cueSound struct {
	file   func(config.IndicatorConfig) string
	phrase []note
	pcm    func() []int16
}

var cueTable = map[cueKind]*cueSound{
	// rising pair: the microphone is open
	cueListen: {
		file:   func(c config.IndicatorConfig) string { return c.SoundStartFile },
		phrase: []note{tone(880, 70), tone(1175, 70)},
	},
	cueMute: {
		file:   func(c config.IndicatorConfig) string { return c.SoundStopFile },
		phrase: []note{tone(620, 120)},
	},
	cueAnswered: {
		file:   func(c config.IndicatorConfig) string { return c.SoundAnsweredFile },
		phrase: []note{tone(660, 60), tone(880, 60)},
	},
	// major arpeggio: results are in
	cueResults: {
		file:   func(c config.IndicatorConfig) string { return c.SoundCompleteFile },
		phrase: []note{tone(740, 65), tone(988, 90), tone(1245, 110)},
	},
	cueProblem: {
		file: func(c config.IndicatorConfig) string { return c.SoundErrorFile },
		phrase: []note{
			{hz: 480, dur: 90 * time.Millisecond, gain: 0.2},
			{hz: 360, dur: 90 * time.Millisecond, gain: 0.2},
			{hz: 300, dur: 120 * time.Millisecond, gain: 0.2},
		},
	},
}

func init() {
	for _, sound := range cueTable {
		sound.pcm = sync.OnceValue(func() []int16 { return renderPhrase(sound.phrase) })
	}
}

// emitCue prefers the configured file and falls back to the built-in phrase.
func emitCue(kind cueKind, cfg config.IndicatorConfig) error {
	if path := cuePath(kind, cfg); path != "" {
		if err := playFile(path); err == nil {
			return nil
		}
	}
	pcm := cuePCM(kind)
	if len(pcm) == 0 {
		return nil
	}
	return playPCM(pcm)
}

func cuePath(kind cueKind, cfg config.IndicatorConfig) string {
	sound, ok := cueTable[kind]
	if !ok {
		return ""
	}
	return resolveCueFile(sound.file(cfg))
}

func cuePCM(kind cueKind) []int16 {
	sound, ok := cueTable[kind]
	if !ok {
		return nil
	}
	return sound.pcm()
}

// resolveCueFile expands a leading ~ against the home directory.
func resolveCueFile(raw string) string {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, "~")
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, rest)
}

// playFile hands a sound file to pw-play with the notification media role.
func playFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), filePlayLimit)
	defer cancel()

	if err := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path).Run(); err != nil {
		return fmt.Errorf("play cue file %q: %w", path, err)
	}
	return nil
}

func playPCM(pcm []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("rehearse"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	rest := pcm
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		copied := copy(buf, rest)
		rest = rest[copied:]
		if len(rest) == 0 {
			return copied, pulse.EndOfData
		}
		return copied, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("rehearse interview cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

// renderPhrase concatenates notes separated by short silences.
func renderPhrase(phrase []note) []int16 {
	if len(phrase) == 0 {
		return nil
	}
	gap := sampleCount(noteGap)
	var pcm []int16
	for i, nt := range phrase {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, renderNote(nt)...)
	}
	return pcm
}

func renderNote(nt note) []int16 {
	total := sampleCount(nt.dur)
	if total <= 0 || nt.hz <= 0 || nt.gain <= 0 {
		return nil
	}
	ramp := min(max(total/10, 1), sampleCount(noteRamp))

	pcm := make([]int16, total)
	for i := range pcm {
		t := float64(i) / cueSampleRate
		amp := nt.gain * envelope(i, total, ramp)
		pcm[i] = int16(math.Round(math.Sin(2*math.Pi*nt.hz*t) * amp * math.MaxInt16))
	}
	return pcm
}

// envelope ramps linearly in and out over ramp samples.
func envelope(i, total, ramp int) float64 {
	edge := min(i, total-1-i)
	if edge >= ramp {
		return 1
	}
	return float64(edge) / float64(ramp)
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
