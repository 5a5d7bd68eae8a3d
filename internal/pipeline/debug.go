package pipeline

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/deepgram"
)

// dump records one segment's audio as WAV and its results as JSONL when
// debug.stream_dump is enabled. A nil dump is a no-op.
type dump struct {
	r       *Recognizer
	pcm     []byte
	results *os.File
	enc     *json.Encoder
	started time.Time
}

type dumpLine struct {
	At          int64  `json:"at_ms"`
	Text        string `json:"text"`
	Final       bool   `json:"final"`
	SpeechFinal bool   `json:"speech_final,omitempty"`
}

func (r *Recognizer) newDump() *dump {
	if !r.cfg.DebugDump {
		return nil
	}
	file, err := createDebugFile("stream", "jsonl")
	if err != nil {
		r.logger.Warn("unable to create debug stream dump", "error", err)
		return nil
	}
	return &dump{r: r, results: file, enc: json.NewEncoder(file), started: time.Now()}
}

func (d *dump) audio(chunk []byte) {
	if d == nil {
		return
	}
	d.pcm = append(d.pcm, chunk...)
}

func (d *dump) result(res deepgram.Result) {
	if d == nil {
		return
	}
	_ = d.enc.Encode(dumpLine{
		At:          time.Since(d.started).Milliseconds(),
		Text:        res.Text,
		Final:       res.Final,
		SpeechFinal: res.SpeechFinal,
	})
}

func (d *dump) close() {
	if d == nil {
		return
	}
	_ = d.results.Close()
	if len(d.pcm) == 0 {
		return
	}

	file, err := createDebugFile("audio", "wav")
	if err != nil {
		d.r.logger.Warn("unable to create debug audio dump", "error", err)
		return
	}
	defer file.Close()
	if err := writePCM16WAV(file, d.pcm, audio.SampleRate, 1); err != nil {
		d.r.logger.Warn("unable to write debug audio dump", "error", err)
	}
}

// createDebugFile creates a timestamped artifact under state/rehearse/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(stateDir, "rehearse", "debug")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.%s", prefix, time.Now().Format("20060102-150405.000"), extension)
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}

// writePCM16WAV writes little-endian PCM behind a canonical 44-byte header.
func writePCM16WAV(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, 44)
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+len(pcm)))
	copy(header[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1)
	binary.LittleEndian.PutUint16(header[22:], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(header[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:], bitsPerSample)
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
