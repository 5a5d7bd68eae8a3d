// Package audio discovers Pulse input sources and streams microphone PCM for
// answer dictation.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// SampleRate is the capture rate expected by the speech stream.
	SampleRate = 16000
	// ChunkBytes is 20ms of 16kHz mono s16 audio.
	ChunkBytes = 640

	clientName = "rehearse"
	mediaName  = "rehearse answer"
)

var (
	// ErrNoDevices is returned when Pulse reports no input sources.
	ErrNoDevices = errors.New("no audio input devices found")
	// ErrMuted is returned when every candidate source is muted.
	ErrMuted = errors.New("audio source is muted")
)

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Usable reports whether the device can be recorded from.
func (d Device) Usable() bool {
	return d.Available && !d.Muted
}

// Label is the human-readable name used in logs and diagnostics.
func (d Device) Label() string {
	switch {
	case d.Description != "" && d.ID != "":
		return fmt.Sprintf("%s (%s)", d.Description, d.ID)
	case d.Description != "":
		return d.Description
	default:
		return d.ID
	}
}

// Preference is the configured input and fallback search terms. An empty
// term or "default" means the Pulse default source.
type Preference struct {
	Input    string
	Fallback string
}

// Selection is the resolved capture source.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func connect() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(clientName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns the Pulse input sources.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := connect()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	def, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var reply pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &reply); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(reply))
	for _, info := range reply {
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          info.SourceName,
			Description: info.Device,
			State:       sourceStateString(info.State),
			Available:   sourceAvailable(info),
			Muted:       info.Mute,
			Default:     info.SourceName == def.ID(),
		})
	}
	return devices, nil
}

// SelectDevice lists live devices and applies the preference to them.
func SelectDevice(ctx context.Context, pref Preference) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return Select(devices, pref)
}

// Select picks the preferred input when it is usable, otherwise the fallback.
func Select(devices []Device, pref Preference) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, ErrNoDevices
	}

	primary, err := lookup(devices, pref.Input, "audio.input")
	if err != nil {
		return Selection{}, err
	}
	if primary.Usable() {
		return Selection{Device: primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	fallback, err := lookup(devices, pref.Fallback, "audio.fallback")
	if err != nil {
		return Selection{}, fmt.Errorf("input %q is %s and no usable fallback: %w", primary.ID, reason, err)
	}
	switch {
	case fallback.Muted:
		return Selection{}, fmt.Errorf("input %q is %s and fallback %q: %w", primary.ID, reason, fallback.ID, ErrMuted)
	case !fallback.Available:
		return Selection{}, fmt.Errorf("input %q is %s and fallback %q is unavailable", primary.ID, reason, fallback.ID)
	}

	return Selection{
		Device:   fallback,
		Warning:  fmt.Sprintf("audio.input %q is %s; using %q", primary.ID, reason, fallback.ID),
		Fallback: fallback.ID != primary.ID,
	}, nil
}

func lookup(devices []Device, term string, key string) (Device, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" || term == "default" {
		for _, dev := range devices {
			if dev.Default {
				return dev, nil
			}
		}
		return Device{}, errors.New("default audio source is unavailable")
	}
	for _, dev := range devices {
		if deviceMatches(dev, term) {
			return dev, nil
		}
	}
	return Device{}, fmt.Errorf("%s %q did not match any device", key, term)
}

// deviceMatches is a case-insensitive substring match on id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

// Capture streams fixed-size PCM chunks from one Pulse source.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte
	done   chan struct{}

	mu      sync.Mutex
	pending []byte
	stopped bool
	writers sync.WaitGroup

	bytes atomic.Int64
	peak  atomic.Int32
}

// StartCapture opens a 16kHz mono s16 record stream on device. The capture
// stops when ctx ends.
func StartCapture(ctx context.Context, device Device) (*Capture, error) {
	client, err := connect()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", device.ID, err)
	}

	c := newCapture(device)
	c.client = client

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(c.write), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(ChunkBytes),
		pulse.RecordMediaName(mediaName),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	c.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Stop()
		case <-c.done:
		}
	}()
	return c, nil
}

func newCapture(device Device) *Capture {
	return &Capture{
		device: device,
		chunks: make(chan []byte, 128),
		done:   make(chan struct{}),
	}
}

// Device returns the source being recorded.
func (c *Capture) Device() Device {
	return c.device
}

// Chunks delivers PCM in ChunkBytes slices. The final slice may be shorter.
// The channel is closed by Stop.
func (c *Capture) Chunks() <-chan []byte {
	return c.chunks
}

// BytesCaptured is the total PCM accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Peak is the loudest absolute sample seen so far, scaled to 0..1.
func (c *Capture) Peak() float64 {
	return float64(c.peak.Load()) / 32768
}

// Stop ends the stream, flushes the partial chunk and closes Chunks. It is
// safe to call more than once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.done)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}
	c.writers.Wait()

	c.mu.Lock()
	tail := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(tail) > 0 {
		select {
		case c.chunks <- tail:
		default:
		}
	}
	close(c.chunks)
	return nil
}

// Close is Stop without the error.
func (c *Capture) Close() {
	_ = c.Stop()
}

func (c *Capture) write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	c.writers.Add(1)
	defer c.writers.Done()

	c.pending = append(c.pending, buf...)
	var ready [][]byte
	for len(c.pending) >= ChunkBytes {
		chunk := make([]byte, ChunkBytes)
		copy(chunk, c.pending)
		c.pending = c.pending[ChunkBytes:]
		ready = append(ready, chunk)
	}
	c.mu.Unlock()

	c.bytes.Add(int64(len(buf)))
	c.trackPeak(buf)

	for _, chunk := range ready {
		select {
		case c.chunks <- chunk:
		case <-c.done:
			return 0, io.EOF
		}
	}
	return len(buf), nil
}

func (c *Capture) trackPeak(buf []byte) {
	var loudest int32
	for i := 0; i+1 < len(buf); i += 2 {
		v := int32(int16(binary.LittleEndian.Uint16(buf[i:])))
		if v < 0 {
			v = -v
		}
		if v > loudest {
			loudest = v
		}
	}
	for {
		cur := c.peak.Load()
		if loudest <= cur || c.peak.CompareAndSwap(cur, loudest) {
			return
		}
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable reads the active port's availability. Pulse encodes
// unknown=0, no=1, yes=2.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			return port.Available != 1
		}
	}
	return true
}
