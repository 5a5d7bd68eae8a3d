// Package deepgram streams PCM to the Deepgram live transcription websocket
// and surfaces interim and final results.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/coder/websocket"
)

const (
	// DefaultEndpoint is the hosted live transcription endpoint.
	DefaultEndpoint = "wss://api.deepgram.com/v1/listen"
	// DefaultModel supports vi and en.
	DefaultModel = "nova-2"

	defaultSampleRate = 16000
	closeStreamMsg    = `{"type":"CloseStream"}`
)

var (
	// ErrMissingAPIKey is returned by New without a key.
	ErrMissingAPIKey = errors.New("deepgram: api key must not be empty")
	// ErrStreamClosed is returned by Send after CloseSend or Close.
	ErrStreamClosed = errors.New("deepgram: stream is closed")
)

// Config describes the account and the default request parameters.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	SampleRate int
	HTTPClient *http.Client
}

// StreamOptions are per-stream recognition parameters.
type StreamOptions struct {
	Language       string
	InterimResults bool
	Alternatives   int
}

// Result is one transcript update.
type Result struct {
	Text string
	// Final marks text Deepgram will not revise.
	Final bool
	// SpeechFinal marks the end of an utterance.
	SpeechFinal bool
}

// DialError carries the HTTP status of a rejected websocket upgrade.
type DialError struct {
	StatusCode int
	Err        error
}

func (e *DialError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("deepgram: dial: %v", e.Err)
	}
	return fmt.Sprintf("deepgram: dial: http %d: %v", e.StatusCode, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// Client opens live transcription streams.
type Client struct {
	cfg Config
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	return &Client{cfg: cfg}, nil
}

// Open dials a stream. The returned stream must be closed.
func (c *Client) Open(ctx context.Context, opts StreamOptions) (*Stream, error) {
	target, err := c.buildURL(opts)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build url: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+c.cfg.APIKey)

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: c.cfg.HTTPClient,
	})
	if err != nil {
		dialErr := &DialError{Err: err}
		if resp != nil {
			dialErr.StatusCode = resp.StatusCode
		}
		return nil, dialErr
	}

	s := &Stream{
		conn:    conn,
		results: make(chan Result, 64),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (c *Client) buildURL(opts StreamOptions) (string, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", c.cfg.Model)
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", strconv.FormatBool(opts.InterimResults))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(c.cfg.SampleRate))
	q.Set("channels", "1")
	if opts.Alternatives > 1 {
		q.Set("alternatives", strconv.Itoa(opts.Alternatives))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Stream is one live transcription session.
type Stream struct {
	conn    *websocket.Conn
	results chan Result
	done    chan struct{}

	mu         sync.Mutex
	sendClosed bool
	err        error
	closeOnce  sync.Once
}

// Send writes one PCM chunk.
func (s *Stream) Send(ctx context.Context, chunk []byte) error {
	s.mu.Lock()
	closed := s.sendClosed
	s.mu.Unlock()
	if closed {
		return ErrStreamClosed
	}
	if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
		return fmt.Errorf("deepgram: send audio: %w", err)
	}
	return nil
}

// CloseSend asks Deepgram to flush pending audio. Results keep arriving
// until the server closes the connection.
func (s *Stream) CloseSend(ctx context.Context) error {
	s.mu.Lock()
	if s.sendClosed {
		s.mu.Unlock()
		return nil
	}
	s.sendClosed = true
	s.mu.Unlock()

	if err := s.conn.Write(ctx, websocket.MessageText, []byte(closeStreamMsg)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// Results is closed when the connection ends.
func (s *Stream) Results() <-chan Result {
	return s.results
}

// Err reports why the connection ended. A normal closure is nil.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the connection down without waiting for a flush.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.sendClosed = true
		s.mu.Unlock()
		close(s.done)
		_ = s.conn.Close(websocket.StatusNormalClosure, "closed")
	})
	return nil
}

func (s *Stream) readLoop() {
	defer close(s.results)

	for {
		_, msg, err := s.conn.Read(context.Background())
		if err != nil {
			s.finish(err)
			return
		}

		result, ok := parseResponse(msg)
		if !ok {
			continue
		}
		select {
		case s.results <- result:
		case <-s.done:
			return
		}
	}
}

func (s *Stream) finish(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return
	}
	s.mu.Lock()
	s.err = fmt.Errorf("deepgram: read: %w", err)
	s.mu.Unlock()
}

type response struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResponse keeps Results messages and drops metadata and keepalives.
func parseResponse(data []byte) (Result, bool) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Result{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return Result{}, false
	}
	return Result{
		Text:        resp.Channel.Alternatives[0].Transcript,
		Final:       resp.IsFinal,
		SpeechFinal: resp.SpeechFinal,
	}, true
}
