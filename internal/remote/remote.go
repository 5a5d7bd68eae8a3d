// Package remote talks to the interview backend that generates questions and
// grades answer batches, over HTTP/JSON or gRPC.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/session"
)

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"

	// DefaultResumeHint accompanies résumé-driven questions, which the
	// backend returns without hints.
	DefaultResumeHint = "Answer confidently and back it with concrete examples."

	resumeJobDescription = "general"
	defaultTimeout       = 60 * time.Second
)

// ErrMalformed reports a reply that does not decode into the expected shape.
var ErrMalformed = errors.New("malformed backend reply")

// StatusError is a non-success reply from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Message)
}

// Config selects and configures the transport.
type Config struct {
	Transport   string
	BaseURL     string
	GRPCAddress string
	Timeout     time.Duration
	Token       string
	ResumeHint  string
	HTTPClient  *http.Client
}

// ConfigFrom maps backend settings. The bearer token is read from the
// environment variable named by TokenEnv.
func ConfigFrom(cfg config.BackendConfig) Config {
	out := Config{
		Transport:   cfg.Transport,
		BaseURL:     cfg.URL,
		GRPCAddress: cfg.GRPCAddress,
		Timeout:     time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
	if name := strings.TrimSpace(cfg.TokenEnv); name != "" {
		out.Token = strings.TrimSpace(os.Getenv(name))
	}
	return out
}

type operation struct {
	name   string
	method string
	path   string
	rpc    string
}

var (
	opInfoQuestions   = operation{name: "info_questions", method: http.MethodPost, path: "/mock-interview/questions", rpc: "GenerateQuestions"}
	opResumeQuestions = operation{name: "resume_questions", method: http.MethodPost, path: "/resume/interview-questions", rpc: "GenerateResumeQuestions"}
	opSubmit          = operation{name: "submit", method: http.MethodPost, path: "/mock-interview/submit", rpc: "SubmitAnswers"}
)

type transport interface {
	roundTrip(ctx context.Context, op operation, body []byte) ([]byte, error)
	health(ctx context.Context) error
	close() error
}

// Client implements the question source and the bulk evaluator.
type Client struct {
	logger     *slog.Logger
	transport  transport
	timeout    time.Duration
	resumeHint string
}

// New builds a client for cfg.Transport.
func New(ctx context.Context, logger *slog.Logger, cfg Config) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.ResumeHint) == "" {
		cfg.ResumeHint = DefaultResumeHint
	}

	var (
		t   transport
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", TransportHTTP:
		t, err = newHTTPTransport(cfg)
	case TransportGRPC:
		t, err = newGRPCTransport(ctx, cfg)
	default:
		err = fmt.Errorf("unknown backend transport %q", cfg.Transport)
	}
	if err != nil {
		return nil, err
	}

	return &Client{
		logger:     logger,
		transport:  t,
		timeout:    cfg.Timeout,
		resumeHint: cfg.ResumeHint,
	}, nil
}

type infoQuestion struct {
	QuestionID   int    `json:"questionId"`
	QuestionText string `json:"questionText"`
	Hint         string `json:"hint"`
}

// InfoQuestions generates questions for a role.
func (c *Client) InfoQuestions(ctx context.Context, info session.InterviewInfo) ([]session.Question, error) {
	var reply []infoQuestion
	if err := c.call(ctx, opInfoQuestions, info, &reply); err != nil {
		return nil, err
	}

	questions := make([]session.Question, 0, len(reply))
	for _, q := range reply {
		if text := strings.TrimSpace(q.QuestionText); text != "" {
			questions = append(questions, session.Question{Text: text, Hint: strings.TrimSpace(q.Hint)})
		}
	}
	return nonEmpty(questions)
}

type resumeRequest struct {
	JobDescription string `json:"jobDescription"`
	ResumeText     string `json:"resumeText"`
}

type resumeReply struct {
	Data []struct {
		ID       int    `json:"id"`
		Question string `json:"question"`
	} `json:"data"`
}

// ResumeQuestions generates general questions grounded on a résumé.
func (c *Client) ResumeQuestions(ctx context.Context, resumeText string) ([]session.Question, error) {
	var reply resumeReply
	req := resumeRequest{JobDescription: resumeJobDescription, ResumeText: resumeText}
	if err := c.call(ctx, opResumeQuestions, req, &reply); err != nil {
		return nil, err
	}

	questions := make([]session.Question, 0, len(reply.Data))
	for _, q := range reply.Data {
		if text := strings.TrimSpace(q.Question); text != "" {
			questions = append(questions, session.Question{Text: text, Hint: c.resumeHint})
		}
	}
	return nonEmpty(questions)
}

type submitRequest struct {
	session.InterviewInfo
	Answers []session.AnswerSubmission `json:"answers"`
}

// Evaluate grades an answer batch.
func (c *Client) Evaluate(ctx context.Context, info session.InterviewInfo, answers []session.AnswerSubmission) (session.Evaluation, error) {
	var eval session.Evaluation
	if err := c.call(ctx, opSubmit, submitRequest{InterviewInfo: info, Answers: answers}, &eval); err != nil {
		return session.Evaluation{}, err
	}
	return eval, nil
}

// Health probes backend readiness.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.transport.health(ctx)
}

// Close releases the transport.
func (c *Client) Close() error {
	return c.transport.close()
}

func (c *Client) call(ctx context.Context, op operation, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op.name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	raw, err := c.transport.roundTrip(ctx, op, body)
	if err != nil {
		c.logger.Warn("backend call failed", "op", op.name, "duration_ms", time.Since(started).Milliseconds(), "error", err)
		return fmt.Errorf("%s: %w", op.name, err)
	}
	c.logger.Debug("backend call", "op", op.name, "duration_ms", time.Since(started).Milliseconds(), "bytes", len(raw))

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w: %v", op.name, ErrMalformed, err)
	}
	return nil
}

func nonEmpty(questions []session.Question) ([]session.Question, error) {
	if len(questions) == 0 {
		return nil, session.ErrNoQuestions
	}
	return questions, nil
}
