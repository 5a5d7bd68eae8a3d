package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	healthPath   = "/resume/health"
	maxReplySize = 4 << 20
)

type httpTransport struct {
	base   *url.URL
	client *http.Client
	token  string
}

func newHTTPTransport(cfg Config) (*httpTransport, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("backend url is empty")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must be http or https", raw)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &httpTransport{base: base, client: client, token: cfg.Token}, nil
}

func (t *httpTransport) roundTrip(ctx context.Context, op operation, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, op.method, t.endpoint(op.path), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, reply)
	}
	return reply, nil
}

func (t *httpTransport) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint(healthPath), nil)
	if err != nil {
		return err
	}
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplySize))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health: %w", &StatusError{Code: resp.StatusCode})
	}
	return nil
}

func (t *httpTransport) close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *httpTransport) endpoint(path string) string {
	u := *t.base
	u.Path = u.Path + path
	return u.String()
}

func (t *httpTransport) authorize(req *http.Request) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
}

func statusError(code int, body []byte) *StatusError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Message != "":
			msg = payload.Message
		}
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &StatusError{Code: code, Message: msg}
}
