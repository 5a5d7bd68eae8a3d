package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestBuildURL(t *testing.T) {
	client, err := New(Config{APIKey: "key"})
	require.NoError(t, err)

	raw, err := client.buildURL(StreamOptions{Language: "vi", InterimResults: true, Alternatives: 1})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "api.deepgram.com", u.Host)

	q := u.Query()
	require.Equal(t, DefaultModel, q.Get("model"))
	require.Equal(t, "vi", q.Get("language"))
	require.Equal(t, "true", q.Get("interim_results"))
	require.Equal(t, "linear16", q.Get("encoding"))
	require.Equal(t, "16000", q.Get("sample_rate"))
	require.Equal(t, "1", q.Get("channels"))
	require.Empty(t, q.Get("alternatives"))

	raw, err = client.buildURL(StreamOptions{Alternatives: 3})
	require.NoError(t, err)
	u, err = url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "3", u.Query().Get("alternatives"))
	require.Equal(t, "false", u.Query().Get("interim_results"))
	require.False(t, u.Query().Has("language"))
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Result
		ok   bool
	}{
		{
			name: "final",
			raw:  `{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"xin chào","confidence":0.9}]}}`,
			want: Result{Text: "xin chào", Final: true, SpeechFinal: true},
			ok:   true,
		},
		{
			name: "interim",
			raw:  `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"xin"}]}}`,
			want: Result{Text: "xin"},
			ok:   true,
		},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "no alternatives", raw: `{"type":"Results","channel":{"alternatives":[]}}`},
		{name: "garbage", raw: `not json`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseResponse([]byte(tc.raw))
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

// echoServer answers each audio chunk with an interim then a final result
// and closes normally after CloseStream.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText {
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"flushed"}]}}`))
				_ = conn.Close(websocket.StatusNormalClosure, "done")
				return
			}
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata"}`))
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"chunk"}]}}`))
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"chunk `+string(msg)+`"}]}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamRoundTrip(t *testing.T) {
	srv := echoServer(t)
	client, err := New(Config{APIKey: "secret", Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Open(ctx, StreamOptions{Language: "vi", InterimResults: true})
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.Send(ctx, []byte("one")))
	require.Equal(t, Result{Text: "chunk"}, <-stream.Results())
	require.Equal(t, Result{Text: "chunk one", Final: true}, <-stream.Results())

	require.NoError(t, stream.CloseSend(ctx))
	require.NoError(t, stream.CloseSend(ctx))
	require.ErrorIs(t, stream.Send(ctx, []byte("late")), ErrStreamClosed)

	require.Equal(t, Result{Text: "flushed", Final: true, SpeechFinal: true}, <-stream.Results())
	_, ok := <-stream.Results()
	require.False(t, ok)
	require.NoError(t, stream.Err())
}

func TestOpenRejectedCarriesStatus(t *testing.T) {
	srv := echoServer(t)
	client, err := New(Config{APIKey: "wrong", Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = client.Open(context.Background(), StreamOptions{})
	var dialErr *DialError
	require.True(t, errors.As(err, &dialErr))
	require.Equal(t, http.StatusUnauthorized, dialErr.StatusCode)
	require.Contains(t, err.Error(), "http 401")
}

func TestOpenUnreachable(t *testing.T) {
	client, err := New(Config{APIKey: "secret", Endpoint: "ws://127.0.0.1:1/v1/listen"})
	require.NoError(t, err)

	_, err = client.Open(context.Background(), StreamOptions{})
	var dialErr *DialError
	require.True(t, errors.As(err, &dialErr))
	require.Zero(t, dialErr.StatusCode)
}

func TestStreamAbnormalCloseSetsErr(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close(websocket.StatusPolicyViolation, "DATA-0000")
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{APIKey: "secret", Endpoint: srv.URL})
	require.NoError(t, err)
	stream, err := client.Open(context.Background(), StreamOptions{})
	require.NoError(t, err)
	defer stream.Close()

	_, ok := <-stream.Results()
	require.False(t, ok)
	require.Error(t, stream.Err())
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(stream.Err()))
}

func TestCloseStopsResults(t *testing.T) {
	srv := echoServer(t)
	client, err := New(Config{APIKey: "secret", Endpoint: srv.URL})
	require.NoError(t, err)

	stream, err := client.Open(context.Background(), StreamOptions{})
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	select {
	case _, ok := <-stream.Results():
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("results not closed")
	}
	require.NoError(t, stream.Err())
	require.ErrorIs(t, stream.Send(context.Background(), []byte("x")), ErrStreamClosed)
}
