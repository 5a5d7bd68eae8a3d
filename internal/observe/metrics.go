// Package observe records interview session metrics through OpenTelemetry
// and exposes them for Prometheus scraping.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/rbright/rehearse"

var (
	// Remote calls are dominated by LLM latency on the backend.
	remoteBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}

	answerBuckets = []float64{5, 15, 30, 60, 90, 120, 180, 300, 600}

	scoreBuckets = []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
)

// Metrics holds the session instruments. It implements session.Recorder.
type Metrics struct {
	SessionsStarted  metric.Int64Counter
	SessionsFinished metric.Int64Counter
	AnswersSubmitted metric.Int64Counter
	AnswerDuration   metric.Float64Histogram
	AverageScore     metric.Float64Histogram
	RemoteDuration   metric.Float64Histogram
	RemoteErrors     metric.Int64Counter
	SpeechErrors     metric.Int64Counter
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.SessionsStarted, err = m.Int64Counter("rehearse.sessions.started",
		metric.WithDescription("Interview sessions begun, by question mode."),
	); err != nil {
		return nil, err
	}
	if met.SessionsFinished, err = m.Int64Counter("rehearse.sessions.finished",
		metric.WithDescription("Interview sessions that received an evaluation."),
	); err != nil {
		return nil, err
	}
	if met.AnswersSubmitted, err = m.Int64Counter("rehearse.answers.submitted",
		metric.WithDescription("Answers accepted into the pending batch."),
	); err != nil {
		return nil, err
	}
	if met.AnswerDuration, err = m.Float64Histogram("rehearse.answer.duration",
		metric.WithDescription("Time spent on each submitted answer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(answerBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AverageScore, err = m.Float64Histogram("rehearse.session.average_score",
		metric.WithDescription("Average per-question score of finished sessions."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RemoteDuration, err = m.Float64Histogram("rehearse.remote.duration",
		metric.WithDescription("Latency of backend calls by operation and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(remoteBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RemoteErrors, err = m.Int64Counter("rehearse.remote.errors",
		metric.WithDescription("Failed backend calls by operation."),
	); err != nil {
		return nil, err
	}
	if met.SpeechErrors, err = m.Int64Counter("rehearse.speech.errors",
		metric.WithDescription("Speech recognition errors by code."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) SessionStarted(ctx context.Context, resumeDriven bool) {
	mode := "info"
	if resumeDriven {
		mode = "resume"
	}
	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *Metrics) AnswerSubmitted(ctx context.Context, seconds int) {
	m.AnswersSubmitted.Add(ctx, 1)
	m.AnswerDuration.Record(ctx, float64(seconds))
}

func (m *Metrics) SessionFinished(ctx context.Context, average float64) {
	m.SessionsFinished.Add(ctx, 1)
	m.AverageScore.Record(ctx, average)
}

// RemoteCall records one backend round trip.
func (m *Metrics) RemoteCall(ctx context.Context, op string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RemoteErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
	m.RemoteDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

func (m *Metrics) SpeechError(ctx context.Context, code string) {
	m.SpeechErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}
