package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/indicator"
	"github.com/rbright/rehearse/internal/observe"
	"github.com/rbright/rehearse/internal/output"
	"github.com/rbright/rehearse/internal/pipeline"
	"github.com/rbright/rehearse/internal/questionbank"
	"github.com/rbright/rehearse/internal/remote"
	"github.com/rbright/rehearse/internal/resume"
	"github.com/rbright/rehearse/internal/session"
	"github.com/rbright/rehearse/internal/transcript"
	"github.com/rbright/rehearse/internal/version"
)

// loadDotEnv reads .env files beside the config and in the working
// directory. Variables already set in the environment win.
func loadDotEnv(logger *slog.Logger, configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	for _, path := range candidates {
		if err := godotenv.Load(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("load env file failed", "path", path, "error", err.Error())
			}
			continue
		}
		logger.Debug("loaded env file", "path", path)
	}
}

// resumePath resolves the configured résumé file or the data-dir default.
func resumePath(cfg config.InterviewConfig) (string, error) {
	if path := strings.TrimSpace(cfg.ResumeContext); path != "" {
		return path, nil
	}
	return resume.DefaultPath()
}

// interviewRuntime owns the collaborators of one interview process.
type interviewRuntime struct {
	deps     session.Deps
	opts     session.Options
	notifier *indicator.Notifier
	closers  []func(context.Context) error
}

func newInterviewRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *interviewRuntime, err error) {
	rt := &interviewRuntime{opts: sessionOptions(cfg)}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	if err := rt.wireBackend(ctx, cfg, logger); err != nil {
		return nil, err
	}

	path, err := resumePath(cfg.Interview)
	if err != nil {
		return nil, err
	}
	resumeCtx, err := resume.Load(path)
	if err != nil {
		return nil, err
	}
	rt.deps.Resume = resumeCtx

	rt.deps.Speech = speechCapability(cfg, logger)

	rt.notifier = indicator.New(cfg.Indicator, logger)
	rt.deps.Notifier = rt.notifier
	rt.deps.Committer = output.NewCommitter(cfg.Report, logger)

	recorder, err := rt.wireMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.deps.Recorder = recorder

	return rt, nil
}

// wireBackend selects the remote backend or the offline question bank.
func (rt *interviewRuntime) wireBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if strings.EqualFold(strings.TrimSpace(cfg.Backend.Transport), "none") {
		bank, err := questionbank.Load(cfg.Interview.QuestionBank)
		if err != nil {
			return err
		}
		rt.deps.Questions = bank
		return nil
	}

	client, err := remote.New(ctx, logger, remote.ConfigFrom(cfg.Backend))
	if err != nil {
		return fmt.Errorf("connect backend: %w", err)
	}
	rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
	rt.deps.Questions = client
	rt.deps.Evaluator = client
	return nil
}

// wireMetrics starts the scrape endpoint when metrics.listen is set.
func (rt *interviewRuntime) wireMetrics(ctx context.Context, cfg config.Config, logger *slog.Logger) (*observe.Metrics, error) {
	provider := observe.Disabled()
	if addr := strings.TrimSpace(cfg.Metrics.Listen); addr != "" {
		var err error
		provider, err = observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version.Version})
		if err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		rt.closers = append(rt.closers, provider.Shutdown)

		server, err := observe.StartServer(logger, addr, provider.Handler())
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, server.Shutdown)
	}
	return observe.NewMetrics(provider.MeterProvider)
}

// Close releases collaborators in reverse order of acquisition.
func (rt *interviewRuntime) Close(ctx context.Context) error {
	if rt.notifier != nil {
		rt.notifier.Dismiss(ctx)
		rt.notifier.Wait()
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func speechCapability(cfg config.Config, logger *slog.Logger) transcript.Capability {
	if !cfg.Speech.Enable {
		return transcript.Unsupported{}
	}
	return pipeline.NewCapability(logger, pipeline.Config{
		Enable:          true,
		APIKey:          strings.TrimSpace(os.Getenv(cfg.Speech.APIKeyEnv)),
		Endpoint:        cfg.Speech.Endpoint,
		Model:           cfg.Speech.Model,
		Audio:           audio.Preference{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback},
		NoSpeechTimeout: time.Duration(cfg.Speech.NoSpeechTimeoutMS) * time.Millisecond,
		DebugDump:       cfg.Debug.StreamDump,
	})
}

func sessionOptions(cfg config.Config) session.Options {
	opts := session.DefaultOptions()
	opts.Speech = transcript.Options{
		Language:        cfg.Speech.Language,
		Continuous:      cfg.Speech.Continuous,
		InterimResults:  cfg.Speech.InterimResults,
		MaxAlternatives: cfg.Speech.MaxAlternatives,
	}
	opts.PreRoll = time.Duration(cfg.Interview.PreRollMS) * time.Millisecond
	return opts
}
