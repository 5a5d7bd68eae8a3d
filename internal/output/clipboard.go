// Package output exports finished session reports to disk and the clipboard.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/config"
)

// Committer applies report export side effects (report file + optional clipboard).
type Committer struct {
	config config.ReportConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewCommitter constructs a report committer from runtime config.
func NewCommitter(cfg config.ReportConfig, logger *slog.Logger) *Committer {
	return &Committer{config: cfg, logger: logger, now: time.Now}
}

// Commit saves the report and copies it to the clipboard when enabled. A
// clipboard failure does not undo a saved file.
func (c *Committer) Commit(ctx context.Context, report string) error {
	if strings.TrimSpace(report) == "" {
		return nil
	}

	var errs []error
	if c.config.Save {
		path, err := saveReport(c.config.Dir, c.now(), report)
		if err != nil {
			errs = append(errs, err)
		} else if c.logger != nil {
			c.logger.Info("report saved", "path", path)
		}
	}

	if c.config.ClipboardEnable {
		clipboardCtx, clipboardCancel := context.WithTimeout(ctx, 2*time.Second)
		defer clipboardCancel()
		if err := runCommandWithInput(clipboardCtx, c.config.Clipboard.Argv, report); err != nil {
			errs = append(errs, fmt.Errorf("set clipboard: %w", err))
		}
	}

	return errors.Join(errs...)
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
