package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReportDir resolves the report directory: dir with ~ expanded, else
// $XDG_STATE_HOME/rehearse/reports, else ~/.local/state/rehearse/reports.
func ReportDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir != "" {
		return expandHome(dir)
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "rehearse", "reports"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for reports: %w", err)
	}
	return filepath.Join(home, ".local", "state", "rehearse", "reports"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// saveReport writes report to a timestamped file and returns its path.
// Same-second collisions get a numeric suffix.
func saveReport(dir string, at time.Time, report string) (string, error) {
	resolved, err := ReportDir(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(resolved, 0o700); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	base := "report-" + at.Format("20060102-150405")
	for i := 0; i < 100; i++ {
		name := base + ".txt"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.txt", base, i)
		}
		path := filepath.Join(resolved, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create report: %w", err)
		}
		if _, err := f.WriteString(strings.TrimRight(report, "\n") + "\n"); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("write report: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close report: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("too many reports named %s in %s", base, resolved)
}
