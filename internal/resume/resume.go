// Package resume persists the uploaded résumé sections that switch sessions
// into résumé-driven mode.
package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Section is one titled block of résumé text.
type Section struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Context is a loaded résumé. The zero value has no résumé.
type Context struct {
	sections []Section
}

// New wraps sections, dropping blank ones.
func New(sections []Section) *Context {
	kept := make([]Section, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s.Content) != "" {
			kept = append(kept, s)
		}
	}
	return &Context{sections: kept}
}

// HasResume reports whether any section has content.
func (c *Context) HasResume() bool {
	return c != nil && len(c.sections) > 0
}

// ResumeText joins section contents with newlines.
func (c *Context) ResumeText() string {
	if c == nil {
		return ""
	}
	parts := make([]string, 0, len(c.sections))
	for _, s := range c.sections {
		parts = append(parts, s.Content)
	}
	return strings.Join(parts, "\n")
}

// Sections returns a copy of the stored sections.
func (c *Context) Sections() []Section {
	if c == nil {
		return nil
	}
	return append([]Section(nil), c.sections...)
}

// Load reads the sections file. A missing file is an empty résumé.
func Load(path string) (*Context, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read resume %q: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return New(nil), nil
	}

	var sections []Section
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("decode resume %q: %w", path, err)
	}
	return New(sections), nil
}

// Save writes sections atomically with 0600 permissions.
func Save(path string, sections []Section) error {
	data, err := json.MarshalIndent(sections, "", "  ")
	if err != nil {
		return fmt.Errorf("encode resume: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create resume dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".resume-*.json")
	if err != nil {
		return fmt.Errorf("create temp resume: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write resume: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod resume: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close resume: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace resume: %w", err)
	}
	return nil
}

// Import stores a plain-text résumé as a single section.
func Import(path string, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("resume text is empty")
	}
	return Save(path, []Section{{ID: "extracted-content", Title: "Resume", Content: text}})
}

// Clear removes the sections file, returning sessions to info-driven mode.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove resume %q: %w", path, err)
	}
	return nil
}

// DefaultPath is $XDG_DATA_HOME/rehearse/resume.json.
func DefaultPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, "rehearse", "resume.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for data: %w", err)
	}
	return filepath.Join(home, ".local", "share", "rehearse", "resume.json"), nil
}
