// Package questionbank serves interview questions from a local YAML file so
// sessions can run without a backend.
//
// Example:
//
//	limit: 5
//	general:
//	  - text: "Tell me about a project you are proud of."
//	roles:
//	  - position: "backend"
//	    field: "*"
//	    level: "senior"
//	    questions:
//	      - text: "How would you shard a {field} workload?"
//	        hint: "Talk about keys and rebalancing."
package questionbank

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rbright/rehearse/internal/session"
)

const wildcard = "*"

// File is the on-disk bank.
type File struct {
	Limit   int                `yaml:"limit"`
	General []session.Question `yaml:"general"`
	Roles   []Role             `yaml:"roles"`
}

// Role matches interview info by case-insensitive substring. An empty or
// "*" matcher accepts anything.
type Role struct {
	Position  string             `yaml:"position"`
	Field     string             `yaml:"field"`
	Level     string             `yaml:"level"`
	Questions []session.Question `yaml:"questions"`
}

func (r Role) matches(info session.InterviewInfo) bool {
	return matchField(r.Position, info.Position) &&
		matchField(r.Field, info.Field) &&
		matchField(r.Level, info.Level)
}

func matchField(pattern, value string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" || pattern == wildcard {
		return true
	}
	return strings.Contains(strings.ToLower(value), pattern)
}

// Bank is a session.QuestionSource backed by a File.
type Bank struct {
	file File
}

// Load reads a bank from path.
func Load(path string) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open question bank %q: %w", path, err)
	}
	defer f.Close()

	bank, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse question bank %q: %w", path, err)
	}
	return bank, nil
}

// Parse decodes and validates a bank.
func Parse(r io.Reader) (*Bank, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode question bank: %w", err)
	}
	if err := validate(file); err != nil {
		return nil, err
	}
	return &Bank{file: file}, nil
}

func validate(file File) error {
	if file.Limit < 0 {
		return fmt.Errorf("limit must be >= 0")
	}
	for i, q := range file.General {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("general question %d has empty text", i+1)
		}
	}
	for i, role := range file.Roles {
		if len(role.Questions) == 0 {
			return fmt.Errorf("role %d has no questions", i+1)
		}
		for j, q := range role.Questions {
			if strings.TrimSpace(q.Text) == "" {
				return fmt.Errorf("role %d question %d has empty text", i+1, j+1)
			}
		}
	}
	if len(file.General) == 0 && len(file.Roles) == 0 {
		return fmt.Errorf("question bank is empty")
	}
	return nil
}

// InfoQuestions returns the questions of every matching role, or the general
// set when no role matches.
func (b *Bank) InfoQuestions(ctx context.Context, info session.InterviewInfo) ([]session.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var picked []session.Question
	for _, role := range b.file.Roles {
		if role.matches(info) {
			picked = append(picked, role.Questions...)
		}
	}
	if len(picked) == 0 {
		picked = b.file.General
	}
	return b.finish(picked, info)
}

// ResumeQuestions returns the general set. The bank does not read résumés.
func (b *Bank) ResumeQuestions(ctx context.Context, _ string) ([]session.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.finish(b.file.General, session.InterviewInfo{})
}

func (b *Bank) finish(questions []session.Question, info session.InterviewInfo) ([]session.Question, error) {
	replacer := strings.NewReplacer(
		"{position}", fallback(info.Position, "this role"),
		"{field}", fallback(info.Field, "your field"),
		"{level}", fallback(info.Level, "your level"),
	)

	seen := make(map[string]bool, len(questions))
	out := make([]session.Question, 0, len(questions))
	for _, q := range questions {
		text := replacer.Replace(strings.TrimSpace(q.Text))
		key := strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, session.Question{Text: text, Hint: replacer.Replace(strings.TrimSpace(q.Hint))})
		if b.file.Limit > 0 && len(out) == b.file.Limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, session.ErrNoQuestions
	}
	return out, nil
}

func fallback(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}
