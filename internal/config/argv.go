package config

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseCommand splits a shell-like command string into a CommandConfig.
// Single and double quotes group words, a backslash escapes the next rune,
// and a string starting with # disables the command.
func ParseCommand(raw string) (CommandConfig, error) {
	argv, err := splitCommand(raw)
	if err != nil {
		return CommandConfig{}, err
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

// Enabled reports whether the command has a program to run.
func (c CommandConfig) Enabled() bool {
	return len(c.Argv) > 0
}

func mustParseCommand(raw string) CommandConfig {
	cmd, err := ParseCommand(raw)
	if err != nil {
		panic(err)
	}
	return cmd
}

type commandLexer struct {
	words   []string
	word    strings.Builder
	started bool
	quote   rune
	escaped bool
}

func splitCommand(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return nil, nil
	}

	var lx commandLexer
	for _, r := range raw {
		lx.feed(r)
	}
	switch {
	case lx.escaped:
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", raw)
	case lx.quote != 0:
		return nil, fmt.Errorf("unterminated quote in command: %q", raw)
	}
	lx.endWord()
	return lx.words, nil
}

func (lx *commandLexer) feed(r rune) {
	switch {
	case lx.escaped:
		lx.escaped = false
		lx.add(r)
	case r == '\\' && lx.quote != '\'':
		lx.escaped = true
		lx.started = true
	case lx.quote != 0 && r == lx.quote:
		lx.quote = 0
	case lx.quote != 0:
		lx.add(r)
	case r == '\'' || r == '"':
		lx.quote = r
		lx.started = true
	case unicode.IsSpace(r):
		lx.endWord()
	default:
		lx.add(r)
	}
}

func (lx *commandLexer) add(r rune) {
	lx.word.WriteRune(r)
	lx.started = true
}

// endWord closes the current word. A quoted empty string is kept as an
// empty argument.
func (lx *commandLexer) endWord() {
	if !lx.started {
		return
	}
	lx.words = append(lx.words, lx.word.String())
	lx.word.Reset()
	lx.started = false
}
