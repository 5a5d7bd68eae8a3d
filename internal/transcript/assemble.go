// Package transcript reconciles streaming recognition events into one answer buffer.
package transcript

import "strings"

// Join space-joins non-empty parts after whitespace normalization.
func Join(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = cleanSegment(part); part != "" {
			cleaned = append(cleaned, part)
		}
	}
	return strings.Join(cleaned, " ")
}

// splitFragments separates one event's fragments into final and interim text.
func splitFragments(fragments []Fragment) (final string, interim string) {
	var finals, interims []string
	for _, fragment := range fragments {
		if fragment.Final {
			finals = append(finals, fragment.Text)
		} else {
			interims = append(interims, fragment.Text)
		}
	}
	return Join(finals...), Join(interims...)
}

// cleanSegment normalizes transcript whitespace.
func cleanSegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return strings.Join(strings.Fields(raw), " ")
}
