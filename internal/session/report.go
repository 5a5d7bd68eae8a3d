package session

import (
	"fmt"
	"strings"

	"github.com/rbright/rehearse/internal/timer"
)

// Report renders a finished session as plain text.
func Report(s Snapshot) string {
	var b strings.Builder

	average := s.AverageScore()
	fmt.Fprintf(&b, "Interview %s\n", s.ID)
	if !s.HasResume && s.Info.Position != "" {
		fmt.Fprintf(&b, "Role: %s / %s / %s\n", s.Info.Position, s.Info.Field, s.Info.Level)
	}
	fmt.Fprintf(&b, "Average score: %.1f/100 (%s)\n", average, BandFor(average))
	fmt.Fprintf(&b, "Total time: %s\n", timer.Format(s.TotalTime()))

	if s.Evaluation != nil {
		if fb := strings.TrimSpace(s.Evaluation.GeneralFeedback); fb != "" {
			fmt.Fprintf(&b, "\nGeneral feedback:\n%s\n", fb)
		}
		if tips := strings.TrimSpace(s.Evaluation.ImprovementSuggestions); tips != "" {
			fmt.Fprintf(&b, "\nImprovement suggestions:\n%s\n", tips)
		}
	}

	for i, record := range s.Answers {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, record.QuestionText)
		fmt.Fprintf(&b, "   Answer: %s\n", record.AnswerText)
		if record.Score != nil {
			fmt.Fprintf(&b, "   Score: %d/100  Time: %s\n", *record.Score, timer.Format(record.TimeSpentSeconds))
		} else {
			fmt.Fprintf(&b, "   Time: %s\n", timer.Format(record.TimeSpentSeconds))
		}
		if record.Feedback != "" {
			fmt.Fprintf(&b, "   Feedback: %s\n", record.Feedback)
		}
		for _, point := range record.ImprovementPoints {
			fmt.Fprintf(&b, "   - %s\n", point)
		}
	}
	return b.String()
}
