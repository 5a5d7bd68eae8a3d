package session

import (
	"errors"
	"strings"
)

// NoEvaluationFeedback fills records the evaluator did not score.
const NoEvaluationFeedback = "No evaluation available for this answer."

// Question is one generated interview question.
type Question struct {
	Text string `json:"questionText" yaml:"text"`
	Hint string `json:"hint,omitempty" yaml:"hint"`
}

// InterviewInfo describes the role an info-driven session targets.
type InterviewInfo struct {
	Position string `json:"position" yaml:"position"`
	Field    string `json:"field" yaml:"field"`
	Level    string `json:"level" yaml:"level"`
}

var errIncompleteInfo = errors.New("position, field and level are required")

// Normalize trims every field.
func (i InterviewInfo) Normalize() InterviewInfo {
	return InterviewInfo{
		Position: strings.TrimSpace(i.Position),
		Field:    strings.TrimSpace(i.Field),
		Level:    strings.TrimSpace(i.Level),
	}
}

// Validate requires every field to be non-blank.
func (i InterviewInfo) Validate() error {
	n := i.Normalize()
	if n.Position == "" || n.Field == "" || n.Level == "" {
		return errIncompleteInfo
	}
	return nil
}

// AnswerRecord is one submitted answer. Score stays nil until evaluation.
type AnswerRecord struct {
	QuestionText      string   `json:"questionText"`
	AnswerText        string   `json:"answerText"`
	TimeSpentSeconds  int      `json:"timeSpentSeconds"`
	Score             *int     `json:"score,omitempty"`
	Feedback          string   `json:"feedback,omitempty"`
	ImprovementPoints []string `json:"improvementPoints,omitempty"`
}

// AnswerSubmission is the wire shape of one answer sent for evaluation.
// QuestionID is 1-based and follows submission order.
type AnswerSubmission struct {
	QuestionID   int    `json:"questionId"`
	QuestionText string `json:"questionText"`
	AnswerText   string `json:"answerText"`
}

// QuestionScore is the evaluator's verdict for one submission.
type QuestionScore struct {
	QuestionID int    `json:"questionId"`
	Score      int    `json:"score"`
	Feedback   string `json:"feedback"`
}

// Evaluation is the bulk evaluator reply.
type Evaluation struct {
	TotalScore             int             `json:"totalScore"`
	PerQuestion            []QuestionScore `json:"questionScores"`
	GeneralFeedback        string          `json:"generalFeedback"`
	ImprovementSuggestions string          `json:"improvementSuggestions"`
}

// Submissions numbers records from 1 in submission order.
func Submissions(records []AnswerRecord) []AnswerSubmission {
	out := make([]AnswerSubmission, 0, len(records))
	for i, record := range records {
		out = append(out, AnswerSubmission{
			QuestionID:   i + 1,
			QuestionText: record.QuestionText,
			AnswerText:   record.AnswerText,
		})
	}
	return out
}

// MergeEvaluation returns a copy of records scored by eval. Records whose id
// is absent from eval get score 0. Blank feedback becomes NoEvaluationFeedback.
func MergeEvaluation(records []AnswerRecord, eval Evaluation) []AnswerRecord {
	byID := make(map[int]QuestionScore, len(eval.PerQuestion))
	for _, score := range eval.PerQuestion {
		byID[score.QuestionID] = score
	}

	out := make([]AnswerRecord, len(records))
	for i, record := range records {
		score, ok := byID[i+1]
		if !ok {
			score = QuestionScore{QuestionID: i + 1, Score: 0}
		}
		if strings.TrimSpace(score.Feedback) == "" {
			score.Feedback = NoEvaluationFeedback
		}
		value := score.Score
		record.Score = &value
		record.Feedback = score.Feedback
		record.ImprovementPoints = nil
		out[i] = record
	}
	return out
}

// AverageScore is the mean over records with a defined score, or 0.
func AverageScore(records []AnswerRecord) float64 {
	total, n := 0, 0
	for _, record := range records {
		if record.Score == nil {
			continue
		}
		total += *record.Score
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

// TotalTime sums the time spent on every answer.
func TotalTime(records []AnswerRecord) int {
	total := 0
	for _, record := range records {
		total += record.TimeSpentSeconds
	}
	return total
}

// ScoreBand buckets a 0-100 score for display.
type ScoreBand string

const (
	BandGood ScoreBand = "good"
	BandFair ScoreBand = "fair"
	BandWeak ScoreBand = "weak"
)

// BandFor classifies score.
func BandFor(score float64) ScoreBand {
	switch {
	case score >= 80:
		return BandGood
	case score >= 60:
		return BandFair
	default:
		return BandWeak
	}
}
