package model

import (
	"time"
)

// AttemptStatus represents the status of a quiz attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
)

// Quiz represents a stored quiz header.
type Quiz struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"` // minutes, 0 means untimed
	CreatedAt   time.Time `json:"created_at"`
}

// Question represents a stored quiz question together with its grading rubric.
// CorrectAnswer is empty when the answer is unknown (page-image fallback
// records); grading such a question always defers to manual review.
type Question struct {
	ID            int64              `json:"id"`
	QuizID        int64              `json:"quiz_id"`
	Text          string             `json:"text"`
	Options       []string           `json:"options"` // always four entries
	CorrectAnswer string             `json:"correct_answer,omitempty"`
	Points        float64            `json:"points"`
	OrderIndex    int                `json:"order_index"`
	HasImage      bool               `json:"has_image"`
	ImageURL      string             `json:"image_url,omitempty"`
	Keywords      []string           `json:"keywords,omitempty"`
	Weights       map[string]float64 `json:"keyword_weights,omitempty"`
}

// Attempt represents one learner's pass over a quiz.
type Attempt struct {
	ID          int64         `json:"id"`
	QuizID      int64         `json:"quiz_id"`
	Student     string        `json:"student"`
	Status      AttemptStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
}

// Answer holds one graded free-text response. TeacherScore is set only after
// manual review; until then the auto-computed fields stand.
type Answer struct {
	ID           int64      `json:"id"`
	AttemptID    int64      `json:"attempt_id"`
	QuestionID   int64      `json:"question_id"`
	Response     string     `json:"response"`
	Score        float64    `json:"score"`
	MaxScore     float64    `json:"max_score"`
	Percentage   float64    `json:"percentage"`
	IsCorrect    bool       `json:"is_correct"`
	NeedsReview  bool       `json:"needs_review"`
	TeacherScore *float64   `json:"teacher_score,omitempty"`
	GradedAt     *time.Time `json:"graded_at,omitempty"`
}

// ExtractedQuestion is one question pulled out of a source document, before it
// is persisted. CorrectAnswer empty means unknown. When HasImage is true the
// raster of the source page travels along in ImageData until the asset store
// hands back a URL.
type ExtractedQuestion struct {
	Text          string
	Options       []string // always four entries, possibly placeholder labels
	CorrectAnswer string
	Points        float64
	OrderIndex    int // 0-based, ordinal - 1
	HasImage      bool
	ImageName     string
	ImageData     []byte
}

// ParsedQuizDocument is a completed extraction pass ready for the store:
// questions sorted ascending by OrderIndex.
type ParsedQuizDocument struct {
	Title       string
	Description string
	Duration    int
	Questions   []ExtractedQuestion
}

// QuestionFromExtracted converts an extracted record into a storable question.
// The rubric is seeded with the correct answer text as a single keyword so
// free-text grading works out of the box; teachers replace it later.
func QuestionFromExtracted(quizID int64, eq ExtractedQuestion) Question {
	q := Question{
		QuizID:        quizID,
		Text:          eq.Text,
		Options:       eq.Options,
		CorrectAnswer: eq.CorrectAnswer,
		Points:        eq.Points,
		OrderIndex:    eq.OrderIndex,
		HasImage:      eq.HasImage,
	}
	if eq.CorrectAnswer != "" {
		q.Keywords = []string{eq.CorrectAnswer}
	}
	return q
}

// IngestConfig holds runtime ingestion parameters set via CLI flags.
type IngestConfig struct {
	DefaultPoints     float64       // points awarded per extracted question
	FallbackScale     float64       // raster scale for the page-image fallback
	FallbackThreshold float64       // failed-question fraction that routes a page to the image fallback
	DefaultTitle      string        // used when the caller supplies no title
	Timeout           time.Duration // budget for one extraction pass
}

// QuizView combines a quiz with its ordered questions for display.
type QuizView struct {
	Quiz      Quiz       `json:"quiz"`
	Questions []Question `json:"questions"`
}

// AnswerView combines an answer with its question for display.
type AnswerView struct {
	Answer   Answer   `json:"answer"`
	Question Question `json:"question"`
}

// AttemptView combines attempt data with answers for display.
type AttemptView struct {
	Attempt Attempt      `json:"attempt"`
	Quiz    Quiz         `json:"quiz"`
	Answers []AnswerView `json:"answers"`
}
