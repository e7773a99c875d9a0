package extract

import (
	"sort"

	"github.com/pavelanni/quizdeck/internal/model"
)

// Assemble orders extracted questions into a quiz document. The sort is
// stable: duplicate ordinals keep their encounter order and are reported as
// warnings rather than errors. Zero questions is ErrNoQuestions: an ingestion
// pass never quietly produces an empty quiz.
func Assemble(questions []model.ExtractedQuestion, title, description string, duration int) (model.ParsedQuizDocument, []Warning, error) {
	if len(questions) == 0 {
		return model.ParsedQuizDocument{}, nil, ErrNoQuestions
	}

	qs := append([]model.ExtractedQuestion(nil), questions...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].OrderIndex < qs[j].OrderIndex })

	var warns []Warning
	for i := 1; i < len(qs); i++ {
		if qs[i].OrderIndex == qs[i-1].OrderIndex {
			warns = append(warns, Warning{
				Ordinal: qs[i].OrderIndex + 1,
				Field:   "ordinal",
				Message: "duplicate question number; encounter order preserved",
			})
		}
	}

	return model.ParsedQuizDocument{
		Title:       title,
		Description: description,
		Duration:    duration,
		Questions:   qs,
	}, warns, nil
}
