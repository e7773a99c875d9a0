package extract

import (
	"fmt"

	"github.com/pavelanni/quizdeck/internal/model"
)

// placeholderOptions are the literal labels attached when option text could
// not be recovered. They are labels, not guessed answer text.
func placeholderOptions() []string {
	return []string{"A", "B", "C", "D"}
}

// RenderFunc rasterizes a zero-based page to encoded image bytes.
type RenderFunc func(pageIndex int) ([]byte, error)

// ExtractAsImage builds the terminal-fallback record for a question on a page
// whose text could not be parsed into discrete options: the page raster is
// attached, the correct answer stays unknown, and grading defers to manual
// review. It never fails: if rendering errors, the record degrades to
// placeholder labels without an image and the failure becomes a warning, so
// every detected ordinal still yields exactly one record.
func ExtractAsImage(render RenderFunc, pageIndex int, b Block, questionText string, points float64) (model.ExtractedQuestion, []Warning) {
	q := model.ExtractedQuestion{
		Text:       questionText,
		Options:    placeholderOptions(),
		Points:     points,
		OrderIndex: b.Ordinal - 1,
	}
	if q.Text == "" {
		q.Text = fmt.Sprintf("Question %d (see attached page image)", b.Ordinal)
	}

	img, err := render(pageIndex)
	if err != nil {
		return q, []Warning{{
			Ordinal: b.Ordinal,
			Field:   "image",
			Message: fmt.Sprintf("page %d render failed: %v; retained with placeholder options", pageIndex+1, err),
		}}
	}
	q.HasImage = true
	q.ImageName = fmt.Sprintf("page-%d-q%d.png", pageIndex+1, b.Ordinal)
	q.ImageData = img
	return q, nil
}
