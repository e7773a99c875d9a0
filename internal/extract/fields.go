package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pavelanni/quizdeck/internal/model"
	"github.com/pavelanni/quizdeck/internal/textutil"
)

var (
	ordinalPrefix = regexp.MustCompile(`^\d+\.\s+`)
	optionMarker  = regexp.MustCompile(`(^|\s)([A-D])[.)]\s+`)
	answerMarker  = regexp.MustCompile(`(?i)(?:answer|correct)\s*:?\s*([A-D])\b`)
)

// ParseError reports a block that could not be parsed as a well-formed
// four-option question. The caller decides whether to route the block to the
// page-image fallback or retain it with placeholder options; it is never
// dropped silently.
type ParseError struct {
	Ordinal int
	Field   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("question %d: cannot parse %s", e.Ordinal, e.Field)
}

// ParseBlock extracts question text, four options, and the correct answer from
// a block. On a ParseError the returned record still carries the best-effort
// question text, order index, and point value so fallback paths can reuse them.
func ParseBlock(b Block, points float64) (model.ExtractedQuestion, []Warning, error) {
	q := model.ExtractedQuestion{
		Points:     points,
		OrderIndex: b.Ordinal - 1,
	}
	body := ordinalPrefix.ReplaceAllString(b.Text, "")

	// Locate the option markers A..D, in order. Later duplicates and
	// out-of-order letters are ignored.
	markerAt := [4]int{}
	textAt := [4]int{}
	next := 0
	for _, m := range optionMarker.FindAllStringSubmatchIndex(body, -1) {
		if next < 4 && body[m[4]] == byte('A'+next) {
			markerAt[next] = m[4]
			textAt[next] = m[1]
			next++
		}
	}

	if next > 0 {
		q.Text = textutil.CollapseSpace(body[:markerAt[0]])
	} else {
		q.Text = textutil.CollapseSpace(body)
	}
	if q.Text == "" {
		return q, nil, &ParseError{Ordinal: b.Ordinal, Field: "question text"}
	}
	if next < 4 {
		return q, nil, &ParseError{Ordinal: b.Ordinal, Field: "options"}
	}

	// The answer marker, when present, terminates option D.
	ansLoc := answerMarker.FindStringSubmatchIndex(body)

	options := make([]string, 4)
	for i := 0; i < 4; i++ {
		end := len(body)
		if i < 3 {
			end = markerAt[i+1]
		} else if ansLoc != nil && ansLoc[0] > textAt[3] {
			end = ansLoc[0]
		}
		options[i] = textutil.CollapseSpace(body[textAt[i]:end])
		if options[i] == "" {
			return q, nil, &ParseError{Ordinal: b.Ordinal, Field: fmt.Sprintf("option %c", 'A'+i)}
		}
	}
	q.Options = options

	var warns []Warning
	if ansLoc != nil {
		letter := strings.ToUpper(body[ansLoc[2]:ansLoc[3]])
		q.CorrectAnswer = options[letter[0]-'A']
	} else {
		// Lossy fallback carried over from malformed source documents: no
		// answer marker means the first option is assumed correct. Warned,
		// never silent.
		q.CorrectAnswer = options[0]
		warns = append(warns, Warning{
			Ordinal: b.Ordinal,
			Field:   "answer",
			Message: "answer marker not found; defaulted to option A",
		})
	}
	return q, warns, nil
}
