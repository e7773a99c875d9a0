// Package extract turns raw document text into ordered question records. One
// pass is single-threaded and synchronous over the whole document: the
// segmenter needs accumulated full-document text because a question's options
// may span a page boundary. The caller bounds a pass with a context deadline;
// a timeout surfaces as the context error, distinct from ErrNoQuestions.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pavelanni/quizdeck/internal/model"
)

// Source supplies a document's pages: plain extracted text and the ability to
// rasterize a page at a scale. internal/pdf provides the real implementation.
type Source interface {
	PageCount() int
	PageText(i int) (string, error)
	RenderPage(i int, scale float64) ([]byte, error)
}

// ErrNoQuestions reports an extraction pass that found zero usable questions.
// Callers must surface it rather than creating an empty quiz.
var ErrNoQuestions = errors.New("no questions extracted from document")

// Warning is a per-item data-quality note emitted during extraction. Warnings
// accompany results in an aggregate list; they never abort a pass.
type Warning struct {
	Ordinal int    `json:"ordinal"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("question %d [%s]: %s", w.Ordinal, w.Field, w.Message)
}

// Options configures one extraction pass. Configuration is passed per call so
// concurrent passes with different settings cannot interfere. Zero values get
// defaults from withDefaults.
type Options struct {
	Title         string
	Description   string
	Duration      int     // minutes
	DefaultPoints float64 // awarded to every extracted question; default 1

	// FallbackScale is the raster scale for the page-image fallback. The
	// fallback favors throughput over fidelity; default 2 (144 DPI).
	FallbackScale float64

	// FallbackThreshold is the fraction of a page's detected questions that
	// must fail option parsing before the whole page routes to the image
	// fallback; failed blocks on healthier pages are retained with
	// placeholder option labels instead. Default 0.5.
	FallbackThreshold float64
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "Imported quiz"
	}
	if o.DefaultPoints <= 0 {
		o.DefaultPoints = 1
	}
	if o.FallbackScale <= 0 {
		o.FallbackScale = 2
	}
	if o.FallbackThreshold <= 0 {
		o.FallbackThreshold = 0.5
	}
	return o
}

// Result is a completed extraction pass: the assembled document plus the
// aggregate warnings.
type Result struct {
	Doc      model.ParsedQuizDocument
	Warnings []Warning
}

// Run executes one extraction pass over the whole document. Every detected
// question ordinal yields exactly one record: blocks that fail field
// extraction are recovered through the page-image fallback or retained with
// placeholder options, never dropped.
func Run(ctx context.Context, src Source, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	var sb strings.Builder
	pageStarts := make([]int, 0, src.PageCount())
	for i := 0; i < src.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		pageStarts = append(pageStarts, sb.Len())
		text, err := src.PageText(i)
		if err != nil {
			return nil, fmt.Errorf("extract page %d text: %w", i+1, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	blocks := Segment(sb.String())
	if len(blocks) == 0 {
		return nil, ErrNoQuestions
	}

	type item struct {
		block Block
		page  int
		q     model.ExtractedQuestion
		perr  *ParseError
	}

	var warns []Warning
	items := make([]item, 0, len(blocks))
	failedPerPage := map[int]int{}
	totalPerPage := map[int]int{}
	for _, b := range blocks {
		page := pageForOffset(pageStarts, b.Offset)
		q, w, err := ParseBlock(b, opts.DefaultPoints)
		warns = append(warns, w...)
		it := item{block: b, page: page, q: q}
		totalPerPage[page]++
		if err != nil {
			var perr *ParseError
			errors.As(err, &perr)
			it.perr = perr
			failedPerPage[page]++
		}
		items = append(items, it)
	}

	// One raster per page, shared by every fallback record on it.
	rendered := map[int][]byte{}
	renderOnce := func(i int) ([]byte, error) {
		if img, ok := rendered[i]; ok {
			return img, nil
		}
		img, err := src.RenderPage(i, opts.FallbackScale)
		if err != nil {
			return nil, err
		}
		rendered[i] = img
		return img, nil
	}

	questions := make([]model.ExtractedQuestion, 0, len(items))
	for _, it := range items {
		if it.perr == nil {
			questions = append(questions, it.q)
			continue
		}

		failedFrac := float64(failedPerPage[it.page]) / float64(totalPerPage[it.page])
		if failedFrac > opts.FallbackThreshold {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("render page %d: %w", it.page+1, err)
			}
			q, w := ExtractAsImage(renderOnce, it.page, it.block, it.q.Text, opts.DefaultPoints)
			warns = append(warns, w...)
			questions = append(questions, q)
			continue
		}

		// Page is mostly healthy: keep the record with placeholder labels.
		if it.q.Text == "" {
			it.q.Text = fmt.Sprintf("Question %d", it.block.Ordinal)
		}
		it.q.Options = placeholderOptions()
		it.q.CorrectAnswer = ""
		questions = append(questions, it.q)
		warns = append(warns, Warning{
			Ordinal: it.block.Ordinal,
			Field:   it.perr.Field,
			Message: "unparsed; retained with placeholder options",
		})
	}

	doc, aw, err := Assemble(questions, opts.Title, opts.Description, opts.Duration)
	if err != nil {
		return nil, err
	}
	warns = append(warns, aw...)

	return &Result{Doc: doc, Warnings: warns}, nil
}

// pageForOffset maps a byte offset in the accumulated document text back to
// the zero-based page it came from.
func pageForOffset(pageStarts []int, offset int) int {
	i := sort.Search(len(pageStarts), func(i int) bool { return pageStarts[i] > offset })
	if i == 0 {
		return 0
	}
	return i - 1
}
