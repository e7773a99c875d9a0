// Package ingest hands a parsed quiz document over to the persistence and
// asset collaborators.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/quizdeck/internal/assets"
	"github.com/pavelanni/quizdeck/internal/model"
	"github.com/pavelanni/quizdeck/internal/store"
)

// Persist stores the quiz header and question rows, then uploads page images
// and patches their URLs onto the question rows. Uploads run concurrently and
// best-effort: a failed upload leaves that question valid without its image
// and is logged, never rolled back or allowed to block the rest of the batch.
func Persist(ctx context.Context, st *store.Store, as assets.Store, doc model.ParsedQuizDocument) (int64, []int64, error) {
	quizID, questionIDs, err := st.CreateQuiz(doc)
	if err != nil {
		return 0, nil, fmt.Errorf("create quiz: %w", err)
	}

	var wg sync.WaitGroup
	for i, eq := range doc.Questions {
		if !eq.HasImage || len(eq.ImageData) == 0 {
			continue
		}
		wg.Add(1)
		go func(questionID int64, eq model.ExtractedQuestion) {
			defer wg.Done()
			url, err := as.Put(ctx, eq.ImageName, eq.ImageData)
			if err != nil {
				slog.Error("image upload failed; question kept without image",
					"question_id", questionID, "asset", eq.ImageName, "error", err)
				return
			}
			if err := st.SetQuestionImageURL(questionID, url); err != nil {
				slog.Error("image url patch failed; question kept without image",
					"question_id", questionID, "url", url, "error", err)
			}
		}(questionIDs[i], eq)
	}
	wg.Wait()

	return quizID, questionIDs, nil
}
