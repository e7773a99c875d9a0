package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizdeck/internal/assets"
	"github.com/pavelanni/quizdeck/internal/extract"
	"github.com/pavelanni/quizdeck/internal/grading"
	"github.com/pavelanni/quizdeck/internal/ingest"
	"github.com/pavelanni/quizdeck/internal/model"
	"github.com/pavelanni/quizdeck/internal/pdf"
	"github.com/pavelanni/quizdeck/internal/store"
)

// maxUploadBytes caps one imported document.
const maxUploadBytes = 64 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	assets assets.Store
	config model.IngestConfig
}

// New creates a new Handler.
func New(s *store.Store, a assets.Store, cfg model.IngestConfig) *Handler {
	return &Handler{store: s, assets: a, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/quizzes/import", h.handleImportQuiz)
	r.Get("/quizzes", h.handleListQuizzes)
	r.Get("/quizzes/{quizID}", h.handleGetQuiz)
	r.Post("/quizzes/{quizID}/attempts", h.handleStartAttempt)
	r.Get("/attempts/{attemptID}", h.handleGetAttempt)
	r.Post("/attempts/{attemptID}/answers", h.handleSubmitAnswer)
	r.Post("/attempts/{attemptID}/submit", h.handleSubmitAttempt)
	r.Get("/review", h.handleReviewQueue)
	r.Post("/answers/{answerID}/review", h.handleReviewAnswer)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type importResponse struct {
	QuizID        int64             `json:"quiz_id"`
	QuestionCount int               `json:"question_count"`
	Warnings      []extract.Warning `json:"warnings,omitempty"`
}

// handleImportQuiz ingests an uploaded PDF: extraction runs under the
// configured time budget, and a deadline hit maps to 504 so callers can
// distinguish "retry with a longer budget" from "document held no questions".
func (h *Handler) handleImportQuiz(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	doc, err := pdf.FromBytes(data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unreadable document: "+err.Error())
		return
	}
	defer doc.Close()

	title := r.FormValue("title")
	if title == "" {
		title = h.config.DefaultTitle
	}
	if title == "" {
		title = header.Filename
	}
	duration, _ := strconv.Atoi(r.FormValue("duration"))

	ctx := r.Context()
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	res, err := extract.Run(ctx, doc, extract.Options{
		Title:             title,
		Description:       r.FormValue("description"),
		Duration:          duration,
		DefaultPoints:     h.config.DefaultPoints,
		FallbackScale:     h.config.FallbackScale,
		FallbackThreshold: h.config.FallbackThreshold,
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "extraction timed out; retry with a longer budget")
		return
	case errors.Is(err, extract.ErrNoQuestions):
		writeError(w, http.StatusUnprocessableEntity, "no questions found in document")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	quizID, questionIDs, err := ingest.Persist(r.Context(), h.store, h.assets, res.Doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("imported quiz",
		"quiz_id", quizID,
		"source", header.Filename,
		"pages", doc.PageCount(),
		"questions", len(questionIDs),
		"warnings", len(res.Warnings),
	)
	writeJSON(w, http.StatusCreated, importResponse{
		QuizID:        quizID,
		QuestionCount: len(questionIDs),
		Warnings:      res.Warnings,
	})
}

func (h *Handler) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.store.ListQuizzes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizzes": quizzes})
}

func (h *Handler) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(chi.URLParam(r, "quizID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quiz ID")
		return
	}
	view, err := h.store.GetQuizView(quizID)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "quiz not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(chi.URLParam(r, "quizID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quiz ID")
		return
	}
	if _, err := h.store.GetQuiz(quizID); err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "quiz not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var in struct {
		Student string `json:"student"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&in)
	}

	attemptID, err := h.store.CreateAttempt(quizID, in.Student)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	attempt, err := h.store.GetAttempt(attemptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (h *Handler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID, err := strconv.ParseInt(chi.URLParam(r, "attemptID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid attempt ID")
		return
	}
	view, err := h.store.GetAttemptView(attemptID)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "attempt not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type answerRequest struct {
	QuestionID int64  `json:"question_id"`
	Response   string `json:"response"`
}

type answerResponse struct {
	Answer model.Answer   `json:"answer"`
	Result grading.Result `json:"result"`
}

// handleSubmitAnswer grades a free-text response on write. Grading is
// stateless, so concurrent submissions across attempts need no locking.
func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	attemptID, err := strconv.ParseInt(chi.URLParam(r, "attemptID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid attempt ID")
		return
	}
	var in answerRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	attempt, err := h.store.GetAttempt(attemptID)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "attempt not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if attempt.Status != model.AttemptInProgress {
		writeError(w, http.StatusBadRequest, "attempt already submitted")
		return
	}

	question, err := h.store.GetQuestion(in.QuestionID)
	if err == sql.ErrNoRows || (err == nil && question.QuizID != attempt.QuizID) {
		writeError(w, http.StatusNotFound, "question not found in this quiz")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rubric := grading.Rubric{Keywords: question.Keywords, Weights: question.Weights}
	result := grading.Grade(in.Response, rubric, question.Points)
	needsReview := grading.NeedsReview(result)
	if len(question.Keywords) == 0 {
		// No rubric to grade against (image-fallback records with unknown
		// answers land here): always route to a human.
		needsReview = true
	}

	answer := model.Answer{
		AttemptID:   attemptID,
		QuestionID:  question.ID,
		Response:    in.Response,
		Score:       result.Score,
		MaxScore:    result.MaxScore,
		Percentage:  result.Percentage,
		IsCorrect:   grading.IsCorrect(result),
		NeedsReview: needsReview,
	}
	id, err := h.store.UpsertAnswer(answer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	answer.ID = id
	writeJSON(w, http.StatusOK, answerResponse{Answer: answer, Result: result})
}

func (h *Handler) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID, err := strconv.ParseInt(chi.URLParam(r, "attemptID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid attempt ID")
		return
	}
	if _, err := h.store.GetAttempt(attemptID); err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "attempt not found")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.store.UpdateAttemptStatus(attemptID, model.AttemptSubmitted); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view, err := h.store.GetAttemptView(attemptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	answers, err := h.store.ListAnswersNeedingReview()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]model.AnswerView, 0, len(answers))
	for _, a := range answers {
		q, err := h.store.GetQuestion(a.QuestionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		views = append(views, model.AnswerView{Answer: a, Question: q})
	}
	writeJSON(w, http.StatusOK, map[string]any{"answers": views})
}

func (h *Handler) handleReviewAnswer(w http.ResponseWriter, r *http.Request) {
	answerID, err := strconv.ParseInt(chi.URLParam(r, "answerID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid answer ID")
		return
	}
	var in struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	answer, err := h.store.GetAnswer(answerID)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "answer not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if in.Score < 0 || in.Score > answer.MaxScore {
		writeError(w, http.StatusBadRequest, "score out of range")
		return
	}

	if err := h.store.SetTeacherScore(answerID, in.Score); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	answer, err = h.store.GetAnswer(answerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
