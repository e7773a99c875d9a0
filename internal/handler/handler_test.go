package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizdeck/internal/model"
	"github.com/pavelanni/quizdeck/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := New(s, nil, model.IngestConfig{DefaultPoints: 1})
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, s
}

func seedQuiz(t *testing.T, s *store.Store) (int64, []int64) {
	t.Helper()
	quizID, questionIDs, err := s.CreateQuiz(model.ParsedQuizDocument{
		Title:    "Biology",
		Duration: 30,
		Questions: []model.ExtractedQuestion{
			{
				Text:          "Explain how plants make food.",
				Options:       []string{"a", "b", "c", "d"},
				CorrectAnswer: "photosynthesis",
				Points:        6,
				OrderIndex:    0,
			},
			{
				Text:       "Question 2 (see attached page image)",
				Options:    []string{"A", "B", "C", "D"},
				Points:     2,
				OrderIndex: 1,
				HasImage:   true,
			},
		},
	})
	if err != nil {
		t.Fatalf("seedQuiz: %v", err)
	}
	// Give the first question a real rubric.
	err = s.SetQuestionRubric(questionIDs[0],
		[]string{"photosynthesis", "chlorophyll"},
		map[string]float64{"photosynthesis": 2, "chlorophyll": 1})
	if err != nil {
		t.Fatalf("SetQuestionRubric: %v", err)
	}
	return quizID, questionIDs
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func startAttempt(t *testing.T, srv *httptest.Server, quizID int64) model.Attempt {
	t.Helper()
	resp := postJSON(t, fmt.Sprintf("%s/quizzes/%d/attempts", srv.URL, quizID), map[string]string{"student": "ada"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start attempt: status %d", resp.StatusCode)
	}
	return decode[model.Attempt](t, resp)
}

func TestGetQuiz(t *testing.T) {
	srv, s := newTestServer(t)
	quizID, _ := seedQuiz(t, s)

	resp, err := http.Get(fmt.Sprintf("%s/quizzes/%d", srv.URL, quizID))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	view := decode[model.QuizView](t, resp)
	if view.Quiz.Title != "Biology" || len(view.Questions) != 2 {
		t.Errorf("unexpected view: %+v", view)
	}

	resp, err = http.Get(srv.URL + "/quizzes/9999")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing quiz: status %d, want 404", resp.StatusCode)
	}
}

func TestSubmitAnswerGrades(t *testing.T) {
	srv, s := newTestServer(t)
	quizID, questionIDs := seedQuiz(t, s)
	attempt := startAttempt(t, srv, quizID)

	answersURL := fmt.Sprintf("%s/attempts/%d/answers", srv.URL, attempt.ID)

	t.Run("full credit", func(t *testing.T) {
		resp := postJSON(t, answersURL, answerRequest{
			QuestionID: questionIDs[0],
			Response:   "Plants use chlorophyll to perform Photosynthesis.",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d", resp.StatusCode)
		}
		out := decode[answerResponse](t, resp)
		if out.Answer.Score != 6 || out.Answer.Percentage != 100 {
			t.Errorf("answer = %+v", out.Answer)
		}
		if !out.Answer.IsCorrect || out.Answer.NeedsReview {
			t.Errorf("flags = correct:%v review:%v", out.Answer.IsCorrect, out.Answer.NeedsReview)
		}
		if len(out.Result.Matches) != 2 {
			t.Errorf("matches = %+v", out.Result.Matches)
		}
	})

	t.Run("review band", func(t *testing.T) {
		// Equal weights, one of two keywords hit: exactly 50%.
		err := s.SetQuestionRubric(questionIDs[0],
			[]string{"photosynthesis", "chlorophyll"}, nil)
		if err != nil {
			t.Fatalf("SetQuestionRubric: %v", err)
		}
		resp := postJSON(t, answersURL, answerRequest{
			QuestionID: questionIDs[0],
			Response:   "Something about chlorophyll only.",
		})
		out := decode[answerResponse](t, resp)
		if out.Answer.Percentage != 50 {
			t.Fatalf("percentage = %v, want 50", out.Answer.Percentage)
		}
		if !out.Answer.NeedsReview {
			t.Error("50% must be flagged for review")
		}
	})

	t.Run("no rubric routes to review", func(t *testing.T) {
		resp := postJSON(t, answersURL, answerRequest{
			QuestionID: questionIDs[1],
			Response:   "My answer to the image question.",
		})
		out := decode[answerResponse](t, resp)
		if out.Answer.Score != 0 {
			t.Errorf("score = %v, want 0", out.Answer.Score)
		}
		if !out.Answer.NeedsReview {
			t.Error("rubric-less question must need review")
		}
	})

	t.Run("unknown question", func(t *testing.T) {
		resp := postJSON(t, answersURL, answerRequest{QuestionID: 9999, Response: "x"})
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status %d, want 404", resp.StatusCode)
		}
	})
}

func TestSubmitAttemptLocksAnswers(t *testing.T) {
	srv, s := newTestServer(t)
	quizID, questionIDs := seedQuiz(t, s)
	attempt := startAttempt(t, srv, quizID)

	resp := postJSON(t, fmt.Sprintf("%s/attempts/%d/submit", srv.URL, attempt.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d", resp.StatusCode)
	}
	view := decode[model.AttemptView](t, resp)
	if view.Attempt.Status != model.AttemptSubmitted {
		t.Errorf("status = %q", view.Attempt.Status)
	}

	resp = postJSON(t, fmt.Sprintf("%s/attempts/%d/answers", srv.URL, attempt.ID),
		answerRequest{QuestionID: questionIDs[0], Response: "late"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("answering a submitted attempt: status %d, want 400", resp.StatusCode)
	}
}

func TestReviewFlow(t *testing.T) {
	srv, s := newTestServer(t)
	quizID, questionIDs := seedQuiz(t, s)
	attempt := startAttempt(t, srv, quizID)

	// Land one answer in the review queue via the rubric-less question.
	resp := postJSON(t, fmt.Sprintf("%s/attempts/%d/answers", srv.URL, attempt.ID),
		answerRequest{QuestionID: questionIDs[1], Response: "see image"})
	out := decode[answerResponse](t, resp)

	listResp, err := http.Get(srv.URL + "/review")
	if err != nil {
		t.Fatalf("GET /review: %v", err)
	}
	queue := decode[struct {
		Answers []model.AnswerView `json:"answers"`
	}](t, listResp)
	if len(queue.Answers) != 1 {
		t.Fatalf("queue length = %d", len(queue.Answers))
	}
	if queue.Answers[0].Question.ID != questionIDs[1] {
		t.Errorf("queued wrong question: %+v", queue.Answers[0])
	}

	// Out-of-range score rejected.
	resp = postJSON(t, fmt.Sprintf("%s/answers/%d/review", srv.URL, out.Answer.ID), map[string]float64{"score": 99})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("oversized score: status %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, fmt.Sprintf("%s/answers/%d/review", srv.URL, out.Answer.ID), map[string]float64{"score": 1.5})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review: status %d", resp.StatusCode)
	}
	reviewed := decode[model.Answer](t, resp)
	if reviewed.TeacherScore == nil || *reviewed.TeacherScore != 1.5 {
		t.Errorf("teacher score = %v", reviewed.TeacherScore)
	}

	listResp, err = http.Get(srv.URL + "/review")
	if err != nil {
		t.Fatalf("GET /review: %v", err)
	}
	queue = decode[struct {
		Answers []model.AnswerView `json:"answers"`
	}](t, listResp)
	if len(queue.Answers) != 0 {
		t.Errorf("queue not drained: %d", len(queue.Answers))
	}
}

func TestImportRejectsMissingFile(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	resp, err := http.Post(srv.URL+"/quizzes/import", "multipart/form-data; boundary=x", &buf)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d, want 400", resp.StatusCode)
	}
}
