package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/quizdeck/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS quizzes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		option_a TEXT NOT NULL DEFAULT '',
		option_b TEXT NOT NULL DEFAULT '',
		option_c TEXT NOT NULL DEFAULT '',
		option_d TEXT NOT NULL DEFAULT '',
		correct_answer TEXT,
		points REAL NOT NULL DEFAULT 1,
		order_index INTEGER NOT NULL,
		has_image INTEGER NOT NULL DEFAULT 0,
		image_url TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',
		keyword_weights TEXT NOT NULL DEFAULT '{}',
		FOREIGN KEY (quiz_id) REFERENCES quizzes(id)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id INTEGER NOT NULL,
		student TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'in_progress',
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		FOREIGN KEY (quiz_id) REFERENCES quizzes(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		response TEXT NOT NULL DEFAULT '',
		score REAL NOT NULL DEFAULT 0,
		max_score REAL NOT NULL DEFAULT 0,
		percentage REAL NOT NULL DEFAULT 0,
		is_correct INTEGER NOT NULL DEFAULT 0,
		needs_review INTEGER NOT NULL DEFAULT 0,
		teacher_score REAL,
		graded_at DATETIME,
		UNIQUE (attempt_id, question_id),
		FOREIGN KEY (attempt_id) REFERENCES attempts(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS import_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateQuiz stores a parsed quiz document as one header row plus ordered
// question rows, inside one transaction so the header always exists before
// its questions. It returns the quiz ID and the question IDs in document
// order, for patching image URLs afterwards.
func (s *Store) CreateQuiz(doc model.ParsedQuizDocument) (int64, []int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO quizzes (title, description, duration, created_at) VALUES (?, ?, ?, ?)`,
		doc.Title, doc.Description, doc.Duration, time.Now(),
	)
	if err != nil {
		return 0, nil, err
	}
	quizID, err := res.LastInsertId()
	if err != nil {
		return 0, nil, err
	}

	questionIDs := make([]int64, 0, len(doc.Questions))
	for _, eq := range doc.Questions {
		q := model.QuestionFromExtracted(quizID, eq)
		id, err := insertQuestion(tx, q)
		if err != nil {
			return 0, nil, err
		}
		questionIDs = append(questionIDs, id)
	}

	return quizID, questionIDs, tx.Commit()
}

func insertQuestion(tx *sql.Tx, q model.Question) (int64, error) {
	keywords, weights, err := marshalRubric(q.Keywords, q.Weights)
	if err != nil {
		return 0, err
	}
	var correct sql.NullString
	if q.CorrectAnswer != "" {
		correct = sql.NullString{String: q.CorrectAnswer, Valid: true}
	}
	opts := q.Options
	for len(opts) < 4 {
		opts = append(opts, "")
	}
	res, err := tx.Exec(
		`INSERT INTO questions (quiz_id, text, option_a, option_b, option_c, option_d,
		 correct_answer, points, order_index, has_image, image_url, keywords, keyword_weights)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		q.QuizID, q.Text, opts[0], opts[1], opts[2], opts[3],
		correct, q.Points, q.OrderIndex, q.HasImage, keywords, weights,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetQuiz returns a quiz header by ID.
func (s *Store) GetQuiz(id int64) (model.Quiz, error) {
	var q model.Quiz
	err := s.db.QueryRow(
		`SELECT id, title, description, duration, created_at FROM quizzes WHERE id = ?`, id,
	).Scan(&q.ID, &q.Title, &q.Description, &q.Duration, &q.CreatedAt)
	return q, err
}

// ListQuizzes returns all quizzes, newest first.
func (s *Store) ListQuizzes() ([]model.Quiz, error) {
	rows, err := s.db.Query(`SELECT id, title, description, duration, created_at FROM quizzes ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var quizzes []model.Quiz
	for rows.Next() {
		var q model.Quiz
		if err := rows.Scan(&q.ID, &q.Title, &q.Description, &q.Duration, &q.CreatedAt); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

const questionColumns = `id, quiz_id, text, option_a, option_b, option_c, option_d,
	correct_answer, points, order_index, has_image, image_url, keywords, keyword_weights`

func scanQuestion(row interface{ Scan(...any) error }) (model.Question, error) {
	var q model.Question
	var a, b, c, d string
	var correct sql.NullString
	var keywords, weights string
	err := row.Scan(&q.ID, &q.QuizID, &q.Text, &a, &b, &c, &d,
		&correct, &q.Points, &q.OrderIndex, &q.HasImage, &q.ImageURL, &keywords, &weights)
	if err != nil {
		return q, err
	}
	q.Options = []string{a, b, c, d}
	q.CorrectAnswer = correct.String
	if err := unmarshalRubric(keywords, weights, &q); err != nil {
		return q, err
	}
	return q, nil
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	return scanQuestion(s.db.QueryRow(
		`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id,
	))
}

// GetQuestionsForQuiz returns a quiz's questions ordered by their order index.
func (s *Store) GetQuestionsForQuiz(quizID int64) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT `+questionColumns+` FROM questions WHERE quiz_id = ? ORDER BY order_index, id`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// SetQuestionImageURL patches in the uploaded image URL for a question.
func (s *Store) SetQuestionImageURL(id int64, url string) error {
	_, err := s.db.Exec(`UPDATE questions SET image_url = ?, has_image = 1 WHERE id = ?`, url, id)
	return err
}

// SetQuestionRubric replaces a question's grading keywords and weights.
func (s *Store) SetQuestionRubric(id int64, keywords []string, weights map[string]float64) error {
	kw, w, err := marshalRubric(keywords, weights)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE questions SET keywords = ?, keyword_weights = ? WHERE id = ?`, kw, w, id)
	return err
}

func marshalRubric(keywords []string, weights map[string]float64) (string, string, error) {
	if keywords == nil {
		keywords = []string{}
	}
	if weights == nil {
		weights = map[string]float64{}
	}
	kw, err := json.Marshal(keywords)
	if err != nil {
		return "", "", err
	}
	w, err := json.Marshal(weights)
	if err != nil {
		return "", "", err
	}
	return string(kw), string(w), nil
}

func unmarshalRubric(keywords, weights string, q *model.Question) error {
	if err := json.Unmarshal([]byte(keywords), &q.Keywords); err != nil {
		return fmt.Errorf("question %d keywords: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(weights), &q.Weights); err != nil {
		return fmt.Errorf("question %d keyword weights: %w", q.ID, err)
	}
	if len(q.Keywords) == 0 {
		q.Keywords = nil
	}
	if len(q.Weights) == 0 {
		q.Weights = nil
	}
	return nil
}

// CreateAttempt starts a new attempt on a quiz.
func (s *Store) CreateAttempt(quizID int64, student string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO attempts (quiz_id, student, status, started_at) VALUES (?, ?, 'in_progress', ?)`,
		quizID, student, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(id int64) (model.Attempt, error) {
	var a model.Attempt
	err := s.db.QueryRow(
		`SELECT id, quiz_id, student, status, started_at, submitted_at FROM attempts WHERE id = ?`, id,
	).Scan(&a.ID, &a.QuizID, &a.Student, &a.Status, &a.StartedAt, &a.SubmittedAt)
	return a, err
}

// UpdateAttemptStatus updates the attempt status, stamping submission time.
func (s *Store) UpdateAttemptStatus(id int64, status model.AttemptStatus) error {
	query := `UPDATE attempts SET status = ? WHERE id = ?`
	args := []any{status, id}
	if status == model.AttemptSubmitted {
		query = `UPDATE attempts SET status = ?, submitted_at = ? WHERE id = ?`
		args = []any{status, time.Now(), id}
	}
	_, err := s.db.Exec(query, args...)
	return err
}

// UpsertAnswer inserts or replaces the graded answer for one question of an
// attempt. Re-answering a question overwrites the previous grading.
func (s *Store) UpsertAnswer(a model.Answer) (int64, error) {
	// RETURNING rather than LastInsertId: the update path of an upsert does
	// not advance last_insert_rowid, so Exec would report a stale row ID.
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO answers (attempt_id, question_id, response, score, max_score, percentage,
		 is_correct, needs_review, graded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(attempt_id, question_id) DO UPDATE SET
		 response = excluded.response, score = excluded.score, max_score = excluded.max_score,
		 percentage = excluded.percentage, is_correct = excluded.is_correct,
		 needs_review = excluded.needs_review, graded_at = excluded.graded_at
		 RETURNING id`,
		a.AttemptID, a.QuestionID, a.Response, a.Score, a.MaxScore, a.Percentage,
		a.IsCorrect, a.NeedsReview, time.Now(),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const answerColumns = `id, attempt_id, question_id, response, score, max_score, percentage,
	is_correct, needs_review, teacher_score, graded_at`

func scanAnswer(row interface{ Scan(...any) error }) (model.Answer, error) {
	var a model.Answer
	err := row.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.Response, &a.Score, &a.MaxScore,
		&a.Percentage, &a.IsCorrect, &a.NeedsReview, &a.TeacherScore, &a.GradedAt)
	return a, err
}

// GetAnswer returns an answer by ID.
func (s *Store) GetAnswer(id int64) (model.Answer, error) {
	return scanAnswer(s.db.QueryRow(`SELECT `+answerColumns+` FROM answers WHERE id = ?`, id))
}

// GetAnswersForAttempt returns all answers of an attempt.
func (s *Store) GetAnswersForAttempt(attemptID int64) ([]model.Answer, error) {
	rows, err := s.db.Query(`SELECT `+answerColumns+` FROM answers WHERE attempt_id = ? ORDER BY id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// ListAnswersNeedingReview returns flagged answers awaiting a teacher score.
func (s *Store) ListAnswersNeedingReview() ([]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT ` + answerColumns + ` FROM answers WHERE needs_review = 1 AND teacher_score IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// SetTeacherScore records a manual-review score for an answer.
func (s *Store) SetTeacherScore(answerID int64, score float64) error {
	_, err := s.db.Exec(`UPDATE answers SET teacher_score = ? WHERE id = ?`, score, answerID)
	return err
}

// GetQuizView builds a quiz with its ordered questions.
func (s *Store) GetQuizView(quizID int64) (*model.QuizView, error) {
	quiz, err := s.GetQuiz(quizID)
	if err != nil {
		return nil, err
	}
	questions, err := s.GetQuestionsForQuiz(quizID)
	if err != nil {
		return nil, err
	}
	return &model.QuizView{Quiz: quiz, Questions: questions}, nil
}

// GetAttemptView builds a full view of an attempt with graded answers.
func (s *Store) GetAttemptView(attemptID int64) (*model.AttemptView, error) {
	attempt, err := s.GetAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.GetQuiz(attempt.QuizID)
	if err != nil {
		return nil, err
	}
	answers, err := s.GetAnswersForAttempt(attemptID)
	if err != nil {
		return nil, err
	}

	var views []model.AnswerView
	for _, a := range answers {
		q, err := s.GetQuestion(a.QuestionID)
		if err != nil {
			return nil, err
		}
		views = append(views, model.AnswerView{Answer: a, Question: q})
	}

	return &model.AttemptView{Attempt: attempt, Quiz: quiz, Answers: views}, nil
}

// QuizCount returns the number of quizzes in the database.
func (s *Store) QuizCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM quizzes`).Scan(&count)
	return count, err
}
