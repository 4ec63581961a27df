// Package keystore persists tests, reference answer keys, and completed
// evaluation reports in SQLite.
package keystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/gradesheet/internal/model"

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
	CREATE TABLE IF NOT EXISTS tests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_id INTEGER NOT NULL,
		idx INTEGER NOT NULL,
		max_marks INTEGER NOT NULL,
		type TEXT NOT NULL DEFAULT 'short_answer',
		UNIQUE (test_id, idx),
		FOREIGN KEY (test_id) REFERENCES tests(id)
	);

	CREATE TABLE IF NOT EXISTS reference_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_id INTEGER NOT NULL,
		idx INTEGER NOT NULL,
		model_text TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '[]',
		explanation TEXT NOT NULL DEFAULT '',
		UNIQUE (test_id, idx),
		FOREIGN KEY (test_id) REFERENCES tests(id)
	);

	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		test_id INTEGER NOT NULL,
		total_marks INTEGER NOT NULL,
		obtained_marks INTEGER NOT NULL,
		percentage REAL NOT NULL,
		grade TEXT NOT NULL,
		overall_feedback TEXT NOT NULL DEFAULT '',
		strengths TEXT NOT NULL DEFAULT '[]',
		improvements TEXT NOT NULL DEFAULT '[]',
		question_results TEXT NOT NULL DEFAULT '[]',
		answered_count INTEGER NOT NULL DEFAULT 0,
		skipped_count INTEGER NOT NULL DEFAULT 0,
		mean_confidence REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (test_id) REFERENCES tests(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateTest stores a test together with its question specs and reference
// answers in one transaction.
func (s *Store) CreateTest(t model.Test, specs []model.QuestionSpec, refs []model.ReferenceAnswer) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO tests (title, subject, created_at) VALUES (?, ?, ?)`,
		t.Title, t.Subject, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	testID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, q := range specs {
		_, err := tx.Exec(
			`INSERT INTO questions (test_id, idx, max_marks, type) VALUES (?, ?, ?, ?)`,
			testID, q.Index, q.MaxMarks, q.Type,
		)
		if err != nil {
			return 0, fmt.Errorf("insert question %d: %w", q.Index, err)
		}
	}

	for _, r := range refs {
		keywords, err := json.Marshal(r.Keywords)
		if err != nil {
			return 0, fmt.Errorf("marshal keywords for question %d: %w", r.QuestionIndex, err)
		}
		_, err = tx.Exec(
			`INSERT INTO reference_answers (test_id, idx, model_text, keywords, explanation) VALUES (?, ?, ?, ?, ?)`,
			testID, r.QuestionIndex, r.ModelText, string(keywords), r.Explanation,
		)
		if err != nil {
			return 0, fmt.Errorf("insert reference for question %d: %w", r.QuestionIndex, err)
		}
	}

	return testID, tx.Commit()
}

// GetTest returns a test by ID.
func (s *Store) GetTest(id int64) (model.Test, error) {
	var t model.Test
	err := s.db.QueryRow(
		`SELECT id, title, subject, created_at FROM tests WHERE id = ?`, id,
	).Scan(&t.ID, &t.Title, &t.Subject, &t.CreatedAt)
	return t, err
}

// ListTests returns all tests, newest first.
func (s *Store) ListTests() ([]model.Test, error) {
	rows, err := s.db.Query(`SELECT id, title, subject, created_at FROM tests ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tests []model.Test
	for rows.Next() {
		var t model.Test
		if err := rows.Scan(&t.ID, &t.Title, &t.Subject, &t.CreatedAt); err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// GetReference returns the question specs and reference answers for a
// test, specs ordered by question index.
func (s *Store) GetReference(ctx context.Context, testID int64) (*model.ReferenceSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, max_marks, type FROM questions WHERE test_id = ? ORDER BY idx`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := &model.ReferenceSet{
		TestID:  testID,
		Answers: make(map[int]model.ReferenceAnswer),
	}
	for rows.Next() {
		var q model.QuestionSpec
		if err := rows.Scan(&q.Index, &q.MaxMarks, &q.Type); err != nil {
			return nil, err
		}
		set.Specs = append(set.Specs, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(set.Specs) == 0 {
		return nil, fmt.Errorf("test %d not found or has no questions", testID)
	}

	refRows, err := s.db.QueryContext(ctx,
		`SELECT idx, model_text, keywords, explanation FROM reference_answers WHERE test_id = ? ORDER BY idx`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer refRows.Close()

	for refRows.Next() {
		var r model.ReferenceAnswer
		var keywords string
		if err := refRows.Scan(&r.QuestionIndex, &r.ModelText, &keywords, &r.Explanation); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(keywords), &r.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords for question %d: %w", r.QuestionIndex, err)
		}
		set.Answers[r.QuestionIndex] = r
	}
	return set, refRows.Err()
}

// SaveReport persists a completed evaluation report. Reports are
// append-only; re-evaluation inserts a new row under a new ID.
func (s *Store) SaveReport(r model.EvaluationReport) error {
	results, err := json.Marshal(r.QuestionResults)
	if err != nil {
		return fmt.Errorf("marshal question results: %w", err)
	}
	strengths, err := json.Marshal(r.Strengths)
	if err != nil {
		return err
	}
	improvements, err := json.Marshal(r.Improvements)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO evaluations
		 (id, test_id, total_marks, obtained_marks, percentage, grade,
		  overall_feedback, strengths, improvements, question_results,
		  answered_count, skipped_count, mean_confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TestID, r.TotalMarks, r.ObtainedMarks, r.Percentage, r.Grade,
		r.OverallFeedback, string(strengths), string(improvements), string(results),
		r.AnsweredCount, r.SkippedCount, r.MeanConfidence, r.CreatedAt,
	)
	return err
}

// GetReport returns a stored report by ID, or nil if absent.
func (s *Store) GetReport(id string) (*model.EvaluationReport, error) {
	row := s.db.QueryRow(
		`SELECT id, test_id, total_marks, obtained_marks, percentage, grade,
		        overall_feedback, strengths, improvements, question_results,
		        answered_count, skipped_count, mean_confidence, created_at
		 FROM evaluations WHERE id = ?`, id,
	)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListReports returns stored reports, newest first. testID 0 lists all.
func (s *Store) ListReports(testID int64) ([]model.EvaluationReport, error) {
	query := `SELECT id, test_id, total_marks, obtained_marks, percentage, grade,
	                 overall_feedback, strengths, improvements, question_results,
	                 answered_count, skipped_count, mean_confidence, created_at
	          FROM evaluations`
	var args []any
	if testID > 0 {
		query += ` WHERE test_id = ?`
		args = append(args, testID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.EvaluationReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*model.EvaluationReport, error) {
	var r model.EvaluationReport
	var strengths, improvements, results string
	err := row.Scan(
		&r.ID, &r.TestID, &r.TotalMarks, &r.ObtainedMarks, &r.Percentage, &r.Grade,
		&r.OverallFeedback, &strengths, &improvements, &results,
		&r.AnsweredCount, &r.SkippedCount, &r.MeanConfidence, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(strengths), &r.Strengths); err != nil {
		return nil, fmt.Errorf("decode strengths: %w", err)
	}
	if err := json.Unmarshal([]byte(improvements), &r.Improvements); err != nil {
		return nil, fmt.Errorf("decode improvements: %w", err)
	}
	if err := json.Unmarshal([]byte(results), &r.QuestionResults); err != nil {
		return nil, fmt.Errorf("decode question results: %w", err)
	}
	return &r, nil
}

// TestCount returns the number of tests in the database.
func (s *Store) TestCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tests`).Scan(&count)
	return count, err
}

// GetImportedFileHash returns the recorded content hash for a test-bank
// file, or empty string if the file was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the content hash for a test-bank file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = ?`,
		path, hash, hash,
	)
	return err
}
