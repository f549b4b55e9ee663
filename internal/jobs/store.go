// Package jobs keeps web UI generation jobs in sqlite and runs them one at a
// time in the background.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var ErrJobNotFound = errors.New("job not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the job will not change any more.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Job struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Emotion   string    `json:"emotion"`
	Style     string    `json:"style"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const schema = `CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	prompt TEXT NOT NULL,
	emotion TEXT NOT NULL,
	style TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	output TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

const columns = "id, prompt, emotion, style, status, message, output, error, created_at, updated_at"

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// sqlite пишет одним соединением
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create jobs table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, prompt, emotion, style string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Emotion:   emotion,
		Style:     style,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO jobs ("+columns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		job.ID, job.Prompt, job.Emotion, job.Style, job.Status, "", "", "", job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var status string
	if err := row.Scan(&j.ID, &j.Prompt, &j.Emotion, &j.Style, &status, &j.Message, &j.Output, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = Status(status)
	return &j, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// List returns jobs newest first.
func (s *Store) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+columns+" FROM jobs ORDER BY created_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	args = append([]any{time.Now().UTC()}, args...)
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, "UPDATE jobs SET updated_at = ?, "+query+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *Store) SetRunning(ctx context.Context, id string) error {
	return s.update(ctx, id, "status = ?, message = ?", StatusRunning, "started")
}

func (s *Store) SetMessage(ctx context.Context, id, message string) error {
	return s.update(ctx, id, "message = ?", message)
}

func (s *Store) Complete(ctx context.Context, id, output string) error {
	return s.update(ctx, id, "status = ?, output = ?, message = ?", StatusCompleted, output, "done")
}

func (s *Store) Fail(ctx context.Context, id string, jobErr error) error {
	return s.update(ctx, id, "status = ?, error = ?", StatusFailed, jobErr.Error())
}

// Recover помечает упавшими задачи, прерванные остановкой сервера, и
// возвращает ожидающие, чтобы поставить их в очередь заново.
func (s *Store) Recover(ctx context.Context) ([]string, error) {
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE status = ?",
		StatusFailed, "interrupted by server restart", time.Now().UTC(), StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("recover jobs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM jobs WHERE status = ? ORDER BY created_at, rowid", StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
