package pool

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qbank/internal/auth"
	"qbank/internal/question"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrPoolNotFound = errors.New("question pool not found")
	ErrForbidden    = errors.New("pool access forbidden")
)

const maxBatchSize = 500

type Service struct {
	db *sql.DB
}

type Pool struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	OwnerID       int64     `json:"owner_id"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CreatePoolInput struct {
	Name        string
	Description string
	OwnerID     int64
}

type Question struct {
	ID            int64               `json:"id"`
	PoolID        int64               `json:"pool_id"`
	Position      int                 `json:"position"`
	Stem          string              `json:"stem"`
	Options       []question.Option   `json:"options"`
	CorrectAnswer string              `json:"correct_answer"`
	Explanation   string              `json:"explanation"`
	Difficulty    question.Difficulty `json:"difficulty"`
	CreatedBy     *int64              `json:"created_by,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) CreatePool(ctx context.Context, in CreatePoolInput) (*Pool, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len([]rune(name)) > 200 {
		return nil, fmt.Errorf("%w: name is too long", ErrInvalidInput)
	}
	if in.OwnerID <= 0 {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}

	var out Pool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO question_pools (name, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, name, description, owner_id, created_at, updated_at
	`, name, strings.TrimSpace(in.Description), in.OwnerID).Scan(
		&out.ID, &out.Name, &out.Description, &out.OwnerID, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pool: %w", err)
	}
	return &out, nil
}

// ListPools returns every pool when ownerID is nil.
func (s *Service) ListPools(ctx context.Context, ownerID *int64) ([]Pool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.description, p.owner_id, p.created_at, p.updated_at,
			(SELECT COUNT(*) FROM pool_questions q WHERE q.pool_id = p.id)
		FROM question_pools p
		WHERE ($1::bigint IS NULL OR p.owner_id = $1)
		ORDER BY p.created_at DESC, p.id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	out := make([]Pool, 0)
	for rows.Next() {
		var p Pool
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt, &p.QuestionCount); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pools: %w", err)
	}
	return out, nil
}

func (s *Service) GetPool(ctx context.Context, id int64) (*Pool, error) {
	var p Pool
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.name, p.description, p.owner_id, p.created_at, p.updated_at,
			(SELECT COUNT(*) FROM pool_questions q WHERE q.pool_id = p.id)
		FROM question_pools p
		WHERE p.id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt, &p.QuestionCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPoolNotFound
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return &p, nil
}

// Authorize allows the pool owner and admins.
func (s *Service) Authorize(ctx context.Context, poolID int64, user *auth.User) error {
	if user == nil {
		return ErrForbidden
	}
	p, err := s.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if user.Role != auth.RoleAdmin && p.OwnerID != user.ID {
		return ErrForbidden
	}
	return nil
}

// SaveBatch appends all items to the pool in one transaction. Either every
// item is stored or none is.
func (s *Service) SaveBatch(ctx context.Context, poolID int64, items []question.ApprovedQuestion) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: batch is empty", ErrInvalidInput)
	}
	if len(items) > maxBatchSize {
		return fmt.Errorf("%w: batch exceeds %d questions", ErrInvalidInput, maxBatchSize)
	}
	for i, it := range items {
		if err := question.ValidateApproved(it); err != nil {
			return fmt.Errorf("%w: questions[%d]: %v", ErrInvalidInput, i, err)
		}
	}

	var createdBy any
	if u, ok := auth.CurrentUser(ctx); ok && u.ID > 0 {
		createdBy = u.ID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM question_pools WHERE id = $1 FOR UPDATE
	`, poolID).Scan(&lockedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPoolNotFound
		}
		return fmt.Errorf("lock pool: %w", err)
	}

	var nextPos int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), 0) FROM pool_questions WHERE pool_id = $1
	`, poolID).Scan(&nextPos); err != nil {
		return fmt.Errorf("load max position: %w", err)
	}

	for _, it := range items {
		nextPos++
		opts, err := json.Marshal(it.Options)
		if err != nil {
			return fmt.Errorf("encode options: %w", err)
		}
		difficulty, _ := question.ParseDifficulty(string(it.Difficulty))
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pool_questions (
				pool_id, position, stem, options, correct_answer, explanation, difficulty, created_by, created_at
			) VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, now())
		`, poolID, nextPos, strings.TrimSpace(it.Stem), string(opts), it.CorrectAnswer, strings.TrimSpace(it.Explanation), string(difficulty), createdBy); err != nil {
			return fmt.Errorf("insert pool question: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE question_pools SET updated_at = now() WHERE id = $1`, poolID); err != nil {
		return fmt.Errorf("touch pool: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Service) ListQuestions(ctx context.Context, poolID int64) ([]Question, error) {
	if _, err := s.GetPool(ctx, poolID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pool_id, position, stem, options, correct_answer, explanation, difficulty, created_by, created_at
		FROM pool_questions
		WHERE pool_id = $1
		ORDER BY position ASC, id ASC
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("list pool questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0)
	for rows.Next() {
		var (
			q         Question
			rawOpts   []byte
			createdBy sql.NullInt64
		)
		if err := rows.Scan(&q.ID, &q.PoolID, &q.Position, &q.Stem, &rawOpts, &q.CorrectAnswer, &q.Explanation, &q.Difficulty, &createdBy, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pool question: %w", err)
		}
		if err := json.Unmarshal(rawOpts, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options for question %d: %w", q.ID, err)
		}
		if createdBy.Valid {
			v := createdBy.Int64
			q.CreatedBy = &v
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool questions: %w", err)
	}
	return out, nil
}
