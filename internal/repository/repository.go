package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"assignhub/internal/model"
)

var (
	ErrDuplicateUsername = errors.New("username already taken")
	ErrAlreadyDecided    = errors.New("assignment already decided")
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateAccount(ctx context.Context, username, passwordHash, role string) (model.Account, error) {
	account := model.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, account.ID, account.Username, account.PasswordHash, account.Role, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.Account{}, ErrDuplicateUsername
		}
		return model.Account{}, err
	}
	return account, nil
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (model.Account, error) {
	var account model.Account
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM accounts
		WHERE username = $1
	`, username)
	err := row.Scan(&account.ID, &account.Username, &account.PasswordHash, &account.Role, &account.CreatedAt)
	return account, err
}

func (s *Store) GetAccountByID(ctx context.Context, accountID string) (model.Account, error) {
	var account model.Account
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM accounts
		WHERE id = $1
	`, accountID)
	err := row.Scan(&account.ID, &account.Username, &account.PasswordHash, &account.Role, &account.CreatedAt)
	return account, err
}

func (s *Store) ListAccountsByRole(ctx context.Context, role string) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM accounts
		WHERE role = $1
		ORDER BY created_at
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var account model.Account
		if err := rows.Scan(&account.ID, &account.Username, &account.PasswordHash, &account.Role, &account.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *Store) CreateAssignment(ctx context.Context, submitterID, task, assigneeAdminID string) (model.Assignment, error) {
	assignment := model.Assignment{
		ID:              uuid.NewString(),
		SubmitterID:     submitterID,
		Task:            task,
		AssigneeAdminID: assigneeAdminID,
		Status:          "pending",
		CreatedAt:       time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assignments (id, submitter_id, task, assignee_admin_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, assignment.ID, assignment.SubmitterID, assignment.Task, assignment.AssigneeAdminID, assignment.Status, assignment.CreatedAt)
	if err != nil {
		return model.Assignment{}, err
	}
	return assignment, nil
}

func (s *Store) GetAssignment(ctx context.Context, assignmentID string) (model.Assignment, error) {
	var assignment model.Assignment
	row := s.pool.QueryRow(ctx, `
		SELECT id, submitter_id, task, assignee_admin_id, status, created_at, decided_at
		FROM assignments
		WHERE id = $1
	`, assignmentID)
	err := row.Scan(
		&assignment.ID,
		&assignment.SubmitterID,
		&assignment.Task,
		&assignment.AssigneeAdminID,
		&assignment.Status,
		&assignment.CreatedAt,
		&assignment.DecidedAt,
	)
	return assignment, err
}

func (s *Store) ListAssignmentsForAdmin(ctx context.Context, adminID string) ([]model.AssignmentWithSubmitter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.submitter_id, a.task, a.assignee_admin_id, a.status, a.created_at, a.decided_at, u.username
		FROM assignments a
		JOIN accounts u ON u.id = a.submitter_id
		WHERE a.assignee_admin_id = $1
		ORDER BY a.created_at
	`, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []model.AssignmentWithSubmitter
	for rows.Next() {
		var a model.AssignmentWithSubmitter
		if err := rows.Scan(
			&a.ID,
			&a.SubmitterID,
			&a.Task,
			&a.AssigneeAdminID,
			&a.Status,
			&a.CreatedAt,
			&a.DecidedAt,
			&a.SubmitterUsername,
		); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// DecideAssignment moves a pending assignment to accepted or rejected. The
// transition is guarded in the statement itself: a row that is no longer
// pending is not touched, and the caller gets ErrAlreadyDecided instead.
func (s *Store) DecideAssignment(ctx context.Context, assignmentID, status string) (model.Assignment, error) {
	var assignment model.Assignment
	row := s.pool.QueryRow(ctx, `
		UPDATE assignments
		SET status = $2, decided_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING id, submitter_id, task, assignee_admin_id, status, created_at, decided_at
	`, assignmentID, status, time.Now().UTC())
	err := row.Scan(
		&assignment.ID,
		&assignment.SubmitterID,
		&assignment.Task,
		&assignment.AssigneeAdminID,
		&assignment.Status,
		&assignment.CreatedAt,
		&assignment.DecidedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		_, getErr := s.GetAssignment(ctx, assignmentID)
		switch {
		case getErr == nil:
			return model.Assignment{}, ErrAlreadyDecided
		case errors.Is(getErr, pgx.ErrNoRows):
			return model.Assignment{}, pgx.ErrNoRows
		default:
			return model.Assignment{}, getErr
		}
	}
	return assignment, err
}
