package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/types"
)

const operatorColumns = `id, email, name, role, password_hash, created_at`

func scanOperator(row pgx.Row) (*types.Operator, error) {
	var (
		op   types.Operator
		role string
	)
	if err := row.Scan(&op.ID, &op.Email, &op.Name, &role, &op.PasswordHash, &op.CreatedAt); err != nil {
		return nil, err
	}
	op.Role = types.Capability(role)
	return &op, nil
}

// CreateOperator inserts an operator. A duplicate email is a conflict.
func (db *DB) CreateOperator(ctx context.Context, op *types.Operator) error {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO operators (id, email, name, role, password_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		op.ID, op.Email, op.Name, string(op.Role), op.PasswordHash,
	).Scan(&op.CreatedAt)
	if isUniqueViolation(err) {
		return &apperrors.ConflictError{Message: fmt.Sprintf("operator already exists: %s", op.Email)}
	}
	if err != nil {
		return fmt.Errorf("failed to create operator: %w", err)
	}
	return nil
}

// GetOperator returns an operator by ID.
func (db *DB) GetOperator(ctx context.Context, id uuid.UUID) (*types.Operator, error) {
	op, err := scanOperator(db.pool.QueryRow(ctx,
		`SELECT `+operatorColumns+` FROM operators WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Entity: "operator", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}
	return op, nil
}

// GetOperatorByEmail returns an operator by email address.
func (db *DB) GetOperatorByEmail(ctx context.Context, email string) (*types.Operator, error) {
	op, err := scanOperator(db.pool.QueryRow(ctx,
		`SELECT `+operatorColumns+` FROM operators WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &apperrors.NotFoundError{Entity: "operator", ID: email}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator by email: %w", err)
	}
	return op, nil
}
