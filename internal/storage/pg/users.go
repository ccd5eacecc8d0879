package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"library-backend/internal/models"
	"library-backend/internal/storage"
)

var userColumns = []any{"id", "name", "email"}

// ListUsers returns all users ordered by id
func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	query, args, err := toSQL(s.builder.
		From(tableUsers).
		Select(userColumns...).
		Order(goqu.C("id").Asc()).
		Prepared(true))
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.User])
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return users, nil
}

// GetUser retrieves a user by id
func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query, args, err := toSQL(s.builder.
		From(tableUsers).
		Select(userColumns...).
		Where(goqu.C("id").Eq(id)).
		Prepared(true))
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.User])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a new user and populates user.ID
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	query, args, err := toSQL(s.builder.
		Insert(tableUsers).
		Rows(goqu.Record{"name": user.Name, "email": user.Email}).
		Returning("id").
		Prepared(true))
	if err != nil {
		return err
	}

	id, err := s.queries().insertReturningID(ctx, query, args)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = id
	return nil
}

// UpdateUser overwrites an existing user
func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	query, args, err := toSQL(s.builder.
		Update(tableUsers).
		Set(goqu.Record{"name": user.Name, "email": user.Email}).
		Where(goqu.C("id").Eq(user.ID)).
		Prepared(true))
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteUser removes a user unless borrow records reference them
func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, tableUsers, id)
}
