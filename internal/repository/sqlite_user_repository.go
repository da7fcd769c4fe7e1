package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quicknotes/internal/domain"
)

type sqliteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) UserRepository {
	return &sqliteUserRepository{db: db}
}

const userColumns = `id, username, email, password, use_case, created_at, updated_at`

func (r *sqliteUserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.Password,
		user.UseCase, toUnix(user.CreatedAt), toUnix(user.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *sqliteUserRepository) findBy(ctx context.Context, column, value string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`

	var user domain.User
	var created, updated int64
	err := r.db.QueryRowContext(ctx, query, value).Scan(&user.ID, &user.Username, &user.Email,
		&user.Password, &user.UseCase, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user by %s: %w", column, err)
	}
	user.CreatedAt = fromUnix(created)
	user.UpdatedAt = fromUnix(updated)
	return &user, nil
}

func (r *sqliteUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findBy(ctx, "email", email)
}

func (r *sqliteUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findBy(ctx, "id", id)
}

func (r *sqliteUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findBy(ctx, "username", username)
}

func (r *sqliteUserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
	UPDATE users SET username = ?, email = ?, password = ?, use_case = ?, updated_at = ?
	WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query, user.Username, user.Email, user.Password,
		user.UseCase, toUnix(user.UpdatedAt), user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectOneRow(res)
}

func (r *sqliteUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return exists(r.FindByEmail(ctx, email))
}

func (r *sqliteUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return exists(r.FindByUsername(ctx, username))
}
