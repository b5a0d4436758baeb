package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// UserStore defines the interface for account persistence.
type UserStore interface {
	// Insert creates a user and returns its id.
	Insert(ctx context.Context, user *User) (int64, error)
	// GetByUsername gets a user by username. Returns ErrNotFound if absent.
	GetByUsername(ctx context.Context, username string) (*User, error)
	// GetByEmail gets a user by email. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetByID gets a user by id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*User, error)
	// Update persists changes to a user's profile fields. Returns
	// ErrNotFound if the user does not exist.
	Update(ctx context.Context, user *User) error
}

// UserRepo provides methods for user operations.
// It implements the UserStore interface.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Insert creates a user and returns its id.
func (r *UserRepo) Insert(ctx context.Context, user *User) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, full_name) VALUES (?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, user.FullName,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get user id: %w", err)
	}
	return id, nil
}

const userColumns = `id, username, email, password_hash, full_name, created_at`

func (r *UserRepo) getBy(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	err := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// GetByUsername gets a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getBy(ctx, "username = ?", username)
}

// GetByEmail gets a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, "email = ?", email)
}

// GetByID gets a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.getBy(ctx, "id = ?", id)
}

// Update persists changes to a user's profile fields.
func (r *UserRepo) Update(ctx context.Context, user *User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = ?, full_name = ? WHERE id = ?`,
		user.Email, user.FullName, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
