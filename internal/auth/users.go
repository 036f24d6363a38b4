package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// User is a dashboard account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserStore persists users.
type UserStore interface {
	Create(ctx context.Context, user User) (User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// UserRepository stores users in SQLite.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository constructs a user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	if db == nil {
		return nil
	}
	return &UserRepository{db: db}
}

// EnsureSchema creates the users table when missing.
func (r *UserRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("user repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	name TEXT,
	role TEXT NOT NULL DEFAULT 'viewer',
	created_at TIMESTAMP NOT NULL
)`)
	return err
}

// Create inserts a user. Emails are unique case-insensitively.
func (r *UserRepository) Create(ctx context.Context, user User) (User, error) {
	if r == nil || r.db == nil {
		return User{}, errors.New("user repo: nil db")
	}
	user.Email = normalizeEmail(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	existing, err := r.FindByEmail(ctx, user.Email)
	if err != nil {
		return User{}, err
	}
	if existing != nil {
		return User{}, ErrUserExists
	}

	var name sql.NullString
	if user.Name != "" {
		name = sql.NullString{String: user.Name, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO users (email, password_hash, name, role, created_at)
VALUES (?, ?, ?, ?, ?)`, user.Email, user.PasswordHash, name, string(user.Role), user.CreatedAt)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return User{}, ErrUserExists
		}
		return User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	user.ID = id
	return user, nil
}

// FindByEmail returns nil when no user matches.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("user repo: nil db")
	}
	var (
		u    User
		name sql.NullString
		role string
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, email, password_hash, name, role, created_at
FROM users
WHERE email = ?`, normalizeEmail(email)).Scan(&u.ID, &u.Email, &u.PasswordHash, &name, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	u.Role, _ = NormalizeRole(role)
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
