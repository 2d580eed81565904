package user

import (
	"context"
	"database/sql"
	"errors"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	query := `INSERT INTO users (user_id, username, password, avatar, role, tag, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		user.UserID, user.Username, user.Password, user.Avatar, user.Role, user.Tag, user.CreateTime)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := `SELECT user_id, username, password, avatar, role, tag, created_at
	          FROM users WHERE username = $1`

	err := r.db.QueryRowContext(ctx, query, username).
		Scan(&u.UserID, &u.Username, &u.Password, &u.Avatar, &u.Role, &u.Tag, &u.CreateTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("user not found")
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, userID string) (*User, error) {
	u := &User{}
	query := `SELECT user_id, username, avatar, role, tag, created_at
	          FROM users WHERE user_id = $1`

	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&u.UserID, &u.Username, &u.Avatar, &u.Role, &u.Tag, &u.CreateTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return u, nil
}

// GetUsersByIDs resolves a batch of ids with point lookups; unknown ids
// are skipped rather than failing the whole batch.
func (r *Repository) GetUsersByIDs(ctx context.Context, userIDs []string) ([]User, error) {
	var users []User
	for _, id := range userIDs {
		u, err := r.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT user_id, username, avatar, role, tag, created_at
	      FROM users WHERE username ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UserID, &u.Username, &u.Avatar, &u.Role, &u.Tag, &u.CreateTime); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
