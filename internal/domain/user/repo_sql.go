package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ehr/mockserver/internal/platform/db"
)

type repoSQL struct {
	store *db.Store
}

func NewRepo(store *db.Store) Repository {
	return &repoSQL{store: store}
}

func (r *repoSQL) ph(n int) string {
	return r.store.Dialect.Placeholder(n)
}

func (r *repoSQL) Create(ctx context.Context, u *User) error {
	err := r.store.DB.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO users (name, email) VALUES (%s, %s) RETURNING id`, r.ph(1), r.ph(2)),
		u.Name, u.Email).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("user create: %w", err)
	}
	return nil
}

func (r *repoSQL) Get(ctx context.Context, id int64) (*User, error) {
	var u User
	err := r.store.DB.QueryRowContext(ctx,
		`SELECT id, name, email FROM users WHERE id = `+r.ph(1), id).Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user get: %w", err)
	}
	return &u, nil
}

func (r *repoSQL) List(ctx context.Context) ([]*User, error) {
	rows, err := r.store.DB.QueryContext(ctx, `SELECT id, name, email FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("user list: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("user list: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (r *repoSQL) Update(ctx context.Context, u *User) error {
	res, err := r.store.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET name = %s, email = %s WHERE id = %s`, r.ph(1), r.ph(2), r.ph(3)),
		u.Name, u.Email, u.ID)
	if err != nil {
		return fmt.Errorf("user update: %w", err)
	}
	return requireRow(res)
}

func (r *repoSQL) Delete(ctx context.Context, id int64) error {
	res, err := r.store.DB.ExecContext(ctx, `DELETE FROM users WHERE id = `+r.ph(1), id)
	if err != nil {
		return fmt.Errorf("user delete: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
