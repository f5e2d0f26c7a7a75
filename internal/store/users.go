package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zakupki-realty/internal/model"
)

func (s *SQLiteStore) CreateUser(ctx context.Context, email, role string) (*model.User, error) {
	if role == "" {
		role = "admin"
	}
	u := &model.User{Email: email, Role: role, CreatedAt: time.Now().UTC()}
	return doVal(ctx, s, "create_user", func(ctx context.Context) (*model.User, error) {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO users (email, role, created_at) VALUES (?, ?, ?)`, u.Email, u.Role, u.CreatedAt)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: create user %s", email)
		}
		u.ID, err = res.LastInsertId()
		return u, eris.Wrap(err, "sqlite: last insert id")
	})
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return doVal(ctx, s, "get_user", func(ctx context.Context) (*model.User, error) {
		var u model.User
		err := s.db.GetContext(ctx, &u, `SELECT id, email, role, created_at FROM users WHERE id = ?`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: get user %d", id)
		}
		return &u, nil
	})
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]model.User, error) {
	return doVal(ctx, s, "list_users", func(ctx context.Context) ([]model.User, error) {
		var users []model.User
		err := s.db.SelectContext(ctx, &users, `SELECT id, email, role, created_at FROM users ORDER BY id`)
		return users, eris.Wrap(err, "sqlite: list users")
	})
}
