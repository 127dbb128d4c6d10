package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"docbase.org/internal/identity"
	"docbase.org/internal/ids"
)

func (s *Store) CreateUser(ctx context.Context, name, email, passwordHash string) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var u identity.User
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, name, email, password_hash)
		values ($1, $2, $3, $4)
		returning id, name, email, password_hash, created_at, updated_at
	`, ids.New(), name, email, passwordHash)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.User{}, identity.ErrConflict
		}
		return identity.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var u identity.User
	err := s.db.QueryRowContext(ctx, `
		select id, name, email, password_hash, created_at, updated_at
		from users
		where id = $1
	`, userID).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	return u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var u identity.User
	err := s.db.QueryRowContext(ctx, `
		select id, name, email, password_hash, created_at, updated_at
		from users
		where email = $1
	`, email).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]identity.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, email, password_hash, created_at, updated_at
		from users
		order by email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []identity.User
	for rows.Next() {
		var u identity.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, userID string, upd identity.UserUpdate) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.Password != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.Password)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, userID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return identity.User{}, identity.ErrConflict
			}
			return identity.User{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return identity.User{}, err
		}
		if aff == 0 {
			return identity.User{}, identity.ErrNotFound
		}
	}
	return s.GetUser(ctx, userID)
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from password_resets where user_id = $1`, userID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from users where id = $1`, userID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return identity.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `select 1 from users where id = $1`, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) ReplaceResetToken(ctx context.Context, reset identity.PasswordReset) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from password_resets where user_id = $1`, reset.UserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into password_resets (id, user_id, token, created_at, expires_at)
		values ($1, $2, $3, $4, $5)
	`, reset.ID, reset.UserID, reset.Token, reset.CreatedAt, reset.ExpiresAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return identity.ErrNotFound
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) ConsumeResetToken(ctx context.Context, token string, now time.Time) (string, error) {
	if s.db == nil {
		return "", errors.New("database connection unavailable")
	}
	var userID string
	err := s.db.QueryRowContext(ctx, `
		delete from password_resets
		where token = $1 and expires_at > $2
		returning user_id
	`, token, now).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", identity.ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}
