package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docbase.org/internal/ids"
	"docbase.org/internal/rbac"
)

func (s *Store) CreateRole(ctx context.Context, name, description string) (rbac.Role, error) {
	if s.db == nil {
		return rbac.Role{}, errors.New("database connection unavailable")
	}
	var (
		role rbac.Role
		desc sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning id, name, description, created_at
	`, ids.New(), name, nullIfEmpty(description))
	if err := row.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Role{}, rbac.ErrConflict
		}
		return rbac.Role{}, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (rbac.Role, error) {
	if s.db == nil {
		return rbac.Role{}, errors.New("database connection unavailable")
	}
	var (
		role rbac.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at
		from roles
		where id = $1
	`, roleID).Scan(&role.ID, &role.Name, &desc, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Role{}, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var (
			role rbac.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) UpdateRole(ctx context.Context, roleID string, upd rbac.RoleUpdate) (rbac.Role, error) {
	if s.db == nil {
		return rbac.Role{}, errors.New("database connection unavailable")
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
	if upd.Description != nil {
		if *upd.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
	}
	if len(sets) > 0 {
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, roleID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return rbac.Role{}, rbac.ErrConflict
			}
			return rbac.Role{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return rbac.Role{}, err
		}
		if aff == 0 {
			return rbac.Role{}, rbac.ErrNotFound
		}
	}
	return s.GetRole(ctx, roleID)
}

// DeleteRole removes the role together with its grants and memberships.
// The cascade is explicit so the transaction spells out exactly what goes.
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from user_roles where role_id = $1`, roleID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) (rbac.Membership, error) {
	if s.db == nil {
		return rbac.Membership{}, errors.New("database connection unavailable")
	}
	var m rbac.Membership
	err := s.db.QueryRowContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		returning user_id, role_id, created_at
	`, userID, roleID).Scan(&m.UserID, &m.RoleID, &m.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return rbac.Membership{}, rbac.ErrConflict
			case pgErrForeignKeyViolation:
				return rbac.Membership{}, rbac.ErrNotFound
			}
		}
		return rbac.Membership{}, err
	}
	return m, nil
}

func (s *Store) RemoveRole(ctx context.Context, userID, roleID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func (s *Store) MembershipsForUser(ctx context.Context, userID string) ([]rbac.Membership, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role_id, created_at
		from user_roles
		where user_id = $1
		order by role_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []rbac.Membership
	for rows.Next() {
		var m rbac.Membership
		if err := rows.Scan(&m.UserID, &m.RoleID, &m.CreatedAt); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memberships, nil
}

// UpsertGrant keeps at most one permissions row per (role, entity) pair and
// replaces the flags wholesale on conflict.
func (s *Store) UpsertGrant(ctx context.Context, grant rbac.Grant) (rbac.Grant, error) {
	if s.db == nil {
		return rbac.Grant{}, errors.New("database connection unavailable")
	}
	var out rbac.Grant
	err := s.db.QueryRowContext(ctx, `
		insert into permissions (id, role_id, table_id, can_create, can_read, can_update, can_delete)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (role_id, table_id) do update
		set can_create = excluded.can_create,
		    can_read   = excluded.can_read,
		    can_update = excluded.can_update,
		    can_delete = excluded.can_delete
		returning role_id, table_id, can_create, can_read, can_update, can_delete
	`, ids.New(), grant.RoleID, grant.EntityID, grant.Create, grant.Read, grant.Update, grant.Delete).
		Scan(&out.RoleID, &out.EntityID, &out.Create, &out.Read, &out.Update, &out.Delete)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return rbac.Grant{}, rbac.ErrNotFound
		}
		return rbac.Grant{}, err
	}
	return out, nil
}

func (s *Store) GrantsForRole(ctx context.Context, roleID string) ([]rbac.Grant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select role_id, table_id, can_create, can_read, can_update, can_delete
		from permissions
		where role_id = $1
		order by table_id
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []rbac.Grant
	for rows.Next() {
		var g rbac.Grant
		if err := rows.Scan(&g.RoleID, &g.EntityID, &g.Create, &g.Read, &g.Update, &g.Delete); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// GrantsFor reduces the user's role grants on one entity with bool_or, so
// the result does not depend on row order. No rows reduce to all-false.
func (s *Store) GrantsFor(ctx context.Context, userID, entityID string) (rbac.Grant, error) {
	if s.db == nil {
		return rbac.Grant{}, errors.New("database connection unavailable")
	}
	var g rbac.Grant
	err := s.db.QueryRowContext(ctx, `
		select coalesce(bool_or(p.can_create), false),
		       coalesce(bool_or(p.can_read), false),
		       coalesce(bool_or(p.can_update), false),
		       coalesce(bool_or(p.can_delete), false)
		from user_roles ur
		join permissions p on p.role_id = ur.role_id
		where ur.user_id = $1 and p.table_id = $2
	`, userID, entityID).Scan(&g.Create, &g.Read, &g.Update, &g.Delete)
	if err != nil {
		return rbac.Grant{}, err
	}
	return g, nil
}

func (s *Store) RevokeGrant(ctx context.Context, roleID, entityID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from permissions
		where role_id = $1 and table_id = $2
	`, roleID, entityID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}
