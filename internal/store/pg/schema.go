package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"docbase.org/internal/ids"
	"docbase.org/internal/schema"
)

func (s *Store) CreateEntity(ctx context.Context, name string) (schema.Entity, error) {
	if s.db == nil {
		return schema.Entity{}, errors.New("database connection unavailable")
	}
	var e schema.Entity
	row := s.db.QueryRowContext(ctx, `
		insert into entities (id, name)
		values ($1, $2)
		returning id, name, created_at, updated_at
	`, ids.New(), name)
	if err := row.Scan(&e.ID, &e.Name, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return schema.Entity{}, schema.ErrConflict
		}
		return schema.Entity{}, err
	}
	return e, nil
}

func (s *Store) GetEntity(ctx context.Context, entityID string) (schema.Entity, error) {
	if s.db == nil {
		return schema.Entity{}, errors.New("database connection unavailable")
	}
	var e schema.Entity
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at, updated_at
		from entities
		where id = $1
	`, entityID).Scan(&e.ID, &e.Name, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Entity{}, schema.ErrNotFound
	}
	if err != nil {
		return schema.Entity{}, err
	}
	return e, nil
}

func (s *Store) EntityByName(ctx context.Context, name string) (schema.Entity, error) {
	if s.db == nil {
		return schema.Entity{}, errors.New("database connection unavailable")
	}
	var e schema.Entity
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at, updated_at
		from entities
		where name = $1
	`, name).Scan(&e.ID, &e.Name, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Entity{}, schema.ErrNotFound
	}
	if err != nil {
		return schema.Entity{}, err
	}
	return e, nil
}

func (s *Store) ListEntities(ctx context.Context) ([]schema.Entity, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, created_at, updated_at
		from entities
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []schema.Entity
	for rows.Next() {
		var e schema.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entities, nil
}

func (s *Store) RenameEntity(ctx context.Context, entityID, name string) (schema.Entity, error) {
	if s.db == nil {
		return schema.Entity{}, errors.New("database connection unavailable")
	}
	var e schema.Entity
	err := s.db.QueryRowContext(ctx, `
		update entities
		set name = $2, updated_at = now()
		where id = $1
		returning id, name, created_at, updated_at
	`, entityID, name).Scan(&e.ID, &e.Name, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Entity{}, schema.ErrNotFound
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return schema.Entity{}, schema.ErrConflict
		}
		return schema.Entity{}, err
	}
	return e, nil
}

// DeleteEntity drops the entity, its field definitions and every grant
// that references it in one transaction.
func (s *Store) DeleteEntity(ctx context.Context, entityID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from permissions where table_id = $1`, entityID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from entity_fields where entity_id = $1`, entityID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from entities where id = $1`, entityID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return schema.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) AddField(ctx context.Context, field schema.Field) (schema.Field, error) {
	if s.db == nil {
		return schema.Field{}, errors.New("database connection unavailable")
	}
	var (
		out  schema.Field
		def  sql.NullString
		ph   sql.NullString
		size sql.NullInt64
	)
	row := s.db.QueryRowContext(ctx, `
		insert into entity_fields (id, entity_id, column_name, column_type, size, placeholder, default_value, is_unique)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id, entity_id, column_name, column_type, size, placeholder, default_value, is_unique, created_at
	`, ids.New(), field.EntityID, field.ColumnName, string(field.ColumnType),
		nullIfZero(field.Size), nullIfEmpty(field.Placeholder), nullableString(field.DefaultValue), field.IsUnique)
	if err := row.Scan(&out.ID, &out.EntityID, &out.ColumnName, &out.ColumnType, &size, &ph, &def, &out.IsUnique, &out.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return schema.Field{}, schema.ErrConflict
			case pgErrForeignKeyViolation:
				return schema.Field{}, schema.ErrNotFound
			}
		}
		return schema.Field{}, err
	}
	applyFieldNulls(&out, size, ph, def)
	return out, nil
}

func (s *Store) UpdateField(ctx context.Context, fieldID string, upd schema.FieldUpdate) (schema.Field, error) {
	if s.db == nil {
		return schema.Field{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.ColumnName != nil {
		sets = append(sets, fmt.Sprintf("column_name = $%d", idx))
		args = append(args, *upd.ColumnName)
		idx++
	}
	if upd.ColumnType != nil {
		sets = append(sets, fmt.Sprintf("column_type = $%d", idx))
		args = append(args, string(*upd.ColumnType))
		idx++
	}
	if upd.Size != nil {
		if *upd.Size == 0 {
			sets = append(sets, "size = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("size = $%d", idx))
			args = append(args, *upd.Size)
			idx++
		}
	}
	if upd.Placeholder != nil {
		if *upd.Placeholder == "" {
			sets = append(sets, "placeholder = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("placeholder = $%d", idx))
			args = append(args, *upd.Placeholder)
			idx++
		}
	}
	if upd.DefaultValue != nil {
		sets = append(sets, fmt.Sprintf("default_value = $%d", idx))
		args = append(args, *upd.DefaultValue)
		idx++
	}
	if upd.IsUnique != nil {
		sets = append(sets, fmt.Sprintf("is_unique = $%d", idx))
		args = append(args, *upd.IsUnique)
		idx++
	}
	if len(sets) > 0 {
		query := fmt.Sprintf(`update entity_fields set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, fieldID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return schema.Field{}, schema.ErrConflict
			}
			return schema.Field{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return schema.Field{}, err
		}
		if aff == 0 {
			return schema.Field{}, schema.ErrNotFound
		}
	}
	return s.getField(ctx, fieldID)
}

func (s *Store) RemoveField(ctx context.Context, fieldID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from entity_fields where id = $1`, fieldID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return schema.ErrNotFound
	}
	return nil
}

func (s *Store) FieldsForEntity(ctx context.Context, entityID string) ([]schema.Field, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, entity_id, column_name, column_type, size, placeholder, default_value, is_unique, created_at
		from entity_fields
		where entity_id = $1
		order by column_name
	`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []schema.Field
	for rows.Next() {
		var (
			f    schema.Field
			size sql.NullInt64
			ph   sql.NullString
			def  sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.EntityID, &f.ColumnName, &f.ColumnType, &size, &ph, &def, &f.IsUnique, &f.CreatedAt); err != nil {
			return nil, err
		}
		applyFieldNulls(&f, size, ph, def)
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return fields, nil
}

func (s *Store) getField(ctx context.Context, fieldID string) (schema.Field, error) {
	var (
		f    schema.Field
		size sql.NullInt64
		ph   sql.NullString
		def  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, entity_id, column_name, column_type, size, placeholder, default_value, is_unique, created_at
		from entity_fields
		where id = $1
	`, fieldID).Scan(&f.ID, &f.EntityID, &f.ColumnName, &f.ColumnType, &size, &ph, &def, &f.IsUnique, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Field{}, schema.ErrNotFound
	}
	if err != nil {
		return schema.Field{}, err
	}
	applyFieldNulls(&f, size, ph, def)
	return f, nil
}

func applyFieldNulls(f *schema.Field, size sql.NullInt64, ph, def sql.NullString) {
	if size.Valid {
		f.Size = int(size.Int64)
	}
	if ph.Valid {
		f.Placeholder = ph.String
	}
	if def.Valid {
		v := def.String
		f.DefaultValue = &v
	}
}

func nullIfZero(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
