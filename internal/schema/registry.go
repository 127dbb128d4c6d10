package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"docbase.org/internal/obs"
)

const (
	defaultCacheSize = 512
	defaultCacheTTL  = 5 * time.Minute
)

// Registry turns entity/field metadata rows into compiled runtime schemas
// and owns the catalog mutations that invalidate them.
//
// Compilation results are cached per entity id. Any write touching an
// entity's definition invalidates that entity's cache entry wholesale; the
// TTL is only a backstop against missed invalidation, not the consistency
// mechanism.
type Registry struct {
	store Store
	cache *lru.LRU[string, *CompiledSchema]
}

// RegistryOption configures Registry construction.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	size int
	ttl  time.Duration
}

// WithCacheSize bounds the number of cached compiled schemas.
func WithCacheSize(n int) RegistryOption {
	return func(c *registryConfig) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithCacheTTL sets the backstop expiry for cached compiled schemas.
func WithCacheTTL(ttl time.Duration) RegistryOption {
	return func(c *registryConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewRegistry constructs a Registry backed by the given metadata store.
func NewRegistry(store Store, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, errors.New("schema store is required")
	}
	cfg := registryConfig{size: defaultCacheSize, ttl: defaultCacheTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		store: store,
		cache: lru.NewLRU[string, *CompiledSchema](cfg.size, nil, cfg.ttl),
	}, nil
}

// Compile loads the entity's field rows and builds the runtime type model.
func (r *Registry) Compile(ctx context.Context, entityID string) (*CompiledSchema, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity_id is required", ErrInvalidInput)
	}
	if cs, ok := r.cache.Get(entityID); ok {
		obs.RecordSchemaCache("hit")
		return cs, nil
	}
	obs.RecordSchemaCache("miss")

	entity, err := r.store.GetEntity(ctx, entityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnknownEntity
		}
		return nil, err
	}
	rows, err := r.store.FieldsForEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	cs, err := compileFields(entity, rows)
	if err != nil {
		return nil, err
	}
	r.cache.Add(entityID, cs)
	return cs, nil
}

// Invalidate drops the cached compilation for one entity.
func (r *Registry) Invalidate(entityID string) {
	if r.cache.Remove(entityID) {
		obs.RecordSchemaCache("invalidate")
	}
}

// EntityIDByName resolves the entity index for the kernel.
func (r *Registry) EntityIDByName(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrUnknownEntity
	}
	entity, err := r.store.EntityByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrUnknownEntity
		}
		return "", err
	}
	return entity.ID, nil
}

// ValidatePayload compiles (or reuses) the entity's schema and validates the
// payload under the given mode.
func (r *Registry) ValidatePayload(ctx context.Context, entityID string, payload map[string]any, mode Mode) (map[string]any, []string, error) {
	cs, err := r.Compile(ctx, entityID)
	if err != nil {
		return nil, nil, err
	}
	return cs.Validate(payload, mode)
}

// CreateEntity registers a new runtime-defined table.
func (r *Registry) CreateEntity(ctx context.Context, name string) (Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Entity{}, fmt.Errorf("%w: entity name is required", ErrInvalidInput)
	}
	return r.store.CreateEntity(ctx, name)
}

func (r *Registry) GetEntity(ctx context.Context, entityID string) (Entity, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return Entity{}, fmt.Errorf("%w: entity_id is required", ErrInvalidInput)
	}
	return r.store.GetEntity(ctx, entityID)
}

func (r *Registry) ListEntities(ctx context.Context) ([]Entity, error) {
	return r.store.ListEntities(ctx)
}

// RenameEntity changes the entity's public name. Grants reference the id,
// so they survive the rename untouched.
func (r *Registry) RenameEntity(ctx context.Context, entityID, name string) (Entity, error) {
	entityID = strings.TrimSpace(entityID)
	name = strings.TrimSpace(name)
	if entityID == "" || name == "" {
		return Entity{}, fmt.Errorf("%w: entity_id and name are required", ErrInvalidInput)
	}
	entity, err := r.store.RenameEntity(ctx, entityID, name)
	if err != nil {
		return Entity{}, err
	}
	r.Invalidate(entityID)
	return entity, nil
}

// DeleteEntity removes the entity, its fields and its grants.
func (r *Registry) DeleteEntity(ctx context.Context, entityID string) error {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return fmt.Errorf("%w: entity_id is required", ErrInvalidInput)
	}
	if err := r.store.DeleteEntity(ctx, entityID); err != nil {
		return err
	}
	r.Invalidate(entityID)
	return nil
}

// AddField appends a column definition to an entity.
func (r *Registry) AddField(ctx context.Context, field Field) (Field, error) {
	field.EntityID = strings.TrimSpace(field.EntityID)
	field.ColumnName = strings.TrimSpace(field.ColumnName)
	if field.EntityID == "" || field.ColumnName == "" {
		return Field{}, fmt.Errorf("%w: entity_id and column_name are required", ErrInvalidInput)
	}
	ft, err := ParseFieldType(string(field.ColumnType))
	if err != nil {
		return Field{}, err
	}
	field.ColumnType = ft
	if field.Size < 0 {
		return Field{}, fmt.Errorf("%w: size must not be negative", ErrInvalidInput)
	}
	if !ft.Bounded() {
		field.Size = 0
	}
	if field.DefaultValue != nil {
		spec := FieldSpec{Name: field.ColumnName, Type: ft, Size: field.Size}
		if _, err := parseDefault(spec, *field.DefaultValue); err != nil {
			return Field{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	created, err := r.store.AddField(ctx, field)
	if err != nil {
		return Field{}, err
	}
	r.Invalidate(field.EntityID)
	return created, nil
}

// UpdateField changes a column definition and invalidates the compilation.
// The effective (type, size, default) triple after the merge must still
// parse, so a field update can never leave the entity uncompilable.
func (r *Registry) UpdateField(ctx context.Context, entityID, fieldID string, upd FieldUpdate) (Field, error) {
	entityID = strings.TrimSpace(entityID)
	fieldID = strings.TrimSpace(fieldID)
	if entityID == "" || fieldID == "" {
		return Field{}, fmt.Errorf("%w: entity_id and field_id are required", ErrInvalidInput)
	}
	if upd.ColumnName != nil {
		trimmed := strings.TrimSpace(*upd.ColumnName)
		if trimmed == "" {
			return Field{}, fmt.Errorf("%w: column_name is required", ErrInvalidInput)
		}
		upd.ColumnName = &trimmed
	}
	if upd.ColumnType != nil {
		ft, err := ParseFieldType(string(*upd.ColumnType))
		if err != nil {
			return Field{}, err
		}
		upd.ColumnType = &ft
	}
	if upd.Size != nil && *upd.Size < 0 {
		return Field{}, fmt.Errorf("%w: size must not be negative", ErrInvalidInput)
	}
	if upd.ColumnType != nil || upd.Size != nil || upd.DefaultValue != nil {
		current, err := r.fieldByID(ctx, entityID, fieldID)
		if err != nil {
			return Field{}, err
		}
		merged := current
		if upd.ColumnName != nil {
			merged.ColumnName = *upd.ColumnName
		}
		if upd.ColumnType != nil {
			merged.ColumnType = *upd.ColumnType
		}
		if upd.Size != nil {
			merged.Size = *upd.Size
		}
		if !merged.ColumnType.Bounded() {
			merged.Size = 0
		}
		if upd.DefaultValue != nil {
			merged.DefaultValue = upd.DefaultValue
		}
		if merged.DefaultValue != nil {
			spec := FieldSpec{Name: merged.ColumnName, Type: merged.ColumnType, Size: merged.Size}
			if _, err := parseDefault(spec, *merged.DefaultValue); err != nil {
				return Field{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
		}
	}
	field, err := r.store.UpdateField(ctx, fieldID, upd)
	if err != nil {
		return Field{}, err
	}
	r.Invalidate(entityID)
	return field, nil
}

func (r *Registry) fieldByID(ctx context.Context, entityID, fieldID string) (Field, error) {
	rows, err := r.store.FieldsForEntity(ctx, entityID)
	if err != nil {
		return Field{}, err
	}
	for _, f := range rows {
		if f.ID == fieldID {
			return f, nil
		}
	}
	return Field{}, ErrNotFound
}

// RemoveField drops a column definition and invalidates the compilation.
func (r *Registry) RemoveField(ctx context.Context, entityID, fieldID string) error {
	entityID = strings.TrimSpace(entityID)
	fieldID = strings.TrimSpace(fieldID)
	if entityID == "" || fieldID == "" {
		return fmt.Errorf("%w: entity_id and field_id are required", ErrInvalidInput)
	}
	if err := r.store.RemoveField(ctx, fieldID); err != nil {
		return err
	}
	r.Invalidate(entityID)
	return nil
}

// FieldsForEntity lists the raw field rows for one entity.
func (r *Registry) FieldsForEntity(ctx context.Context, entityID string) ([]Field, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity_id is required", ErrInvalidInput)
	}
	return r.store.FieldsForEntity(ctx, entityID)
}
