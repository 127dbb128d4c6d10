package schema

import "context"

// Store describes persistence operations required by the schema registry.
type Store interface {
	CreateEntity(ctx context.Context, name string) (Entity, error)
	GetEntity(ctx context.Context, entityID string) (Entity, error)
	EntityByName(ctx context.Context, name string) (Entity, error)
	ListEntities(ctx context.Context) ([]Entity, error)
	RenameEntity(ctx context.Context, entityID, name string) (Entity, error)
	// DeleteEntity removes the entity together with its fields and every
	// permission row referencing it, in one transaction. The cascade is
	// explicit in the store, never left to implicit driver behavior.
	DeleteEntity(ctx context.Context, entityID string) error

	AddField(ctx context.Context, field Field) (Field, error)
	UpdateField(ctx context.Context, fieldID string, upd FieldUpdate) (Field, error)
	RemoveField(ctx context.Context, fieldID string) error
	FieldsForEntity(ctx context.Context, entityID string) ([]Field, error)
}
