package schema

import (
	"fmt"
	"strings"
	"time"
)

// Entity is one runtime-defined business table. Grants reference entities
// by id, so renaming an entity never invalidates existing permissions.
type Entity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Field is one runtime-defined column of an Entity.
// (entity_id, column_name) is unique; fields are exclusively owned by
// their entity and die with it.
type Field struct {
	ID           string    `json:"id"`
	EntityID     string    `json:"entity_id"`
	ColumnName   string    `json:"column_name"`
	ColumnType   FieldType `json:"column_type"`
	Size         int       `json:"size,omitempty"`
	Placeholder  string    `json:"placeholder,omitempty"`
	DefaultValue *string   `json:"default_value,omitempty"`
	IsUnique     bool      `json:"is_unique"`
	CreatedAt    time.Time `json:"created_at"`
}

// FieldUpdate carries optional field-definition changes; nil means keep.
type FieldUpdate struct {
	ColumnName   *string
	ColumnType   *FieldType
	Size         *int
	Placeholder  *string
	DefaultValue *string
	IsUnique     *bool
}

// FieldType is the closed column-type vocabulary. Validation dispatches on
// the tag explicitly rather than through reflection.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeText      FieldType = "text"
	TypeInteger   FieldType = "integer"
	TypeFloat     FieldType = "float"
	TypeBoolean   FieldType = "boolean"
	TypeDate      FieldType = "date"
	TypeTimestamp FieldType = "timestamp"
	TypeJSON      FieldType = "json"
	TypeUUID      FieldType = "uuid"
)

var fieldTypes = map[FieldType]struct{}{
	TypeString:    {},
	TypeText:      {},
	TypeInteger:   {},
	TypeFloat:     {},
	TypeBoolean:   {},
	TypeDate:      {},
	TypeTimestamp: {},
	TypeJSON:      {},
	TypeUUID:      {},
}

// ParseFieldType validates a raw column type against the vocabulary.
func ParseFieldType(raw string) (FieldType, error) {
	ft := FieldType(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := fieldTypes[ft]; !ok {
		return "", fmt.Errorf("%w: unknown column type %q", ErrInvalidInput, raw)
	}
	return ft, nil
}

// Bounded reports whether size is meaningful for the type.
func (t FieldType) Bounded() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat:
		return true
	default:
		return false
	}
}

// Mode selects the validation contract for a payload.
type Mode int

const (
	// ModeCreate requires every field without a default and applies
	// defaults for absent optional fields.
	ModeCreate Mode = iota
	// ModeUpdate treats every field as optional; present values still
	// type-check.
	ModeUpdate
)

func (m Mode) String() string {
	if m == ModeUpdate {
		return "update"
	}
	return "create"
}
