package schema

import (
	"fmt"
	"sort"
)

// FieldSpec is the compiled descriptor for one column: the variant tag plus
// the bounds validation needs at runtime.
type FieldSpec struct {
	Name       string
	Type       FieldType
	Size       int
	Unique     bool
	HasDefault bool
	// Default holds the normalized (typed) default value when HasDefault.
	Default any
}

// CompiledSchema is the runtime type model for one entity: a pure function
// of its field rows at compile time. It is immutable once built; schema
// edits produce a fresh compilation rather than patching in place.
type CompiledSchema struct {
	EntityID   string
	EntityName string
	fields     map[string]FieldSpec
}

// Fields returns the specs in column-name order.
func (cs *CompiledSchema) Fields() []FieldSpec {
	out := make([]FieldSpec, 0, len(cs.fields))
	for _, spec := range cs.fields {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Empty reports the degenerate zero-field case, which accepts only the
// empty payload in create mode.
func (cs *CompiledSchema) Empty() bool { return len(cs.fields) == 0 }

// compileFields builds the name -> descriptor mapping. Defaults declared in
// the metadata must parse under their own column type; a row that fails this
// is corrupt metadata and fails the whole compilation rather than being
// silently skipped.
func compileFields(entity Entity, rows []Field) (*CompiledSchema, error) {
	fields := make(map[string]FieldSpec, len(rows))
	for _, row := range rows {
		if _, dup := fields[row.ColumnName]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q on entity %s", ErrInvalidInput, row.ColumnName, entity.Name)
		}
		spec := FieldSpec{
			Name:   row.ColumnName,
			Type:   row.ColumnType,
			Unique: row.IsUnique,
		}
		if row.ColumnType.Bounded() && row.Size > 0 {
			spec.Size = row.Size
		}
		if row.DefaultValue != nil {
			normalized, err := parseDefault(spec, *row.DefaultValue)
			if err != nil {
				return nil, fmt.Errorf("%w: default for %s.%s: %v", ErrInvalidInput, entity.Name, row.ColumnName, err)
			}
			spec.HasDefault = true
			spec.Default = normalized
		}
		fields[row.ColumnName] = spec
	}
	return &CompiledSchema{
		EntityID:   entity.ID,
		EntityName: entity.Name,
		fields:     fields,
	}, nil
}
