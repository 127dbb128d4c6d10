package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	dateLayout = "2006-01-02"
)

// Validate checks a candidate payload against the compiled schema and
// returns the normalized payload plus the column names that still require
// an external uniqueness probe. The registry cannot perform that probe
// itself; the data store owning the rows must.
//
// Unknown keys are rejected rather than dropped, so a caller can never
// smuggle writes past the declared field set.
func (cs *CompiledSchema) Validate(payload map[string]any, mode Mode) (map[string]any, []string, error) {
	verr := &ValidationError{Entity: cs.EntityName}

	for key := range payload {
		if _, ok := cs.fields[key]; !ok {
			verr.add(key, "unknown field")
		}
	}

	normalized := make(map[string]any, len(cs.fields))
	var probes []string

	for name, spec := range cs.fields {
		value, present := payload[name]
		if !present {
			if mode == ModeCreate {
				if spec.HasDefault {
					normalized[name] = spec.Default
					if spec.Unique {
						probes = append(probes, name)
					}
				} else {
					verr.add(name, "required field is missing")
				}
			}
			continue
		}
		typed, msg := checkValue(spec, value)
		if msg != "" {
			verr.add(name, msg)
			continue
		}
		normalized[name] = typed
		if spec.Unique {
			probes = append(probes, name)
		}
	}

	if len(verr.Fields) > 0 {
		return nil, nil, verr.sorted()
	}
	sort.Strings(probes)
	return normalized, probes, nil
}

// checkValue dispatches on the variant tag. It returns the normalized value
// or a rejection message; the two are mutually exclusive.
func checkValue(spec FieldSpec, value any) (any, string) {
	if value == nil {
		return nil, "null is not allowed"
	}
	switch spec.Type {
	case TypeString, TypeText:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("expected string, got %T", value)
		}
		if spec.Size > 0 && utf8.RuneCountInString(s) > spec.Size {
			return nil, fmt.Sprintf("exceeds size %d", spec.Size)
		}
		return s, ""
	case TypeInteger:
		n, ok := toInt64(value)
		if !ok {
			return nil, fmt.Sprintf("expected integer, got %T", value)
		}
		if spec.Size > 0 && digits(n) > spec.Size {
			return nil, fmt.Sprintf("exceeds size %d", spec.Size)
		}
		return n, ""
	case TypeFloat:
		f, ok := toFloat64(value)
		if !ok {
			return nil, fmt.Sprintf("expected number, got %T", value)
		}
		if spec.Size > 0 && digits(int64(f)) > spec.Size {
			return nil, fmt.Sprintf("exceeds size %d", spec.Size)
		}
		return f, ""
	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Sprintf("expected boolean, got %T", value)
		}
		return b, ""
	case TypeDate:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("expected date string, got %T", value)
		}
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, "expected date in YYYY-MM-DD form"
		}
		return t.Format(dateLayout), ""
	case TypeTimestamp:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("expected timestamp string, got %T", value)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, "expected RFC3339 timestamp"
		}
		return t.UTC().Format(time.RFC3339), ""
	case TypeUUID:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Sprintf("expected uuid string, got %T", value)
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, "expected canonical UUID"
		}
		return u.String(), ""
	case TypeJSON:
		// Any JSON value is acceptable; stored opaquely.
		return value, ""
	default:
		return nil, fmt.Sprintf("unsupported column type %q", spec.Type)
	}
}

// parseDefault normalizes a metadata-declared default under the field's own
// column type. Size bounds apply to defaults too.
func parseDefault(spec FieldSpec, raw string) (any, error) {
	switch spec.Type {
	case TypeString, TypeText:
		if spec.Size > 0 && utf8.RuneCountInString(raw) > spec.Size {
			return nil, fmt.Errorf("default exceeds size %d", spec.Size)
		}
		return raw, nil
	case TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", raw)
		}
		if spec.Size > 0 && digits(n) > spec.Size {
			return nil, fmt.Errorf("default exceeds size %d", spec.Size)
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", raw)
		}
		return f, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", raw)
		}
		return b, nil
	case TypeDate:
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("not a date: %q", raw)
		}
		return t.Format(dateLayout), nil
	case TypeTimestamp:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("not a timestamp: %q", raw)
		}
		return t.UTC().Format(time.RFC3339), nil
	case TypeUUID:
		u, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("not a UUID: %q", raw)
		}
		return u.String(), nil
	case TypeJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("not valid JSON: %q", raw)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported column type %q", spec.Type)
	}
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func digits(n int64) int {
	if n < 0 {
		n = -n
	}
	return len(strconv.FormatInt(n, 10))
}
