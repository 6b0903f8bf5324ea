package metatree

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/orbiton/metatree/i18n"
)

// kindOfValue names the type family of a runtime value for error payloads.
func kindOfValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string, []byte:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float32, float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	}
	return 0, false
}

func mismatch(path string, s *SchemaNode, v any) Issues {
	return AppendIssues(nil, Issue{
		Path:    path,
		Code:    CodeTypeMismatch,
		Message: i18n.T(CodeTypeMismatch, nil),
		Params:  map[string]any{"expected": s.Kind.String(), "got": kindOfValue(v)},
	})
}

func coercionFailed(path string, s *SchemaNode, v any) Issues {
	return AppendIssues(nil, Issue{
		Path:    path,
		Code:    CodeCoercionFailed,
		Message: i18n.T(CodeCoercionFailed, nil),
		Params:  map[string]any{"expected": s.Kind.String(), "got": fmt.Sprint(v)},
	})
}

// coerceScalar validates v against a leaf schema node, attempting only
// same-family coercions (numeric text to number, integral float to
// integer). It never coerces across families: zero is not false and a
// number never becomes a string.
func coerceScalar(s *SchemaNode, v any, path string) (any, Issues) {
	var out any
	switch s.Kind {
	case KindAny, KindData:
		out = v
	case KindNull:
		if v != nil {
			return nil, mismatch(path, s, v)
		}
		out = nil
	case KindString:
		switch t := v.(type) {
		case string:
			out = t
		case []byte:
			out = string(t)
		default:
			return nil, mismatch(path, s, v)
		}
	case KindNumber:
		if f, ok := toFloat(v); ok {
			out = f
			break
		}
		str, ok := v.(string)
		if !ok {
			return nil, mismatch(path, s, v)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return nil, mismatch(path, s, v)
		}
		out = f
	case KindInteger:
		if i, ok := toInt(v); ok {
			out = i
			break
		}
		if f, ok := toFloat(v); ok {
			if f != math.Trunc(f) {
				return nil, coercionFailed(path, s, v)
			}
			out = int64(f)
			break
		}
		str, ok := v.(string)
		if !ok {
			return nil, mismatch(path, s, v)
		}
		i, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
		if err != nil {
			return nil, coercionFailed(path, s, v)
		}
		out = i
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(path, s, v)
		}
		out = b
	case KindUnion:
		matched := false
		for _, variant := range s.Variants {
			if cv, iss := coerceScalar(variant, v, path); iss == nil {
				out = cv
				matched = true
				break
			}
		}
		if !matched {
			return nil, mismatch(path, s, v)
		}
	default:
		return nil, mismatch(path, s, v)
	}

	if iss := checkEnum(s, out, path); iss != nil {
		return nil, iss
	}
	if iss := checkBounds(s, out, path); iss != nil {
		return nil, iss
	}
	return out, nil
}

// checkEnum enforces enum membership on top of whatever other validation
// already passed.
func checkEnum(s *SchemaNode, v any, path string) Issues {
	if len(s.Enum) == 0 {
		return nil
	}
	for _, member := range s.Enum {
		if valueEqual(member, v) {
			return nil
		}
	}
	return AppendIssues(nil, Issue{
		Path:    path,
		Code:    CodeEnumViolation,
		Message: i18n.T(CodeEnumViolation, nil),
		Params:  map[string]any{"got": v, "enum": s.Enum},
	})
}

func checkBounds(s *SchemaNode, v any, path string) Issues {
	if s.Minimum == nil && s.Maximum == nil {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	if (s.Minimum != nil && f < *s.Minimum) || (s.Maximum != nil && f > *s.Maximum) {
		params := map[string]any{"got": v}
		if s.Minimum != nil {
			params["min"] = *s.Minimum
		}
		if s.Maximum != nil {
			params["max"] = *s.Maximum
		}
		return AppendIssues(nil, Issue{
			Path:    path,
			Code:    CodeOutOfBounds,
			Message: i18n.T(CodeOutOfBounds, nil),
			Params:  params,
		})
	}
	return nil
}

// valueEqual compares two scalars, treating all numeric representations of
// the same quantity as equal.
func valueEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return a == b
}
