package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CellKind tags the active variant of a Cell.
type CellKind byte

const (
	CellKindText  CellKind = 0x00
	CellKindBool  CellKind = 0x01
	CellKindInt   CellKind = 0x02
	CellKindFloat CellKind = 0x03
)

func (k CellKind) String() string {
	switch k {
	case CellKindText:
		return "text"
	case CellKindBool:
		return "bool"
	case CellKindInt:
		return "int"
	case CellKindFloat:
		return "float"
	default:
		return fmt.Sprintf("CellKind(%d)", byte(k))
	}
}

// ParseCellKind is the inverse of CellKind.String.
func ParseCellKind(s string) (CellKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string", "str":
		return CellKindText, nil
	case "bool", "boolean":
		return CellKindBool, nil
	case "int", "integer", "int64":
		return CellKindInt, nil
	case "float", "double", "float64":
		return CellKindFloat, nil
	default:
		return CellKindText, fmt.Errorf("unknown cell kind %q", s)
	}
}

// InferencePolicy selects the order in which ParseCell tries numeric types.
type InferencePolicy int

const (
	// InferIntFirst tries bool, int, float, then text. Integral tokens such
	// as "42" decode as CellKindInt.
	InferIntFirst InferencePolicy = iota
	// InferFloatFirst tries bool, float, int, then text. Every numeric token
	// decodes as CellKindFloat.
	InferFloatFirst
)

func (p InferencePolicy) String() string {
	if p == InferFloatFirst {
		return "float_first"
	}
	return "int_first"
}

// ParseInferencePolicy maps a configuration string to an InferencePolicy.
func ParseInferencePolicy(s string) (InferencePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "int_first":
		return InferIntFirst, nil
	case "float_first":
		return InferFloatFirst, nil
	default:
		return InferIntFirst, fmt.Errorf("unknown inference policy %q", s)
	}
}

// Cell holds exactly one of bool, int64, float64 or text. The zero value is
// an empty text cell.
type Cell struct {
	kind CellKind
	b    bool
	i    int64
	f    float64
	s    string
}

func BoolCell(v bool) Cell     { return Cell{kind: CellKindBool, b: v} }
func IntCell(v int64) Cell     { return Cell{kind: CellKindInt, i: v} }
func FloatCell(v float64) Cell { return Cell{kind: CellKindFloat, f: v} }
func TextCell(v string) Cell   { return Cell{kind: CellKindText, s: v} }

// NewCell creates a Cell from a Go value.
func NewCell(data any) (Cell, error) {
	switch v := data.(type) {
	case Cell:
		return v, nil
	case float64:
		return FloatCell(v), nil
	case float32:
		return FloatCell(float64(v)), nil // Promote to float64
	case int:
		return IntCell(int64(v)), nil
	case int32:
		return IntCell(int64(v)), nil
	case int64:
		return IntCell(v), nil
	case string:
		return TextCell(v), nil
	case bool:
		return BoolCell(v), nil
	default:
		return Cell{}, fmt.Errorf("%w: %T", ErrUnsupportedType, data)
	}
}

// ParseCell infers a Cell from a raw text token. A bool is recognised only
// for the case-insensitive words "true" and "false"; numeric attempts follow
// the policy; anything else is kept as text.
func ParseCell(token string, policy InferencePolicy) Cell {
	if b, ok := parseBool(token); ok {
		return BoolCell(b)
	}
	if policy == InferFloatFirst {
		if f, ok := parseFloat(token); ok {
			return FloatCell(f)
		}
		if i, ok := parseInt(token); ok {
			return IntCell(i)
		}
		return TextCell(token)
	}
	if i, ok := parseInt(token); ok {
		return IntCell(i)
	}
	if f, ok := parseFloat(token); ok {
		return FloatCell(f)
	}
	return TextCell(token)
}

func parseBool(s string) (bool, bool) {
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	}
	return false, false
}

func parseInt(s string) (int64, bool) {
	i, err := strconv.ParseInt(s, 10, 64)
	return i, err == nil
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// FormatFloat renders f as the shortest decimal text that parses back to f.
// Integral finite values keep a ".0" suffix so they are not re-read as ints.
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Kind returns the active variant.
func (c Cell) Kind() CellKind { return c.kind }

// String serializes the cell to its on-disk token.
func (c Cell) String() string {
	switch c.kind {
	case CellKindBool:
		if c.b {
			return "true"
		}
		return "false"
	case CellKindInt:
		return strconv.FormatInt(c.i, 10)
	case CellKindFloat:
		return FormatFloat(c.f)
	default:
		return c.s
	}
}

func (c Cell) ValueBool() (bool, bool) {
	return c.b, c.kind == CellKindBool
}

func (c Cell) ValueInt64() (int64, bool) {
	return c.i, c.kind == CellKindInt
}

func (c Cell) ValueFloat64() (float64, bool) {
	return c.f, c.kind == CellKindFloat
}

func (c Cell) ValueString() (string, bool) {
	return c.s, c.kind == CellKindText
}

// Numeric returns the cell as a float64 for int and float cells.
func (c Cell) Numeric() (float64, bool) {
	switch c.kind {
	case CellKindInt:
		return float64(c.i), true
	case CellKindFloat:
		return c.f, true
	default:
		return 0, false
	}
}

// Any returns the held value as a plain Go value.
func (c Cell) Any() any {
	switch c.kind {
	case CellKindBool:
		return c.b
	case CellKindInt:
		return c.i
	case CellKindFloat:
		return c.f
	default:
		return c.s
	}
}

// Equal reports whether both cells hold the same variant and value. NaN
// floats compare equal to each other.
func (c Cell) Equal(o Cell) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case CellKindBool:
		return c.b == o.b
	case CellKindInt:
		return c.i == o.i
	case CellKindFloat:
		if math.IsNaN(c.f) && math.IsNaN(o.f) {
			return true
		}
		return c.f == o.f
	default:
		return c.s == o.s
	}
}

// MarshalJSON implements the json.Marshaler interface for Cell.
func (c Cell) MarshalJSON() ([]byte, error) {
	if c.kind == CellKindFloat && (math.IsInf(c.f, 0) || math.IsNaN(c.f)) {
		return json.Marshal(FormatFloat(c.f))
	}
	return json.Marshal(c.Any())
}
