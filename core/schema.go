package core

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ColumnSchema declares the expected kind of one non-timestamp column.
type ColumnSchema struct {
	Name string   `yaml:"name"`
	Kind CellKind `yaml:"kind"`
}

// Schema is the optional column contract persisted next to the database
// file. Int cells are accepted in float columns.
type Schema struct {
	TimeColumn string         `yaml:"time_column"`
	Columns    []ColumnSchema `yaml:"columns"`
}

// MarshalYAML writes the kind by name.
func (k CellKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// UnmarshalYAML reads the kind by name.
func (k *CellKind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseCellKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Headers returns the header row described by the schema.
func (s *Schema) Headers() []string {
	tc := s.TimeColumn
	if tc == "" {
		tc = "time"
	}
	out := make([]string, 0, len(s.Columns)+1)
	out = append(out, tc)
	for _, c := range s.Columns {
		out = append(out, c.Name)
	}
	return out
}

// Validate checks a record against the schema.
func (s *Schema) Validate(r Record) error {
	if len(r.Cells) != len(s.Columns) {
		return &ValidationError{
			Message: fmt.Sprintf("expected %d columns, got %d", len(s.Columns), len(r.Cells)),
			Column:  "*",
			Value:   FormatFloat(r.Time),
		}
	}
	for i, col := range s.Columns {
		got := r.Cells[i].Kind()
		if got == col.Kind || (col.Kind == CellKindFloat && got == CellKindInt) {
			continue
		}
		return &ValidationError{
			Message: fmt.Sprintf("expected %s, got %s", col.Kind, got),
			Column:  col.Name,
			Value:   r.Cells[i].String(),
		}
	}
	return nil
}

// CheckHeaders reports whether the schema describes the given header row.
func (s *Schema) CheckHeaders(headers []string) error {
	want := s.Headers()
	if len(want) != len(headers) {
		return fmt.Errorf("%w: schema has %d columns, file has %d", ErrSchemaViolation, len(want), len(headers))
	}
	for i := 1; i < len(want); i++ {
		if want[i] != headers[i] {
			return fmt.Errorf("%w: column %d is %q in schema and %q in file", ErrSchemaViolation, i, want[i], headers[i])
		}
	}
	return nil
}

// Encode serializes the schema as YAML.
func (s *Schema) Encode() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// DecodeSchema parses a YAML schema document.
func DecodeSchema(data []byte) (*Schema, error) {
	s := &Schema{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema yaml: %w", err)
	}
	return s, nil
}

// SchemaFromTable derives a schema from the headers and the first record.
func SchemaFromTable(t *Table) (*Schema, bool) {
	kinds, ok := t.ColumnKinds()
	if !ok || len(t.Headers) == 0 || len(kinds) != t.Width() {
		return nil, false
	}
	s := &Schema{TimeColumn: t.Headers[0]}
	for i, k := range kinds {
		s.Columns = append(s.Columns, ColumnSchema{Name: t.Headers[i+1], Kind: k})
	}
	return s, true
}
