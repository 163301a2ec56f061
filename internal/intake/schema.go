package intake

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Condition makes a field visible only when the referenced field holds one of Equals.
// For multi-enum references any selected option matches; for booleans compare "true"/"false".
type Condition struct {
	Field  string   `json:"field"`
	Equals []string `json:"equals"`
}

func (c Condition) matches(v Value) bool {
	switch v.Kind() {
	case KindMultiEnum:
		for _, sel := range v.list {
			if c.has(sel) {
				return true
			}
		}
		return false
	case KindBool:
		return c.has(strconv.FormatBool(v.flag))
	case KindRaw:
		return false
	default:
		return c.has(v.text)
	}
}

func (c Condition) has(s string) bool {
	for _, want := range c.Equals {
		if want == s {
			return true
		}
	}
	return false
}

// Field describes one questionnaire slot.
type Field struct {
	Name        string     `json:"name"`
	Label       string     `json:"label"`
	Section     string     `json:"section,omitempty"`
	Kind        Kind       `json:"kind"`
	Options     []string   `json:"options,omitempty"`
	Multiline   bool       `json:"multiline,omitempty"`
	Placeholder string     `json:"placeholder,omitempty"`
	ShowWhen    *Condition `json:"showWhen,omitempty"`
}

// Default is the value used when the field has not been answered.
func (f Field) Default() Value { return zeroValue(f.Kind) }

// Schema is the fixed, ordered field list of one form type.
type Schema struct {
	FormType string
	Title    string
	fields   []Field
	index    map[string]int
}

// NewSchema validates the field list: names are unique, kinds are known and every
// visibility condition references a field declared earlier. The last rule keeps the
// condition graph acyclic.
func NewSchema(formType, title string, fields ...Field) (*Schema, error) {
	s := &Schema{FormType: formType, Title: title, index: make(map[string]int, len(fields))}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d: empty name", i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("field %s: duplicate name", f.Name)
		}
		switch f.Kind {
		case KindText, KindEnum, KindMultiEnum, KindBool, KindDate:
		default:
			return nil, fmt.Errorf("field %s: unsupported kind %q", f.Name, f.Kind)
		}
		if f.ShowWhen != nil {
			if _, ok := s.index[f.ShowWhen.Field]; !ok {
				return nil, fmt.Errorf("field %s: condition references %q which is not declared before it", f.Name, f.ShowWhen.Field)
			}
		}
		s.index[f.Name] = i
		s.fields = append(s.fields, f)
	}
	return s, nil
}

func mustSchema(formType, title string, fields ...Field) *Schema {
	s, err := NewSchema(formType, title, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Defaults returns the "first-time fill" state: every field at its empty value.
func (s *Schema) Defaults() map[string]Value {
	out := make(map[string]Value, len(s.fields))
	for _, f := range s.fields {
		out[f.Name] = f.Default()
	}
	return out
}

// Decode validates a wire answer map against the schema. Unknown keys are kept as raw
// values; a known key with the wrong kind fails with a *FieldError.
func (s *Schema) Decode(raw map[string]json.RawMessage) (map[string]Value, error) {
	out := make(map[string]Value, len(raw))
	for _, f := range s.fields {
		msg, ok := raw[f.Name]
		if !ok {
			continue
		}
		v, err := decodeValue(f.Kind, msg)
		if err != nil {
			return nil, &FieldError{Field: f.Name, Err: err}
		}
		out[f.Name] = v
	}
	for k, msg := range raw {
		if _, known := s.index[k]; !known {
			out[k] = Raw(msg)
		}
	}
	return out, nil
}

// MarshalJSON exposes the schema to clients that render the form.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		FormType string  `json:"formType"`
		Title    string  `json:"title"`
		Fields   []Field `json:"fields"`
	}{s.FormType, s.Title, s.fields})
}
