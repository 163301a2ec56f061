package intake

import (
	"encoding/json"
	"fmt"

	"github.com/soaringjerry/coachdesk/internal/models"
)

// FormState is an in-progress edit of one questionnaire. It is a value: SetField
// returns a new state and never modifies the receiver.
type FormState struct {
	schema *Schema
	values map[string]Value
}

// LoadForEdit merges existing answers over the schema defaults. Existing values win,
// unknown keys are carried as raw values and a known key whose stored value has the
// wrong shape falls back to its default. existing is never modified and may be nil.
func LoadForEdit(schema *Schema, existing *models.IntakeResponse) FormState {
	values := schema.Defaults()
	if existing != nil {
		for k, raw := range existing.Responses {
			f, known := schema.Field(k)
			if !known {
				values[k] = Raw(raw)
				continue
			}
			if v, err := decodeValue(f.Kind, raw); err == nil {
				values[k] = v
			}
		}
	}
	return FormState{schema: schema, values: values}
}

func (s FormState) Schema() *Schema { return s.schema }

// Get returns the current value of a field.
func (s FormState) Get(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// SetField replaces one field. Options are not checked; only an unknown name or a
// value of the wrong kind is rejected.
func (s FormState) SetField(name string, v Value) (FormState, error) {
	f, ok := s.schema.Field(name)
	if !ok {
		return s, &FieldError{Field: name, Err: ErrUnknownField}
	}
	if v.Kind() != f.Kind {
		return s, &FieldError{Field: name, Err: fmt.Errorf("%w: got %s, want %s", ErrKindMismatch, v.Kind(), f.Kind)}
	}
	next := make(map[string]Value, len(s.values))
	for k, cur := range s.values {
		next[k] = cur
	}
	next[name] = v
	return FormState{schema: s.schema, values: next}, nil
}

// IsVisible evaluates the field's condition against the current state. A field whose
// controlling field is itself hidden is hidden too. The hidden field keeps its value.
func (s FormState) IsVisible(name string) bool {
	f, ok := s.schema.Field(name)
	if !ok {
		return false
	}
	if f.ShowWhen == nil {
		return true
	}
	if !s.IsVisible(f.ShowWhen.Field) {
		return false
	}
	return f.ShowWhen.matches(s.values[f.ShowWhen.Field])
}

// ToSubmission returns every value in wire form, hidden and unknown fields included.
func (s FormState) ToSubmission() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(s.values))
	for k, v := range s.values {
		out[k] = v.encode()
	}
	return out
}
