package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the value kind a field accepts.
type Kind string

const (
	KindText      Kind = "text"
	KindEnum      Kind = "enum"
	KindMultiEnum Kind = "multi_enum"
	KindBool      Kind = "bool"
	KindDate      Kind = "date"
	// KindRaw holds a value for a field the schema does not know. It is carried verbatim.
	KindRaw Kind = "raw"
)

// DateLayout is the wire layout of date answers.
const DateLayout = "2006-01-02"

var (
	ErrUnknownField = errors.New("unknown field")
	ErrKindMismatch = errors.New("value kind does not match field")
)

// Value is a tagged union over the answer kinds. The zero Value is an empty text answer.
type Value struct {
	kind Kind
	text string
	list []string
	flag bool
	raw  json.RawMessage
}

func Text(s string) Value { return Value{kind: KindText, text: s} }
func Enum(s string) Value { return Value{kind: KindEnum, text: s} }
func Date(s string) Value { return Value{kind: KindDate, text: s} }
func Bool(b bool) Value   { return Value{kind: KindBool, flag: b} }

func MultiEnum(opts ...string) Value {
	list := make([]string, len(opts))
	copy(list, opts)
	return Value{kind: KindMultiEnum, list: list}
}

func Raw(msg json.RawMessage) Value {
	return Value{kind: KindRaw, raw: append(json.RawMessage(nil), msg...)}
}

func (v Value) Kind() Kind {
	if v.kind == "" {
		return KindText
	}
	return v.kind
}

// Text returns the string payload of text, enum and date values.
func (v Value) Text() string { return v.text }

// List returns a copy of the selections of a multi-enum value.
func (v Value) List() []string {
	out := make([]string, len(v.list))
	copy(out, v.list)
	return out
}

func (v Value) Flag() bool { return v.flag }

func (v Value) RawJSON() json.RawMessage { return append(json.RawMessage(nil), v.raw...) }

// IsEmpty reports whether the value carries no answer. A boolean is never empty:
// an explicit "no" is still an answer.
func (v Value) IsEmpty() bool {
	switch v.Kind() {
	case KindMultiEnum:
		return len(v.list) == 0
	case KindBool:
		return false
	case KindRaw:
		t := bytes.TrimSpace(v.raw)
		return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte(`""`))
	default:
		return strings.TrimSpace(v.text) == ""
	}
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	switch v.Kind() {
	case KindMultiEnum:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	case KindBool:
		return v.flag == o.flag
	case KindRaw:
		return bytes.Equal(bytes.TrimSpace(v.raw), bytes.TrimSpace(o.raw))
	default:
		return v.text == o.text
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind() {
	case KindMultiEnum:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindBool:
		return json.Marshal(v.flag)
	case KindRaw:
		if len(bytes.TrimSpace(v.raw)) == 0 {
			return []byte("null"), nil
		}
		return v.raw, nil
	default:
		return json.Marshal(v.text)
	}
}

func (v Value) encode() json.RawMessage {
	b, err := v.MarshalJSON()
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

// zeroValue is the "not yet answered" default for a kind.
func zeroValue(k Kind) Value {
	switch k {
	case KindMultiEnum:
		return MultiEnum()
	case KindBool:
		return Bool(false)
	case KindEnum:
		return Enum("")
	case KindDate:
		return Date("")
	default:
		return Text("")
	}
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// decodeValue parses a wire value for a field of kind k. null decodes to the kind's
// empty value.
func decodeValue(k Kind, raw json.RawMessage) (Value, error) {
	if isNull(raw) {
		return zeroValue(k), nil
	}
	switch k {
	case KindText, KindEnum, KindDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("%w: want string", ErrKindMismatch)
		}
		if k == KindDate && strings.TrimSpace(s) != "" {
			if _, err := time.Parse(DateLayout, strings.TrimSpace(s)); err != nil {
				return Value{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
			}
		}
		return Value{kind: k, text: s}, nil
	case KindMultiEnum:
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return Value{}, fmt.Errorf("%w: want list of strings", ErrKindMismatch)
		}
		return MultiEnum(list...), nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, fmt.Errorf("%w: want boolean", ErrKindMismatch)
		}
		return Bool(b), nil
	default:
		return Raw(raw), nil
	}
}

// FieldError names the field a boundary validation failure belongs to.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() error { return e.Err }

// Encode converts decoded values back to wire form.
func Encode(values map[string]Value) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		out[k] = v.encode()
	}
	return out
}

// Format renders a value as a single display cell: selections are comma separated
// and booleans read Yes or No.
func Format(v Value) string {
	switch v.Kind() {
	case KindMultiEnum:
		return strings.Join(v.list, ", ")
	case KindBool:
		if v.flag {
			return "Yes"
		}
		return "No"
	case KindRaw:
		if isNull(v.raw) {
			return ""
		}
		return string(bytes.TrimSpace(v.raw))
	default:
		return v.text
	}
}
