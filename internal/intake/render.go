package intake

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/soaringjerry/coachdesk/internal/models"
)

// Display says how a summary entry is laid out.
type Display string

const (
	DisplayText  Display = "text"
	DisplayTags  Display = "tags"
	DisplayBlock Display = "block" // whitespace preserved
)

type SummaryEntry struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Section string   `json:"section,omitempty"`
	Display Display  `json:"display"`
	Text    string   `json:"text,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

type Summary struct {
	FormType string         `json:"formType"`
	Title    string         `json:"title"`
	Entries  []SummaryEntry `json:"entries"`
}

// Empty reports whether nothing was answered.
func (s Summary) Empty() bool { return len(s.Entries) == 0 }

// RenderReadOnly builds the review view of stored answers. Fields that are absent,
// empty or hidden by their condition are omitted rather than shown blank.
func RenderReadOnly(schema *Schema, responses map[string]json.RawMessage) Summary {
	state := LoadForEdit(schema, &models.IntakeResponse{Responses: responses})
	out := Summary{FormType: schema.FormType, Title: schema.Title, Entries: []SummaryEntry{}}
	for _, f := range schema.fields {
		raw, present := responses[f.Name]
		if !present || isNull(raw) {
			continue
		}
		if !state.IsVisible(f.Name) {
			continue
		}
		v := state.values[f.Name]
		if v.IsEmpty() {
			continue
		}
		if _, err := decodeValue(f.Kind, raw); err != nil {
			continue
		}
		entry := SummaryEntry{Name: f.Name, Label: f.Label, Section: f.Section, Display: DisplayText}
		switch f.Kind {
		case KindMultiEnum:
			entry.Display = DisplayTags
			entry.Tags = v.List()
		case KindBool:
			entry.Text = "No"
			if v.Flag() {
				entry.Text = "Yes"
			}
		case KindDate:
			entry.Text = formatDate(v.Text())
		default:
			entry.Text = v.Text()
			if f.Multiline {
				entry.Display = DisplayBlock
			}
		}
		out.Entries = append(out.Entries, entry)
	}
	return out
}

func formatDate(s string) string {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return t.Format("January 2, 2006")
}

// Widget names the input control for a field.
type Widget string

const (
	WidgetInput      Widget = "input"
	WidgetTextarea   Widget = "textarea"
	WidgetSelect     Widget = "select"
	WidgetCheckboxes Widget = "checkboxes"
	WidgetToggle     Widget = "toggle"
	WidgetDate       Widget = "date"
)

type Control struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Section     string   `json:"section,omitempty"`
	Kind        Kind     `json:"kind"`
	Widget      Widget   `json:"widget"`
	Options     []string `json:"options,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Value       Value    `json:"value"`
}

// RenderEditable lists the controls for the currently visible fields in schema order.
func RenderEditable(state FormState) []Control {
	out := make([]Control, 0, len(state.schema.fields))
	for _, f := range state.schema.fields {
		if !state.IsVisible(f.Name) {
			continue
		}
		c := Control{
			Name:        f.Name,
			Label:       f.Label,
			Section:     f.Section,
			Kind:        f.Kind,
			Options:     append([]string(nil), f.Options...),
			Placeholder: f.Placeholder,
			Value:       state.values[f.Name],
		}
		switch f.Kind {
		case KindEnum:
			c.Widget = WidgetSelect
		case KindMultiEnum:
			c.Widget = WidgetCheckboxes
		case KindBool:
			c.Widget = WidgetToggle
		case KindDate:
			c.Widget = WidgetDate
		default:
			c.Widget = WidgetInput
			if f.Multiline {
				c.Widget = WidgetTextarea
			}
		}
		out = append(out, c)
	}
	return out
}
