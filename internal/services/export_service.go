package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/soaringjerry/coachdesk/internal/intake"
	"github.com/soaringjerry/coachdesk/internal/models"
)

type ExportStore interface {
	ListIntakeResponsesByForm(ctx context.Context, formType string) ([]*models.IntakeResponse, error)
	ListMembers(ctx context.Context, status models.MemberStatus) ([]*models.Member, error)
	AddAudit(entry models.AuditEntry)
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

const (
	FormatCSV = "csv"
	FormatPNG = "png"
)

type ExportService struct {
	store    ExportStore
	fontPath string
	now      func() time.Time
}

func NewExportService(store ExportStore) *ExportService {
	return &ExportService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// SetFontPath sets the TrueType font used by print exports.
func (s *ExportService) SetFontPath(path string) { s.fontPath = path }

// IntakeColumns lists client_id, form_type and submitted_at, then every schema field
// in schema order.
func IntakeColumns(schema *intake.Schema) []Column[*models.IntakeResponse] {
	cols := []Column[*models.IntakeResponse]{
		{Header: "client_id", Value: func(r *models.IntakeResponse) string { return r.ClientID }},
		{Header: "form_type", Value: func(r *models.IntakeResponse) string { return r.FormType }},
		{Header: "submitted_at", Value: func(r *models.IntakeResponse) string {
			if r.SubmittedAt == nil {
				return ""
			}
			return r.SubmittedAt.UTC().Format(time.RFC3339)
		}},
	}
	for _, f := range schema.Fields() {
		cols = append(cols, Column[*models.IntakeResponse]{Header: f.Name, Value: func(r *models.IntakeResponse) string {
			raw, ok := r.Responses[f.Name]
			if !ok {
				return ""
			}
			vals, err := schema.Decode(map[string]json.RawMessage{f.Name: raw})
			if err != nil {
				return string(raw)
			}
			return intake.Format(vals[f.Name])
		}})
	}
	return cols
}

var memberColumns = []Column[*models.Member]{
	{Header: "id", Value: func(m *models.Member) string { return m.ID }},
	{Header: "name", Value: func(m *models.Member) string { return m.Name }},
	{Header: "email", Value: func(m *models.Member) string { return m.Email }},
	{Header: "plan", Value: func(m *models.Member) string { return m.Plan }},
	{Header: "status", Value: func(m *models.Member) string { return string(m.Status) }},
	{Header: "joined_at", Value: func(m *models.Member) string { return m.JoinedAt.UTC().Format(time.RFC3339) }},
	{Header: "expires_at", Value: func(m *models.Member) string {
		if m.ExpiresAt == nil {
			return ""
		}
		return m.ExpiresAt.UTC().Format(time.RFC3339)
	}},
}

func (s *ExportService) ExportIntake(ctx context.Context, formType, format string) (*ExportResult, error) {
	schema, ok := intake.Lookup(formType)
	if !ok {
		return nil, NewInvalidError("unknown form type")
	}
	rs, err := s.store.ListIntakeResponsesByForm(ctx, formType)
	if err != nil {
		return nil, err
	}
	table := Project(IntakeColumns(schema), rs)
	res, err := s.render(table, formType, schema.Title, format)
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(models.AuditEntry{Time: s.now(), Actor: ActorFrom(ctx), Action: "intake_export", Target: formType, Note: format})
	return res, nil
}

func (s *ExportService) ExportMembers(ctx context.Context, status models.MemberStatus, format string) (*ExportResult, error) {
	ms, err := s.store.ListMembers(ctx, status)
	if err != nil {
		return nil, err
	}
	return s.render(Project(memberColumns, ms), "members", "Members", format)
}

func (s *ExportService) render(t Table, base, title, format string) (*ExportResult, error) {
	switch format {
	case "", FormatCSV:
		return &ExportResult{Filename: base + ".csv", ContentType: "text/csv; charset=utf-8", Data: WriteCSV(t)}, nil
	case FormatPNG:
		b, err := RenderPrintGrid(t, GridOptions{Title: title, FontPath: s.fontPath})
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: base + ".png", ContentType: "image/png", Data: b}, nil
	default:
		return nil, NewInvalidError("unsupported format")
	}
}
