package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/coachdesk/internal/cache"
	"github.com/soaringjerry/coachdesk/internal/intake"
	"github.com/soaringjerry/coachdesk/internal/logger"
	"github.com/soaringjerry/coachdesk/internal/models"
)

// IntakeStore persists one IntakeResponse per (client, form type).
// GetIntakeResponse returns nil, nil when nothing was submitted yet.
type IntakeStore interface {
	UpsertIntakeResponse(ctx context.Context, r *models.IntakeResponse) (*models.IntakeResponse, error)
	GetIntakeResponse(ctx context.Context, clientID, formType string) (*models.IntakeResponse, error)
	ListIntakeResponses(ctx context.Context, clientID string) ([]*models.IntakeResponse, error)
	AddAudit(entry models.AuditEntry)
}

type IntakeService struct {
	store       IntakeStore
	cache       *readCache
	log         *logger.Logger
	rec         Recorder
	now         func() time.Time
	idGenerator func() string
}

func NewIntakeService(store IntakeStore, c cache.Cache, log *logger.Logger) *IntakeService {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("service", "IntakeService")
	return &IntakeService{
		store:       store,
		cache:       newReadCache(c, log),
		log:         log,
		rec:         nopRecorder{},
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: uuid.NewString,
	}
}

// SetRecorder attaches service counters.
func (s *IntakeService) SetRecorder(r Recorder) {
	if r != nil {
		s.rec = r
	}
}

type FormTypeInfo struct {
	FormType string `json:"formType"`
	Title    string `json:"title"`
}

func (s *IntakeService) FormTypes() []FormTypeInfo {
	types := intake.FormTypes()
	out := make([]FormTypeInfo, 0, len(types))
	for _, ft := range types {
		sc, _ := intake.Lookup(ft)
		out = append(out, FormTypeInfo{FormType: ft, Title: sc.Title})
	}
	return out
}

func (s *IntakeService) Schema(formType string) (*intake.Schema, error) {
	sc, ok := intake.Lookup(formType)
	if !ok {
		return nil, NewNotFoundError("unknown form type")
	}
	return sc, nil
}

func listKey(clientID string) string               { return "intake:list:" + clientID }
func responseKey(clientID, formType string) string { return "intake:" + clientID + ":" + formType }

// List returns every submitted form of a client; an empty slice when there are none.
func (s *IntakeService) List(ctx context.Context, clientID string) ([]*models.IntakeResponse, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, NewInvalidError("client id required")
	}
	var cached []*models.IntakeResponse
	hit, gen := s.cache.get(ctx, s.rec, "intake", listKey(clientID), &cached)
	if hit {
		return cached, nil
	}
	rs, err := s.store.ListIntakeResponses(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = []*models.IntakeResponse{}
	}
	s.cache.put(ctx, listKey(clientID), gen, rs)
	return rs, nil
}

// Get returns nil, nil when the client has not submitted formType yet.
func (s *IntakeService) Get(ctx context.Context, clientID, formType string) (*models.IntakeResponse, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, NewInvalidError("client id required")
	}
	if _, err := s.Schema(formType); err != nil {
		return nil, err
	}
	var cached *models.IntakeResponse
	hit, gen := s.cache.get(ctx, s.rec, "intake", responseKey(clientID, formType), &cached)
	if hit && cached != nil {
		return cached, nil
	}
	r, err := s.store.GetIntakeResponse(ctx, clientID, formType)
	if err != nil {
		return nil, err
	}
	if r != nil {
		s.cache.put(ctx, responseKey(clientID, formType), gen, r)
	}
	return r, nil
}

type EditView struct {
	ClientID    string                     `json:"clientId"`
	FormType    string                     `json:"formType"`
	Title       string                     `json:"title"`
	Submitted   bool                       `json:"submitted"`
	SubmittedAt *time.Time                 `json:"submittedAt,omitempty"`
	Values      map[string]json.RawMessage `json:"values"`
	Controls    []intake.Control           `json:"controls"`
}

// LoadForEdit prepares the editable form: stored answers over defaults, with the
// controls visible for that state.
func (s *IntakeService) LoadForEdit(ctx context.Context, clientID, formType string) (*EditView, error) {
	existing, err := s.Get(ctx, clientID, formType)
	if err != nil {
		return nil, err
	}
	sc, _ := intake.Lookup(formType)
	state := intake.LoadForEdit(sc, existing)
	view := &EditView{
		ClientID: clientID,
		FormType: formType,
		Title:    sc.Title,
		Values:   state.ToSubmission(),
		Controls: intake.RenderEditable(state),
	}
	if existing != nil {
		view.Submitted = true
		view.SubmittedAt = existing.SubmittedAt
	}
	return view, nil
}

type SummaryView struct {
	ClientID    string     `json:"clientId"`
	Submitted   bool       `json:"submitted"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	intake.Summary
}

// Summary renders the read-only review. A form that was never submitted yields an
// empty summary with Submitted false, not an error.
func (s *IntakeService) Summary(ctx context.Context, clientID, formType string) (*SummaryView, error) {
	existing, err := s.Get(ctx, clientID, formType)
	if err != nil {
		return nil, err
	}
	sc, _ := intake.Lookup(formType)
	view := &SummaryView{ClientID: clientID}
	if existing == nil {
		view.Summary = intake.RenderReadOnly(sc, nil)
		return view, nil
	}
	view.Submitted = true
	view.SubmittedAt = existing.SubmittedAt
	view.Summary = intake.RenderReadOnly(sc, existing.Responses)
	return view, nil
}

type SubmitInput struct {
	ClientID  string                     `json:"clientId"`
	FormType  string                     `json:"formType"`
	Responses map[string]json.RawMessage `json:"responses"`
}

// Submit validates and upserts the full answer set, replacing any earlier submission.
// Cached reads of the client are dropped only after the store has acknowledged the
// write, so the next read sees it.
func (s *IntakeService) Submit(ctx context.Context, in SubmitInput) (*models.IntakeResponse, error) {
	saved, err := s.submit(ctx, in)
	s.rec.RecordSubmission(in.FormType, err)
	return saved, err
}

func (s *IntakeService) submit(ctx context.Context, in SubmitInput) (*models.IntakeResponse, error) {
	clientID := strings.TrimSpace(in.ClientID)
	if clientID == "" {
		return nil, NewInvalidError("client id required")
	}
	sc, ok := intake.Lookup(in.FormType)
	if !ok {
		return nil, NewInvalidError("unknown form type")
	}
	if len(in.Responses) == 0 {
		return nil, NewInvalidError("nothing to submit")
	}
	values, err := sc.Decode(in.Responses)
	if err != nil {
		var fe *intake.FieldError
		if errors.As(err, &fe) {
			return nil, NewInvalidError("invalid value for " + fe.Field + ": " + fe.Err.Error())
		}
		return nil, NewInvalidError(err.Error())
	}

	now := s.now()
	rec := &models.IntakeResponse{
		ID:          s.idGenerator(),
		ClientID:    clientID,
		FormType:    in.FormType,
		Responses:   intake.Encode(values),
		SubmittedAt: &now,
		CreatedAt:   now,
	}
	saved, err := s.store.UpsertIntakeResponse(ctx, rec)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		saved = rec
	}
	if err := s.cache.invalidate(ctx, listKey(clientID), responseKey(clientID, in.FormType)); err != nil {
		s.log.Error("cache invalidation failed", "client_id", clientID, "form_type", in.FormType, "error", err)
	}
	s.store.AddAudit(models.AuditEntry{Time: now, Actor: ActorFrom(ctx), Action: "intake_submit", Target: clientID, Note: in.FormType})
	s.log.Info("intake submitted", "client_id", clientID, "form_type", in.FormType)
	return saved, nil
}
