package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soaringjerry/coachdesk/internal/intake"
	"github.com/soaringjerry/coachdesk/internal/models"
)

// ErrSubmitInFlight is returned by Submit and Set while an earlier Submit has not finished.
var ErrSubmitInFlight = errors.New("submit already in progress")

// FormSession is one person's edit of one questionnaire. Edits live in the session until
// a submit succeeds; a failed submit leaves them untouched.
type FormSession struct {
	api      *Client
	clientID string
	schema   *intake.Schema

	mu       sync.Mutex
	state    intake.FormState
	saved    *models.IntakeResponse
	inFlight bool
}

// OpenForm loads the stored answers, if any, over the form defaults.
func (c *Client) OpenForm(ctx context.Context, clientID, formType string) (*FormSession, error) {
	if err := checkClientID(clientID); err != nil {
		return nil, err
	}
	schema, ok := intake.Lookup(formType)
	if !ok {
		return nil, fmt.Errorf("unknown form type %q", formType)
	}
	existing, err := c.GetResponse(ctx, clientID, formType)
	if err != nil {
		return nil, err
	}
	return &FormSession{
		api:      c,
		clientID: clientID,
		schema:   schema,
		state:    intake.LoadForEdit(schema, existing),
		saved:    existing,
	}, nil
}

func (s *FormSession) State() intake.FormState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Saved is the last record the server acknowledged, nil before the first submit.
func (s *FormSession) Saved() *models.IntakeResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved.Clone()
}

// Busy reports whether a submit is pending; a form shows its submit control disabled.
func (s *FormSession) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Set changes one answer. It is refused while a submit is pending, since the reload that
// follows a successful submit replaces the state.
func (s *FormSession) Set(name string, v intake.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrSubmitInFlight
	}
	next, err := s.state.SetField(name, v)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// Submit sends the current answers. On success the session reloads the stored record;
// on failure the edits are kept so the person can retry.
func (s *FormSession) Submit(ctx context.Context) (*models.IntakeResponse, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	s.inFlight = true
	payload := s.state.ToSubmission()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	saved, err := s.api.SubmitResponse(ctx, s.clientID, s.schema.FormType, payload)
	if err != nil {
		return nil, err
	}
	fresh, err := s.api.GetResponse(ctx, s.clientID, s.schema.FormType)
	if err != nil {
		// the write went through; keep what the submit returned
		fresh = saved
	}
	if fresh == nil {
		fresh = saved
	}
	s.mu.Lock()
	s.saved = fresh
	s.state = intake.LoadForEdit(s.schema, fresh)
	s.mu.Unlock()
	return fresh.Clone(), nil
}
