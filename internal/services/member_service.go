package services

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/coachdesk/internal/logger"
	"github.com/soaringjerry/coachdesk/internal/models"
)

type MemberStore interface {
	// ListMembers filters by status; an empty status lists everyone.
	ListMembers(ctx context.Context, status models.MemberStatus) ([]*models.Member, error)
	InsertMember(ctx context.Context, m *models.Member) (*models.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (*models.Member, error)
	UpdateMemberStatus(ctx context.Context, id string, status models.MemberStatus) error
	MarkReminded(ctx context.Context, id string, at time.Time) error
	AddAudit(entry models.AuditEntry)
}

// Notifier delivers expiry reminders. Email delivery lives outside this service.
type Notifier interface {
	NotifyExpiry(ctx context.Context, m *models.Member, expiresIn time.Duration) error
}

// LogNotifier records reminders in the log instead of sending them.
type LogNotifier struct {
	Log *logger.Logger
}

func (n LogNotifier) NotifyExpiry(_ context.Context, m *models.Member, expiresIn time.Duration) error {
	if n.Log != nil {
		n.Log.Info("expiry reminder", "member_id", m.ID, "email", m.Email, "days_left", int(expiresIn.Hours()/24))
	}
	return nil
}

type MemberService struct {
	store       MemberStore
	notifier    Notifier
	log         *logger.Logger
	rec         Recorder
	now         func() time.Time
	idGenerator func() string
}

func NewMemberService(store MemberStore, notifier Notifier, log *logger.Logger) *MemberService {
	if log == nil {
		log = logger.Nop()
	}
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	return &MemberService{
		store:       store,
		notifier:    notifier,
		log:         log.With("service", "MemberService"),
		rec:         nopRecorder{},
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: uuid.NewString,
	}
}

func (s *MemberService) SetRecorder(r Recorder) {
	if r != nil {
		s.rec = r
	}
}

func (s *MemberService) ListMembers(ctx context.Context, status models.MemberStatus) ([]*models.Member, error) {
	switch status {
	case "", models.MemberActive, models.MemberExpired, models.MemberCancelled:
	default:
		return nil, NewInvalidError("invalid status")
	}
	ms, err := s.store.ListMembers(ctx, status)
	if err != nil {
		return nil, err
	}
	if ms == nil {
		ms = []*models.Member{}
	}
	return ms, nil
}

type MemberInput struct {
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Plan      string     `json:"plan"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (s *MemberService) CreateMember(ctx context.Context, in MemberInput) (*models.Member, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewInvalidError("name required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return nil, NewInvalidError("valid email required")
	}
	email := strings.ToLower(addr.Address)
	existing, err := s.store.GetMemberByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("member with this email already exists")
	}
	now := s.now()
	m := &models.Member{
		ID:        s.idGenerator(),
		Name:      name,
		Email:     email,
		Plan:      strings.TrimSpace(in.Plan),
		Status:    models.MemberActive,
		JoinedAt:  now,
		ExpiresAt: in.ExpiresAt,
	}
	created, err := s.store.InsertMember(ctx, m)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = m
	}
	s.store.AddAudit(models.AuditEntry{Time: now, Actor: ActorFrom(ctx), Action: "member_create", Target: created.ID})
	return created, nil
}

func lapsed(m *models.Member, now time.Time) bool {
	return m.Status == models.MemberActive && m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// ListExpired returns members already marked expired plus active members whose
// membership has run out. The latter are reported with status expired.
func (s *MemberService) ListExpired(ctx context.Context) ([]*models.Member, error) {
	all, err := s.store.ListMembers(ctx, "")
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := []*models.Member{}
	for _, m := range all {
		switch {
		case m.Status == models.MemberExpired:
			out = append(out, m)
		case lapsed(m, now):
			cp := *m
			cp.Status = models.MemberExpired
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ExpireLapsed persists the expired status for active members past their end date.
func (s *MemberService) ExpireLapsed(ctx context.Context) (int, error) {
	active, err := s.store.ListMembers(ctx, models.MemberActive)
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := 0
	for _, m := range active {
		if !lapsed(m, now) {
			continue
		}
		if err := s.store.UpdateMemberStatus(ctx, m.ID, models.MemberExpired); err != nil {
			return n, err
		}
		n++
		s.store.AddAudit(models.AuditEntry{Time: now, Actor: ActorFrom(ctx), Action: "member_expire", Target: m.ID})
	}
	if n > 0 {
		s.log.Info("expired lapsed memberships", "count", n)
	}
	return n, nil
}

type ReminderResult struct {
	Sent   []string          `json:"sent"`
	Failed map[string]string `json:"failed"`
}

// SendExpiryReminders notifies active members whose membership ends within the window
// and who were not already reminded inside it. A failed notification is collected and
// the run continues; nothing is retried.
func (s *MemberService) SendExpiryReminders(ctx context.Context, within time.Duration) (*ReminderResult, error) {
	if within <= 0 {
		return nil, NewInvalidError("window must be positive")
	}
	active, err := s.store.ListMembers(ctx, models.MemberActive)
	if err != nil {
		return nil, err
	}
	now := s.now()
	res := &ReminderResult{Sent: []string{}, Failed: map[string]string{}}
	for _, m := range active {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if m.ExpiresAt == nil || !m.ExpiresAt.After(now) || m.ExpiresAt.After(now.Add(within)) {
			continue
		}
		if m.LastRemindedAt != nil && m.LastRemindedAt.After(now.Add(-within)) {
			continue
		}
		err := s.notifier.NotifyExpiry(ctx, m, m.ExpiresAt.Sub(now))
		s.rec.RecordReminder(err)
		if err != nil {
			res.Failed[m.ID] = err.Error()
			s.log.Warn("expiry reminder failed", "member_id", m.ID, "error", err)
			continue
		}
		if err := s.store.MarkReminded(ctx, m.ID, now); err != nil {
			return res, err
		}
		res.Sent = append(res.Sent, m.ID)
	}
	return res, nil
}
