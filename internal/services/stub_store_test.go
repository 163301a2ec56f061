package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/soaringjerry/coachdesk/internal/models"
)

// stubStore implements every service store interface over plain maps.
type stubStore struct {
	responses map[string]*models.IntakeResponse // clientID|formType
	courses   map[string]*models.Course
	modules   map[string]*models.Module
	sections  map[string]*models.Section
	items     map[string]*models.ContentItem
	members   map[string]*models.Member
	audits    []models.AuditEntry

	upsertErr error
	reorderOK bool
	writes    int
}

func newStubStore() *stubStore {
	return &stubStore{
		responses: map[string]*models.IntakeResponse{},
		courses:   map[string]*models.Course{},
		modules:   map[string]*models.Module{},
		sections:  map[string]*models.Section{},
		items:     map[string]*models.ContentItem{},
		members:   map[string]*models.Member{},
		reorderOK: true,
	}
}

var (
	_ IntakeStore = (*stubStore)(nil)
	_ CourseStore = (*stubStore)(nil)
	_ MemberStore = (*stubStore)(nil)
	_ ExportStore = (*stubStore)(nil)
)

func (s *stubStore) AddAudit(e models.AuditEntry) { s.audits = append(s.audits, e) }

func (s *stubStore) UpsertIntakeResponse(_ context.Context, r *models.IntakeResponse) (*models.IntakeResponse, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.writes++
	key := r.ClientID + "|" + r.FormType
	cp := r.Clone()
	if prev, ok := s.responses[key]; ok {
		cp.ID = prev.ID
		cp.CreatedAt = prev.CreatedAt
	}
	s.responses[key] = cp
	return cp.Clone(), nil
}

func (s *stubStore) GetIntakeResponse(_ context.Context, clientID, formType string) (*models.IntakeResponse, error) {
	return s.responses[clientID+"|"+formType].Clone(), nil
}

func (s *stubStore) ListIntakeResponses(_ context.Context, clientID string) ([]*models.IntakeResponse, error) {
	var out []*models.IntakeResponse
	for _, r := range s.responses {
		if r.ClientID == clientID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FormType < out[j].FormType })
	return out, nil
}

func (s *stubStore) ListIntakeResponsesByForm(_ context.Context, formType string) ([]*models.IntakeResponse, error) {
	var out []*models.IntakeResponse
	for _, r := range s.responses {
		if r.FormType == formType {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func (s *stubStore) ListCourses(ctx context.Context) ([]*models.Course, error) {
	var out []*models.Course
	for id := range s.courses {
		c, _ := s.GetCourse(ctx, id)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubStore) InsertCourse(_ context.Context, c *models.Course) (*models.Course, error) {
	cp := *c
	s.courses[c.ID] = &cp
	return &cp, nil
}

// GetCourse assembles the tree ordered by position.
func (s *stubStore) GetCourse(_ context.Context, id string) (*models.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, nil
	}
	out := *c
	out.Modules = []models.Module{}
	for _, m := range s.modules {
		if m.CourseID != id {
			continue
		}
		mod := *m
		mod.Sections = []models.Section{}
		for _, sec := range s.sections {
			if sec.ModuleID != m.ID {
				continue
			}
			sc := *sec
			sc.Items = []models.ContentItem{}
			for _, it := range s.items {
				if it.SectionID == sec.ID {
					sc.Items = append(sc.Items, *it)
				}
			}
			sort.Slice(sc.Items, func(i, j int) bool { return sc.Items[i].Position < sc.Items[j].Position })
			mod.Sections = append(mod.Sections, sc)
		}
		sort.Slice(mod.Sections, func(i, j int) bool { return mod.Sections[i].Position < mod.Sections[j].Position })
		out.Modules = append(out.Modules, mod)
	}
	sort.Slice(out.Modules, func(i, j int) bool { return out.Modules[i].Position < out.Modules[j].Position })
	return &out, nil
}

func (s *stubStore) UpdateCourse(_ context.Context, c *models.Course) error {
	if _, ok := s.courses[c.ID]; !ok {
		return NewNotFoundError("course not found")
	}
	cp := *c
	cp.Modules = nil
	s.courses[c.ID] = &cp
	return nil
}

func (s *stubStore) InsertModule(_ context.Context, m *models.Module) (*models.Module, error) {
	cp := *m
	cp.Position = 1
	for _, other := range s.modules {
		if other.CourseID == m.CourseID && other.Position >= cp.Position {
			cp.Position = other.Position + 1
		}
	}
	s.modules[m.ID] = &cp
	out := cp
	return &out, nil
}

func (s *stubStore) GetModule(_ context.Context, id string) (*models.Module, error) {
	if m, ok := s.modules[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) DeleteModule(_ context.Context, id string) (bool, error) {
	if _, ok := s.modules[id]; !ok {
		return false, nil
	}
	delete(s.modules, id)
	return true, nil
}

func (s *stubStore) ReorderModules(_ context.Context, courseID string, order []string) (bool, error) {
	if !s.reorderOK {
		return false, nil
	}
	for i, id := range order {
		if m, ok := s.modules[id]; ok && m.CourseID == courseID {
			m.Position = i + 1
		}
	}
	return true, nil
}

func (s *stubStore) InsertSection(_ context.Context, sec *models.Section) (*models.Section, error) {
	cp := *sec
	cp.Position = 1
	for _, other := range s.sections {
		if other.ModuleID == sec.ModuleID && other.Position >= cp.Position {
			cp.Position = other.Position + 1
		}
	}
	s.sections[sec.ID] = &cp
	out := cp
	return &out, nil
}

func (s *stubStore) GetSection(_ context.Context, id string) (*models.Section, error) {
	if sec, ok := s.sections[id]; ok {
		cp := *sec
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) DeleteSection(_ context.Context, id string) (bool, error) {
	if _, ok := s.sections[id]; !ok {
		return false, nil
	}
	delete(s.sections, id)
	return true, nil
}

func (s *stubStore) InsertItem(_ context.Context, it *models.ContentItem) (*models.ContentItem, error) {
	cp := *it
	cp.Position = 1
	for _, other := range s.items {
		if other.SectionID == it.SectionID && other.Position >= cp.Position {
			cp.Position = other.Position + 1
		}
	}
	s.items[it.ID] = &cp
	out := cp
	return &out, nil
}

func (s *stubStore) GetItem(_ context.Context, id string) (*models.ContentItem, error) {
	if it, ok := s.items[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) DeleteItem(_ context.Context, id string) (bool, error) {
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

func (s *stubStore) ListMembers(_ context.Context, status models.MemberStatus) ([]*models.Member, error) {
	var out []*models.Member
	for _, m := range s.members {
		if status == "" || m.Status == status {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubStore) InsertMember(_ context.Context, m *models.Member) (*models.Member, error) {
	cp := *m
	s.members[m.ID] = &cp
	return &cp, nil
}

func (s *stubStore) GetMemberByEmail(_ context.Context, email string) (*models.Member, error) {
	for _, m := range s.members {
		if m.Email == email {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) UpdateMemberStatus(_ context.Context, id string, status models.MemberStatus) error {
	m, ok := s.members[id]
	if !ok {
		return errors.New("member not found")
	}
	m.Status = status
	return nil
}

func (s *stubStore) MarkReminded(_ context.Context, id string, at time.Time) error {
	m, ok := s.members[id]
	if !ok {
		return errors.New("member not found")
	}
	t := at
	m.LastRemindedAt = &t
	return nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + strconv.Itoa(n)
	}
}
