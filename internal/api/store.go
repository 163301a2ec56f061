package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soaringjerry/coachdesk/internal/logger"
	"github.com/soaringjerry/coachdesk/internal/models"
	"github.com/soaringjerry/coachdesk/internal/services"
)

// MemoryStore keeps everything in maps guarded by one RWMutex. With a snapshot path
// every write is flushed to a JSON file so a restart picks the data back up.
type MemoryStore struct {
	mu        sync.RWMutex
	responses map[string]*models.IntakeResponse // clientID|formType
	courses   map[string]*models.Course         // root fields only, Modules nil
	modules   map[string]*models.Module
	sections  map[string]*models.Section
	items     map[string]*models.ContentItem
	members   map[string]*models.Member
	audit     []models.AuditEntry

	snapshotPath string
	log          *logger.Logger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		responses: map[string]*models.IntakeResponse{},
		courses:   map[string]*models.Course{},
		modules:   map[string]*models.Module{},
		sections:  map[string]*models.Section{},
		items:     map[string]*models.ContentItem{},
		members:   map[string]*models.Member{},
		audit:     []models.AuditEntry{},
		log:       logger.Nop(),
	}
}

// Snapshot is the on-disk form of a MemoryStore. Courses carry their full tree.
type Snapshot struct {
	Responses []*models.IntakeResponse `json:"responses"`
	Courses   []*models.Course         `json:"courses"`
	Members   []*models.Member         `json:"members"`
	Audit     []models.AuditEntry      `json:"audit"`
}

// NewMemoryStoreFromPath loads the snapshot at path. A missing file yields an empty
// store that will create it on the first write.
func NewMemoryStoreFromPath(path string) (*MemoryStore, error) {
	s := NewMemoryStore()
	s.snapshotPath = path
	if path == "" {
		return s, nil
	}
	snap, err := LoadSnapshot(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	s.restore(snap)
	return s, nil
}

// LoadSnapshot reads a snapshot file without building a store around it.
func LoadSnapshot(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

func (s *MemoryStore) SetLogger(log *logger.Logger) {
	if log != nil {
		s.log = log.With("store", "memory")
	}
}

func (s *MemoryStore) restore(snap *Snapshot) {
	for _, r := range snap.Responses {
		if r != nil {
			s.responses[r.ClientID+"|"+r.FormType] = r.Clone()
		}
	}
	for _, c := range snap.Courses {
		if c == nil {
			continue
		}
		root := *c
		root.Modules = nil
		s.courses[c.ID] = &root
		for _, m := range c.Modules {
			mod := m
			mod.Sections = nil
			s.modules[m.ID] = &mod
			for _, sec := range m.Sections {
				sc := sec
				sc.Items = nil
				s.sections[sec.ID] = &sc
				for _, it := range sec.Items {
					item := it
					s.items[it.ID] = &item
				}
			}
		}
	}
	for _, m := range snap.Members {
		if m != nil {
			cp := *m
			s.members[m.ID] = &cp
		}
	}
	s.audit = append(s.audit, snap.Audit...)
}

// Snapshot returns a deep copy of the store contents.
func (s *MemoryStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *MemoryStore) snapshotLocked() *Snapshot {
	snap := &Snapshot{Responses: []*models.IntakeResponse{}, Courses: []*models.Course{}, Members: []*models.Member{}}
	for _, r := range s.responses {
		snap.Responses = append(snap.Responses, r.Clone())
	}
	sort.Slice(snap.Responses, func(i, j int) bool {
		a, b := snap.Responses[i], snap.Responses[j]
		if a.ClientID != b.ClientID {
			return a.ClientID < b.ClientID
		}
		return a.FormType < b.FormType
	})
	for _, c := range s.sortedCoursesLocked() {
		snap.Courses = append(snap.Courses, s.treeLocked(c))
	}
	snap.Members = s.membersLocked("")
	snap.Audit = append([]models.AuditEntry(nil), s.audit...)
	return snap
}

// persistLocked writes the snapshot through a temp file and rename.
func (s *MemoryStore) persistLocked() error {
	if s.snapshotPath == "" {
		return nil
	}
	b, err := json.MarshalIndent(s.snapshotLocked(), "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.snapshotPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, s.snapshotPath)
}

// commitLocked persists the current maps. When that fails, undo puts the maps back so
// reads never return a write the caller was told failed.
func (s *MemoryStore) commitLocked(undo func()) error {
	if err := s.persistLocked(); err != nil {
		undo()
		return err
	}
	return nil
}

// saveTreeLocked copies modules, sections and items and returns a func that restores them.
func (s *MemoryStore) saveTreeLocked() func() {
	modules := make(map[string]*models.Module, len(s.modules))
	for id, m := range s.modules {
		cp := *m
		modules[id] = &cp
	}
	sections := make(map[string]*models.Section, len(s.sections))
	for id, sec := range s.sections {
		cp := *sec
		sections[id] = &cp
	}
	items := make(map[string]*models.ContentItem, len(s.items))
	for id, it := range s.items {
		cp := *it
		items[id] = &cp
	}
	return func() {
		s.modules, s.sections, s.items = modules, sections, items
	}
}

// intake responses

func (s *MemoryStore) UpsertIntakeResponse(ctx context.Context, r *models.IntakeResponse) (*models.IntakeResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, services.NewInvalidError("response required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.ClientID + "|" + r.FormType
	cp := r.Clone()
	prev, had := s.responses[key]
	if had {
		cp.ID = prev.ID
		cp.CreatedAt = prev.CreatedAt
	}
	s.responses[key] = cp
	if err := s.commitLocked(func() {
		if had {
			s.responses[key] = prev
		} else {
			delete(s.responses, key)
		}
	}); err != nil {
		return nil, err
	}
	return cp.Clone(), nil
}

func (s *MemoryStore) GetIntakeResponse(ctx context.Context, clientID, formType string) (*models.IntakeResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responses[clientID+"|"+formType].Clone(), nil
}

func (s *MemoryStore) ListIntakeResponses(ctx context.Context, clientID string) ([]*models.IntakeResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.IntakeResponse{}
	for _, r := range s.responses {
		if r.ClientID == clientID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FormType < out[j].FormType })
	return out, nil
}

func (s *MemoryStore) ListIntakeResponsesByForm(ctx context.Context, formType string) ([]*models.IntakeResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.IntakeResponse{}
	for _, r := range s.responses {
		if r.FormType == formType {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

// course tree

func (s *MemoryStore) sortedCoursesLocked() []*models.Course {
	out := make([]*models.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// treeLocked assembles a copy of the course with children in position order.
func (s *MemoryStore) treeLocked(c *models.Course) *models.Course {
	out := *c
	out.Modules = []models.Module{}
	for _, m := range s.modules {
		if m.CourseID != c.ID {
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
					item := *it
					item.Exercises = append([]models.WorkoutExercise(nil), it.Exercises...)
					sc.Items = append(sc.Items, item)
				}
			}
			sort.Slice(sc.Items, func(i, j int) bool { return sc.Items[i].Position < sc.Items[j].Position })
			mod.Sections = append(mod.Sections, sc)
		}
		sort.Slice(mod.Sections, func(i, j int) bool { return mod.Sections[i].Position < mod.Sections[j].Position })
		out.Modules = append(out.Modules, mod)
	}
	sort.Slice(out.Modules, func(i, j int) bool { return out.Modules[i].Position < out.Modules[j].Position })
	return &out
}

func (s *MemoryStore) ListCourses(ctx context.Context) ([]*models.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Course{}
	for _, c := range s.sortedCoursesLocked() {
		out = append(out, s.treeLocked(c))
	}
	return out, nil
}

func (s *MemoryStore) InsertCourse(ctx context.Context, c *models.Course) (*models.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.courses[c.ID]; exists {
		return nil, services.NewConflictError("course already exists")
	}
	root := *c
	root.Modules = nil
	s.courses[c.ID] = &root
	if err := s.commitLocked(func() { delete(s.courses, c.ID) }); err != nil {
		return nil, err
	}
	return s.treeLocked(&root), nil
}

func (s *MemoryStore) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, nil
	}
	return s.treeLocked(c), nil
}

func (s *MemoryStore) UpdateCourse(ctx context.Context, c *models.Course) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.courses[c.ID]
	if !ok {
		return services.NewNotFoundError("course not found")
	}
	root := *c
	root.Modules = nil
	s.courses[c.ID] = &root
	return s.commitLocked(func() { s.courses[c.ID] = prev })
}

func (s *MemoryStore) InsertModule(ctx context.Context, m *models.Module) (*models.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[m.CourseID]; !ok {
		return nil, services.NewNotFoundError("course not found")
	}
	cp := *m
	cp.Sections = nil
	cp.Position = 1
	for _, other := range s.modules {
		if other.CourseID == m.CourseID && other.Position >= cp.Position {
			cp.Position = other.Position + 1
		}
	}
	s.modules[cp.ID] = &cp
	if err := s.commitLocked(func() { delete(s.modules, cp.ID) }); err != nil {
		return nil, err
	}
	out := cp
	out.Sections = []models.Section{}
	return &out, nil
}

func (s *MemoryStore) GetModule(ctx context.Context, id string) (*models.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modules[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// DeleteModule removes the module with its sections and items.
func (s *MemoryStore) DeleteModule(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[id]; !ok {
		return false, nil
	}
	undo := s.saveTreeLocked()
	for sid, sec := range s.sections {
		if sec.ModuleID == id {
			s.deleteSectionLocked(sid)
		}
	}
	delete(s.modules, id)
	if err := s.commitLocked(undo); err != nil {
		return false, err
	}
	return true, nil
}

// ReorderModules puts the listed modules first, in the given order, then the rest
// in their current order. Ids that do not belong to the course are ignored.
func (s *MemoryStore) ReorderModules(ctx context.Context, courseID string, order []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[courseID]; !ok {
		return false, nil
	}
	undo := s.saveTreeLocked()
	pos := 1
	seen := map[string]bool{}
	for _, id := range order {
		id = strings.TrimSpace(id)
		m, ok := s.modules[id]
		if id == "" || seen[id] || !ok || m.CourseID != courseID {
			continue
		}
		seen[id] = true
		m.Position = pos
		pos++
	}
	rest := []*models.Module{}
	for _, m := range s.modules {
		if m.CourseID == courseID && !seen[m.ID] {
			rest = append(rest, m)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Position != rest[j].Position {
			return rest[i].Position < rest[j].Position
		}
		return rest[i].ID < rest[j].ID
	})
	for _, m := range rest {
		m.Position = pos
		pos++
	}
	if err := s.commitLocked(undo); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) InsertSection(ctx context.Context, sec *models.Section) (*models.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[sec.ModuleID]; !ok {
		return nil, services.NewNotFoundError("module not found")
	}
	cp := *sec
	cp.Items = nil
	cp.Position = 1
	for _, other := range s.sections {
		if other.ModuleID == sec.ModuleID && other.Position >= cp.Position {
			cp.Position = other.Position + 1
		}
	}
	s.sections[cp.ID] = &cp
	if err := s.commitLocked(func() { delete(s.sections, cp.ID) }); err != nil {
		return nil, err
	}
	out := cp
	out.Items = []models.ContentItem{}
	return &out, nil
}

func (s *MemoryStore) GetSection(ctx context.Context, id string) (*models.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[id]
	if !ok {
		return nil, nil
	}
	cp := *sec
	return &cp, nil
}

func (s *MemoryStore) deleteSectionLocked(id string) {
	for iid, it := range s.items {
		if it.SectionID == id {
			delete(s.items, iid)
		}
	}
	delete(s.sections, id)
}

func (s *MemoryStore) DeleteSection(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[id]; !ok {
		return false, nil
	}
	undo := s.saveTreeLocked()
	s.deleteSectionLocked(id)
	if err := s.commitLocked(undo); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) InsertItem(ctx context.Context, it *models.ContentItem) (*models.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[it.SectionID]; !ok {
		return nil, services.NewNotFoundError("section not found")
	}
	cp := *it
	cp.Exercises = append([]models.WorkoutExercise(nil), it.Exercises...)
	cp.Position = 1
	for _, other := range s.items {
		if other.SectionID == it.SectionID && other.Position >= cp.Position {
			cp.Position = other.Position + 1
		}
	}
	s.items[cp.ID] = &cp
	if err := s.commitLocked(func() { delete(s.items, cp.ID) }); err != nil {
		return nil, err
	}
	out := cp
	return &out, nil
}

func (s *MemoryStore) GetItem(ctx context.Context, id string) (*models.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	cp := *it
	cp.Exercises = append([]models.WorkoutExercise(nil), it.Exercises...)
	return &cp, nil
}

func (s *MemoryStore) DeleteItem(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.items[id]
	if !ok {
		return false, nil
	}
	delete(s.items, id)
	if err := s.commitLocked(func() { s.items[id] = prev }); err != nil {
		return false, err
	}
	return true, nil
}

// members

func (s *MemoryStore) membersLocked(status models.MemberStatus) []*models.Member {
	out := []*models.Member{}
	for _, m := range s.members {
		if status == "" || m.Status == status {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) ListMembers(ctx context.Context, status models.MemberStatus) ([]*models.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.membersLocked(status), nil
}

func (s *MemoryStore) InsertMember(ctx context.Context, m *models.Member) (*models.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.members {
		if strings.EqualFold(other.Email, m.Email) {
			return nil, services.NewConflictError("member with this email already exists")
		}
	}
	cp := *m
	s.members[cp.ID] = &cp
	if err := s.commitLocked(func() { delete(s.members, cp.ID) }); err != nil {
		return nil, err
	}
	out := cp
	return &out, nil
}

func (s *MemoryStore) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.members {
		if strings.EqualFold(m.Email, email) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) UpdateMemberStatus(ctx context.Context, id string, status models.MemberStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return services.NewNotFoundError("member not found")
	}
	prev := m.Status
	m.Status = status
	return s.commitLocked(func() { m.Status = prev })
}

func (s *MemoryStore) MarkReminded(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return services.NewNotFoundError("member not found")
	}
	prev := m.LastRemindedAt
	t := at
	m.LastRemindedAt = &t
	return s.commitLocked(func() { m.LastRemindedAt = prev })
}

// audit log

func (s *MemoryStore) AddAudit(e models.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	n := len(s.audit)
	if err := s.commitLocked(func() { s.audit = s.audit[:n-1] }); err != nil {
		s.log.Warn("persist audit entry", "action", e.Action, "error", err)
	}
}

// ListAudit returns the newest entries first. A limit <= 0 returns everything.
func (s *MemoryStore) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.audit)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.AuditEntry, 0, n)
	for i := len(s.audit) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.audit[i])
	}
	return out, nil
}

// CopySnapshot replays a snapshot into dst in an order that keeps positions intact.
func CopySnapshot(ctx context.Context, snap *Snapshot, dst Store) error {
	if snap == nil {
		return nil
	}
	for _, r := range snap.Responses {
		if r == nil {
			continue
		}
		if _, err := dst.UpsertIntakeResponse(ctx, r); err != nil {
			return fmt.Errorf("copy response %s: %w", r.ID, err)
		}
	}
	for _, c := range snap.Courses {
		if c == nil {
			continue
		}
		if _, err := dst.InsertCourse(ctx, c); err != nil {
			return fmt.Errorf("copy course %s: %w", c.ID, err)
		}
		for _, m := range c.Modules {
			mod := m
			if _, err := dst.InsertModule(ctx, &mod); err != nil {
				return fmt.Errorf("copy module %s: %w", m.ID, err)
			}
			for _, sec := range m.Sections {
				sc := sec
				if _, err := dst.InsertSection(ctx, &sc); err != nil {
					return fmt.Errorf("copy section %s: %w", sec.ID, err)
				}
				for _, it := range sec.Items {
					item := it
					if _, err := dst.InsertItem(ctx, &item); err != nil {
						return fmt.Errorf("copy item %s: %w", it.ID, err)
					}
				}
			}
		}
	}
	for _, m := range snap.Members {
		if m == nil {
			continue
		}
		if _, err := dst.InsertMember(ctx, m); err != nil {
			return fmt.Errorf("copy member %s: %w", m.ID, err)
		}
	}
	for _, e := range snap.Audit {
		dst.AddAudit(e)
	}
	return nil
}
