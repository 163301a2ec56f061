package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/coachdesk/internal/cache"
	"github.com/soaringjerry/coachdesk/internal/content"
	"github.com/soaringjerry/coachdesk/internal/logger"
	"github.com/soaringjerry/coachdesk/internal/models"
)

// CourseStore persists the course tree. Getters return nil, nil for a missing node.
// Insert methods assign the next position within the parent.
type CourseStore interface {
	ListCourses(ctx context.Context) ([]*models.Course, error)
	InsertCourse(ctx context.Context, c *models.Course) (*models.Course, error)
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	UpdateCourse(ctx context.Context, c *models.Course) error
	InsertModule(ctx context.Context, m *models.Module) (*models.Module, error)
	GetModule(ctx context.Context, id string) (*models.Module, error)
	DeleteModule(ctx context.Context, id string) (bool, error)
	ReorderModules(ctx context.Context, courseID string, order []string) (bool, error)
	InsertSection(ctx context.Context, s *models.Section) (*models.Section, error)
	GetSection(ctx context.Context, id string) (*models.Section, error)
	DeleteSection(ctx context.Context, id string) (bool, error)
	InsertItem(ctx context.Context, it *models.ContentItem) (*models.ContentItem, error)
	GetItem(ctx context.Context, id string) (*models.ContentItem, error)
	DeleteItem(ctx context.Context, id string) (bool, error)
	AddAudit(entry models.AuditEntry)
}

type CourseService struct {
	store       CourseStore
	cache       *readCache
	log         *logger.Logger
	rec         Recorder
	now         func() time.Time
	idGenerator func() string
}

func NewCourseService(store CourseStore, c cache.Cache, log *logger.Logger) *CourseService {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("service", "CourseService")
	return &CourseService{
		store:       store,
		cache:       newReadCache(c, log),
		log:         log,
		rec:         nopRecorder{},
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: uuid.NewString,
	}
}

func (s *CourseService) SetRecorder(r Recorder) {
	if r != nil {
		s.rec = r
	}
}

func previewKey(courseID string) string { return "course:" + courseID }

type CourseInput struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Status      models.CourseStatus `json:"status"`
	CoverImage  string              `json:"coverImage"`
}

// CourseListEntry is one row of the admin course list.
type CourseListEntry struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Status      models.CourseStatus `json:"status"`
	ModuleCount int                 `json:"moduleCount"`
	HasIssues   bool                `json:"hasIssues"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func (s *CourseService) ListCourses(ctx context.Context) ([]CourseListEntry, error) {
	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CourseListEntry, 0, len(courses))
	for _, c := range courses {
		out = append(out, CourseListEntry{
			ID:          c.ID,
			Name:        c.Name,
			Status:      c.Status,
			ModuleCount: len(c.Modules),
			HasIssues:   content.Audit(c).HasIssues(),
			UpdatedAt:   c.UpdatedAt,
		})
	}
	return out, nil
}

func validateCourseInput(in *CourseInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return NewInvalidError("name required")
	}
	if in.Status == "" {
		in.Status = models.CourseDraft
	}
	if !in.Status.Valid() {
		return NewInvalidError("invalid status")
	}
	return nil
}

func (s *CourseService) CreateCourse(ctx context.Context, in CourseInput) (*models.Course, error) {
	if err := validateCourseInput(&in); err != nil {
		return nil, err
	}
	now := s.now()
	c := &models.Course{
		ID:          s.idGenerator(),
		Name:        in.Name,
		Description: in.Description,
		Status:      in.Status,
		CoverImage:  strings.TrimSpace(in.CoverImage),
		Modules:     []models.Module{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.store.InsertCourse(ctx, c)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = c
	}
	s.audit(ctx, "course_create", created.ID, created.Name)
	return created, nil
}

func (s *CourseService) UpdateCourse(ctx context.Context, id string, in CourseInput) (*models.Course, error) {
	if err := validateCourseInput(&in); err != nil {
		return nil, err
	}
	c, err := s.mustCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name = in.Name
	c.Description = in.Description
	c.Status = in.Status
	c.CoverImage = strings.TrimSpace(in.CoverImage)
	c.UpdatedAt = s.now()
	if err := s.store.UpdateCourse(ctx, c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	s.audit(ctx, "course_update", id, "")
	return c, nil
}

func (s *CourseService) mustCourse(ctx context.Context, id string) (*models.Course, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NewInvalidError("course id required")
	}
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, NewNotFoundError("course not found")
	}
	return c, nil
}

// Preview returns the whole tree for one course. A missing course is a not-found error
// so the view can render its failed-to-load state.
func (s *CourseService) Preview(ctx context.Context, id string) (*models.Course, error) {
	var cached models.Course
	var gen uint64
	if id != "" {
		var hit bool
		if hit, gen = s.cache.get(ctx, s.rec, "course", previewKey(id), &cached); hit {
			return &cached, nil
		}
	}
	c, err := s.mustCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.put(ctx, previewKey(id), gen, c)
	return c, nil
}

type AuditView struct {
	CourseID   string `json:"courseId"`
	CourseName string `json:"courseName"`
	HasIssues  bool   `json:"hasIssues"`
	content.Report
}

func (s *CourseService) Audit(ctx context.Context, id string) (*AuditView, error) {
	c, err := s.Preview(ctx, id)
	if err != nil {
		return nil, err
	}
	r := content.Audit(c)
	return &AuditView{CourseID: c.ID, CourseName: c.Name, HasIssues: r.HasIssues(), Report: r}, nil
}

// Outline flattens the tree for the given expanded ids, or for everything when all is set.
func (s *CourseService) Outline(ctx context.Context, id string, all bool, expanded []string) ([]content.Row, error) {
	c, err := s.Preview(ctx, id)
	if err != nil {
		return nil, err
	}
	set := content.NewExpandedSet(expanded...)
	if all {
		set = content.ExpandAll(c)
	}
	return content.Outline(c, set), nil
}

type ModuleInput struct {
	Name string            `json:"name"`
	Type models.ModuleType `json:"type"`
}

func (s *CourseService) AddModule(ctx context.Context, courseID string, in ModuleInput) (*models.Module, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewInvalidError("name required")
	}
	if in.Type == "" {
		in.Type = models.ModuleEducational
	}
	if !in.Type.Valid() {
		return nil, NewInvalidError("invalid module type")
	}
	if _, err := s.mustCourse(ctx, courseID); err != nil {
		return nil, err
	}
	m := &models.Module{ID: s.idGenerator(), CourseID: courseID, Name: name, Type: in.Type, Sections: []models.Section{}}
	created, err := s.store.InsertModule(ctx, m)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = m
	}
	s.invalidate(ctx, courseID)
	s.audit(ctx, "module_create", created.ID, courseID)
	return created, nil
}

func (s *CourseService) DeleteModule(ctx context.Context, id string) error {
	m, err := s.store.GetModule(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return NewNotFoundError("module not found")
	}
	ok, err := s.store.DeleteModule(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("module not found")
	}
	s.invalidate(ctx, m.CourseID)
	s.audit(ctx, "module_delete", id, m.CourseID)
	return nil
}

// ReorderModules applies an explicit order; modules not listed keep their relative
// order after the listed ones.
func (s *CourseService) ReorderModules(ctx context.Context, courseID string, order []string) (int, error) {
	if len(order) == 0 {
		return 0, NewInvalidError("order required")
	}
	if _, err := s.mustCourse(ctx, courseID); err != nil {
		return 0, err
	}
	ok, err := s.store.ReorderModules(ctx, courseID, order)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, NewInvalidError("reorder failed")
	}
	s.invalidate(ctx, courseID)
	return len(order), nil
}

type SectionInput struct {
	Title string `json:"title"`
}

func (s *CourseService) AddSection(ctx context.Context, moduleID string, in SectionInput) (*models.Section, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, NewInvalidError("title required")
	}
	m, err := s.store.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, NewNotFoundError("module not found")
	}
	sec := &models.Section{ID: s.idGenerator(), ModuleID: moduleID, Title: title, Items: []models.ContentItem{}}
	created, err := s.store.InsertSection(ctx, sec)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = sec
	}
	s.invalidate(ctx, m.CourseID)
	s.audit(ctx, "section_create", created.ID, moduleID)
	return created, nil
}

func (s *CourseService) DeleteSection(ctx context.Context, id string) error {
	courseID, err := s.courseOfSection(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.store.DeleteSection(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("section not found")
	}
	s.invalidate(ctx, courseID)
	s.audit(ctx, "section_delete", id, "")
	return nil
}

type ItemInput struct {
	Title     string                   `json:"title"`
	Kind      models.ContentKind       `json:"kind"`
	VideoURL  string                   `json:"videoUrl"`
	Body      string                   `json:"body"`
	FileURL   string                   `json:"fileUrl"`
	Exercises []models.WorkoutExercise `json:"exercises"`
}

func validateItem(in *ItemInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return NewInvalidError("title required")
	}
	if !in.Kind.Valid() {
		return NewInvalidError("invalid content kind")
	}
	switch in.Kind {
	case models.ContentVideo:
		if strings.TrimSpace(in.VideoURL) == "" {
			return NewInvalidError("videoUrl required for video content")
		}
	case models.ContentPDF:
		if strings.TrimSpace(in.FileURL) == "" {
			return NewInvalidError("fileUrl required for pdf content")
		}
	case models.ContentWorkout:
		if len(in.Exercises) == 0 {
			return NewInvalidError("workout needs at least one exercise")
		}
		for i, ex := range in.Exercises {
			if strings.TrimSpace(ex.Name) == "" {
				return NewInvalidError("exercise name required")
			}
			if ex.Sets < 0 || ex.DurationSeconds < 0 || ex.RestSeconds < 0 {
				return NewInvalidError("exercise values must not be negative")
			}
			in.Exercises[i].Name = strings.TrimSpace(ex.Name)
		}
	}
	return nil
}

func (s *CourseService) AddItem(ctx context.Context, sectionID string, in ItemInput) (*models.ContentItem, error) {
	if err := validateItem(&in); err != nil {
		return nil, err
	}
	courseID, err := s.courseOfSection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	it := &models.ContentItem{
		ID:        s.idGenerator(),
		SectionID: sectionID,
		Title:     in.Title,
		Kind:      in.Kind,
		VideoURL:  strings.TrimSpace(in.VideoURL),
		Body:      in.Body,
		FileURL:   strings.TrimSpace(in.FileURL),
		Exercises: in.Exercises,
	}
	created, err := s.store.InsertItem(ctx, it)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = it
	}
	s.invalidate(ctx, courseID)
	s.audit(ctx, "item_create", created.ID, sectionID)
	return created, nil
}

func (s *CourseService) DeleteItem(ctx context.Context, id string) error {
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if it == nil {
		return NewNotFoundError("item not found")
	}
	courseID, err := s.courseOfSection(ctx, it.SectionID)
	if err != nil {
		return err
	}
	ok, err := s.store.DeleteItem(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("item not found")
	}
	s.invalidate(ctx, courseID)
	s.audit(ctx, "item_delete", id, it.SectionID)
	return nil
}

func (s *CourseService) courseOfSection(ctx context.Context, sectionID string) (string, error) {
	sec, err := s.store.GetSection(ctx, sectionID)
	if err != nil {
		return "", err
	}
	if sec == nil {
		return "", NewNotFoundError("section not found")
	}
	m, err := s.store.GetModule(ctx, sec.ModuleID)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", NewNotFoundError("module not found")
	}
	return m.CourseID, nil
}

func (s *CourseService) invalidate(ctx context.Context, courseID string) {
	if err := s.cache.invalidate(ctx, previewKey(courseID)); err != nil {
		s.log.Error("cache invalidation failed", "course_id", courseID, "error", err)
	}
}

func (s *CourseService) audit(ctx context.Context, action, target, note string) {
	s.store.AddAudit(models.AuditEntry{Time: s.now(), Actor: ActorFrom(ctx), Action: action, Target: target, Note: note})
}
