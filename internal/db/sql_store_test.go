package db

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/coachdesk/internal/logger"
	"github.com/soaringjerry/coachdesk/internal/models"
	"github.com/soaringjerry/coachdesk/internal/services"
)

func TestRebind(t *testing.T) {
	q := "UPDATE modules SET position = ? WHERE id = ? AND course_id = ?"
	assert.Equal(t, q, rebind(DialectSQLite, q))
	assert.Equal(t, "UPDATE modules SET position = $1 WHERE id = $2 AND course_id = $3", rebind(DialectPostgres, q))
}

func TestTimeFormatSortsAsText(t *testing.T) {
	a := time.Date(2026, 3, 1, 9, 0, 0, 5, time.UTC)
	b := time.Date(2026, 3, 1, 9, 0, 0, 40, time.UTC)
	assert.Less(t, formatTime(a), formatTime(b))
	got, err := parseTime(formatTime(b))
	require.NoError(t, err)
	assert.True(t, got.Equal(b))

	legacy, err := parseTime("2026-03-01T09:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 7, legacy.UTC().Hour())
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s, err := NewSQLStore(db, DialectPostgres, logger.Nop())
	require.NoError(t, err)
	return s, mock
}

func TestListMembersPostgres(t *testing.T) {
	s, mock := newMockStore(t)
	joined := formatTime(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	expires := formatTime(time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC))

	rows := mock.NewRows([]string{"id", "name", "email", "plan", "status", "joined_at", "expires_at", "last_reminded_at"}).
		AddRow("u1", "Ana", "ana@example.com", "12-week", "active", joined, expires, nil)
	mock.ExpectQuery(`SELECT (.+) FROM members WHERE status = \$1`).WithArgs("active").WillReturnRows(rows)

	got, err := s.ListMembers(context.Background(), models.MemberActive)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ana", got[0].Name)
	require.NotNil(t, got[0].ExpiresAt)
	assert.Equal(t, time.April, got[0].ExpiresAt.Month())
	assert.Nil(t, got[0].LastRemindedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMemberUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO members").WillReturnError(&pq.Error{Code: "23505"})

	_, err := s.InsertMember(context.Background(), &models.Member{ID: "u1", Email: "Ana@Example.com", Status: models.MemberActive})
	se, ok := services.AsServiceError(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, services.ErrorConflict, se.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReorderModulesRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses`).WithArgs("c1").
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT id FROM modules WHERE course_id = \$1`).WithArgs("c1").
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow("m1").AddRow("m2"))
	mock.ExpectExec(`UPDATE modules SET position`).WithArgs(1, "m2", "c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE modules SET position`).WithArgs(2, "m1", "c1").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	ok, err := s.ReorderModules(context.Background(), "c1", []string{"m2"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCourseSurfacesRowIterationError(t *testing.T) {
	s, mock := newMockStore(t)
	at := formatTime(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	mock.ExpectQuery(`SELECT (.+) FROM courses WHERE id = \$1`).WithArgs("c1").
		WillReturnRows(mock.NewRows([]string{"id", "name", "description", "status", "cover_image", "created_at", "updated_at"}).
			AddRow("c1", "Core", "", "draft", "", at, at))
	mock.ExpectQuery(`SELECT (.+) FROM content_items`).WithArgs("c1").
		WillReturnRows(mock.NewRows([]string{"id", "section_id", "title", "kind", "position", "video_url", "body", "file_url", "exercises"}).
			AddRow("i1", "s1", "Hello", "text", 1, "", "hi", "", "[]").
			RowError(0, assert.AnError))

	c, err := s.GetCourse(context.Background(), "c1")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddAuditLogsFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO audit_log").WillReturnError(assert.AnError)
	s.AddAudit(models.AuditEntry{Time: time.Now(), Actor: "coach", Action: "course_create", Target: "c1"})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, DialectSQLite, filepath.Join(t.TempDir(), "coachdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	applied, err := RunMigrations(ctx, db, DialectSQLite, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql"}, applied)
	again, err := RunMigrations(ctx, db, DialectSQLite, "")
	require.NoError(t, err)
	assert.Empty(t, again)

	s, err := NewSQLStore(db, DialectSQLite, logger.Nop())
	require.NoError(t, err)
	return s
}

func TestSQLiteCourseTree(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.InsertCourse(ctx, &models.Course{ID: "c1", Name: "Core", Status: models.CourseDraft, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	_, err = s.InsertCourse(ctx, &models.Course{ID: "c1", Name: "Dup", Status: models.CourseDraft, CreatedAt: now, UpdatedAt: now})
	se, ok := services.AsServiceError(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, services.ErrorConflict, se.Code)

	for _, id := range []string{"m1", "m2", "m3"} {
		m, err := s.InsertModule(ctx, &models.Module{ID: id, CourseID: "c1", Name: id, Type: models.ModuleEducational})
		require.NoError(t, err)
		assert.NotZero(t, m.Position)
	}
	_, err = s.InsertModule(ctx, &models.Module{ID: "mx", CourseID: "missing", Name: "x", Type: models.ModuleFAQ})
	se, ok = services.AsServiceError(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, services.ErrorNotFound, se.Code)

	_, err = s.InsertSection(ctx, &models.Section{ID: "s1", ModuleID: "m1", Title: "Intro"})
	require.NoError(t, err)
	_, err = s.InsertItem(ctx, &models.ContentItem{ID: "i1", SectionID: "s1", Title: "Read", Kind: models.ContentText, Body: "hello"})
	require.NoError(t, err)
	it, err := s.InsertItem(ctx, &models.ContentItem{ID: "i2", SectionID: "s1", Title: "Move", Kind: models.ContentWorkout,
		Exercises: []models.WorkoutExercise{{Name: "Bridge", Sets: 3, Reps: "10"}}})
	require.NoError(t, err)
	assert.Equal(t, 2, it.Position)

	ok, err = s.ReorderModules(ctx, "c1", []string{"m3", "nope", "m3", "m1"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ReorderModules(ctx, "missing", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := s.GetCourse(ctx, "c1")
	require.NoError(t, err)
	var order []string
	for _, m := range c.Modules {
		order = append(order, m.ID)
	}
	assert.Equal(t, []string{"m3", "m1", "m2"}, order)
	require.Len(t, c.Modules[1].Sections, 1)
	items := c.Modules[1].Sections[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, "Bridge", items[1].Exercises[0].Name)
	assert.Empty(t, c.Modules[0].Sections)

	ok, err = s.DeleteModule(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	sec, err := s.GetSection(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, sec)
	gone, err := s.GetItem(ctx, "i2")
	require.NoError(t, err)
	assert.Nil(t, gone)

	all, err := s.ListCourses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Modules, 2)

	assert.Error(t, s.UpdateCourse(ctx, &models.Course{ID: "missing", Status: models.CourseDraft}))
}

func TestSQLiteIntakeUpsert(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	submitted := created.Add(time.Minute)

	first, err := s.UpsertIntakeResponse(ctx, &models.IntakeResponse{ID: "r1", ClientID: "c1", FormType: "health_evaluation",
		Responses: map[string]json.RawMessage{"fullName": json.RawMessage(`"Jane"`)}, SubmittedAt: &submitted, CreatedAt: created})
	require.NoError(t, err)
	second, err := s.UpsertIntakeResponse(ctx, &models.IntakeResponse{ID: "r2", ClientID: "c1", FormType: "health_evaluation",
		Responses: map[string]json.RawMessage{"fullName": json.RawMessage(`"Jane Doe"`)}, CreatedAt: created.Add(time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.CreatedAt.Equal(created))
	assert.Nil(t, second.SubmittedAt)
	assert.JSONEq(t, `"Jane Doe"`, string(second.Responses["fullName"]))

	byForm, err := s.ListIntakeResponsesByForm(ctx, "health_evaluation")
	require.NoError(t, err)
	assert.Len(t, byForm, 1)
	none, err := s.GetIntakeResponse(ctx, "c2", "health_evaluation")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteMembersAndAudit(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	joined := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.InsertMember(ctx, &models.Member{ID: "u1", Name: "Ana", Email: "Ana@Example.com", Status: models.MemberActive, JoinedAt: joined})
	require.NoError(t, err)
	_, err = s.InsertMember(ctx, &models.Member{ID: "u2", Name: "Ana", Email: "ana@example.com", Status: models.MemberActive, JoinedAt: joined})
	se, ok := services.AsServiceError(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, services.ErrorConflict, se.Code)

	m, err := s.GetMemberByEmail(ctx, "ANA@example.com")
	require.NoError(t, err)
	require.NotNil(t, m)

	require.NoError(t, s.UpdateMemberStatus(ctx, "u1", models.MemberExpired))
	require.NoError(t, s.MarkReminded(ctx, "u1", joined.Add(time.Hour)))
	assert.Error(t, s.MarkReminded(ctx, "nobody", joined))

	expired, err := s.ListMembers(ctx, models.MemberExpired)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.NotNil(t, expired[0].LastRemindedAt)

	for i, action := range []string{"one", "two", "three"} {
		s.AddAudit(models.AuditEntry{Time: joined.Add(time.Duration(i) * time.Second), Actor: "coach", Action: action})
	}
	entries, err := s.ListAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "three", entries[0].Action)
	assert.Equal(t, "two", entries[1].Action)
}
