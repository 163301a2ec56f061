package api

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/coachdesk/internal/models"
)

func seedCourse(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	_, err := s.InsertCourse(ctx, &models.Course{ID: "c1", Name: "Core", Status: models.CourseDraft})
	require.NoError(t, err)
	for _, id := range []string{"m1", "m2", "m3"} {
		_, err := s.InsertModule(ctx, &models.Module{ID: id, CourseID: "c1", Name: id, Type: models.ModuleEducational})
		require.NoError(t, err)
	}
	_, err = s.InsertSection(ctx, &models.Section{ID: "s1", ModuleID: "m1", Title: "Intro"})
	require.NoError(t, err)
	_, err = s.InsertItem(ctx, &models.ContentItem{ID: "i1", SectionID: "s1", Title: "Hello", Kind: models.ContentText, Body: "hi"})
	require.NoError(t, err)
	_, err = s.InsertItem(ctx, &models.ContentItem{ID: "i2", SectionID: "s1", Title: "Workout", Kind: models.ContentWorkout,
		Exercises: []models.WorkoutExercise{{Name: "Bridge", Sets: 3}, {Name: "Plank", DurationSeconds: 30}}})
	require.NoError(t, err)
}

func moduleOrder(t *testing.T, s Store) []string {
	t.Helper()
	c, err := s.GetCourse(context.Background(), "c1")
	require.NoError(t, err)
	var ids []string
	for _, m := range c.Modules {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestMemoryStorePositionsAndReorder(t *testing.T) {
	s := NewMemoryStore()
	seedCourse(t, s)
	ctx := context.Background()

	assert.Equal(t, []string{"m1", "m2", "m3"}, moduleOrder(t, s))
	it, _ := s.GetItem(ctx, "i2")
	assert.Equal(t, 2, it.Position)

	ok, err := s.ReorderModules(ctx, "c1", []string{"m3", "nope", "m3", "m1"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"m3", "m1", "m2"}, moduleOrder(t, s))

	ok, _ = s.ReorderModules(ctx, "missing", []string{"m1"})
	assert.False(t, ok)

	m, err := s.InsertModule(ctx, &models.Module{ID: "m4", CourseID: "c1", Name: "m4"})
	require.NoError(t, err)
	assert.Equal(t, 4, m.Position)
}

func TestMemoryStoreCascadeDelete(t *testing.T) {
	s := NewMemoryStore()
	seedCourse(t, s)
	ctx := context.Background()

	ok, err := s.DeleteModule(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	sec, _ := s.GetSection(ctx, "s1")
	assert.Nil(t, sec)
	it, _ := s.GetItem(ctx, "i1")
	assert.Nil(t, it)

	ok, _ = s.DeleteModule(ctx, "m1")
	assert.False(t, ok)
}

func TestMemoryStoreUpsertKeepsIdentity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	first, err := s.UpsertIntakeResponse(ctx, &models.IntakeResponse{ID: "r1", ClientID: "c1", FormType: "f", CreatedAt: created,
		Responses: map[string]json.RawMessage{"a": json.RawMessage(`"x"`)}})
	require.NoError(t, err)
	second, err := s.UpsertIntakeResponse(ctx, &models.IntakeResponse{ID: "r2", ClientID: "c1", FormType: "f", CreatedAt: created.Add(time.Hour),
		Responses: map[string]json.RawMessage{"b": json.RawMessage(`"y"`)}})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, created, second.CreatedAt)

	got, _ := s.GetIntakeResponse(ctx, "c1", "f")
	assert.NotContains(t, got.Responses, "a")
	got.Responses["b"] = json.RawMessage(`"mutated"`)
	again, _ := s.GetIntakeResponse(ctx, "c1", "f")
	assert.Equal(t, `"y"`, string(again.Responses["b"]))

	none, err := s.GetIntakeResponse(ctx, "c2", "f")
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.UpsertIntakeResponse(ctx, &models.IntakeResponse{ClientID: "c1", FormType: "f"})
	assert.ErrorIs(t, err, context.Canceled)
	list, _ := s.ListIntakeResponses(context.Background(), "c1")
	assert.Empty(t, list)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "snapshot.json")
	s, err := NewMemoryStoreFromPath(path)
	require.NoError(t, err)
	seedCourse(t, s)
	ctx := context.Background()
	_, err = s.InsertMember(ctx, &models.Member{ID: "u1", Name: "Ana", Email: "ana@example.com", Status: models.MemberActive})
	require.NoError(t, err)
	s.AddAudit(models.AuditEntry{Action: "course_create", Target: "c1"})

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := NewMemoryStoreFromPath(path)
	require.NoError(t, err)
	c, err := reloaded.GetCourse(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, c.Modules, 3)
	require.Len(t, c.Modules[0].Sections[0].Items, 2)
	assert.Equal(t, "Plank", c.Modules[0].Sections[0].Items[1].Exercises[1].Name)
	m, _ := reloaded.GetMemberByEmail(ctx, "ANA@example.com")
	require.NotNil(t, m)
	entries, _ := reloaded.ListAudit(ctx, 0)
	assert.Len(t, entries, 1)

	dst := NewMemoryStore()
	require.NoError(t, CopySnapshot(ctx, reloaded.Snapshot(), dst))
	assert.Equal(t, moduleOrder(t, reloaded), moduleOrder(t, dst))
}

func TestFailedPersistLeavesStoreUnchanged(t *testing.T) {
	dir := t.TempDir()
	s, err := NewMemoryStoreFromPath(filepath.Join(dir, "snapshot.json"))
	require.NoError(t, err)
	seedCourse(t, s)
	ctx := context.Background()
	_, err = s.UpsertIntakeResponse(ctx, &models.IntakeResponse{ID: "r1", ClientID: "c1", FormType: "f",
		Responses: map[string]json.RawMessage{"fullName": json.RawMessage(`"Old"`)}})
	require.NoError(t, err)

	// a regular file where the snapshot directory should be makes every write fail
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	s.snapshotPath = filepath.Join(blocker, "snapshot.json")
	before := moduleOrder(t, s)

	_, err = s.UpsertIntakeResponse(ctx, &models.IntakeResponse{ClientID: "c1", FormType: "f",
		Responses: map[string]json.RawMessage{"fullName": json.RawMessage(`"New"`)}})
	require.Error(t, err)
	r, _ := s.GetIntakeResponse(ctx, "c1", "f")
	require.NotNil(t, r)
	assert.JSONEq(t, `"Old"`, string(r.Responses["fullName"]))

	_, err = s.UpsertIntakeResponse(ctx, &models.IntakeResponse{ClientID: "c2", FormType: "f"})
	require.Error(t, err)
	r, _ = s.GetIntakeResponse(ctx, "c2", "f")
	assert.Nil(t, r)

	require.Error(t, s.UpdateCourse(ctx, &models.Course{ID: "c1", Name: "Renamed", Status: models.CourseDraft}))
	c, _ := s.GetCourse(ctx, "c1")
	assert.Equal(t, "Core", c.Name)

	_, err = s.ReorderModules(ctx, "c1", []string{"m3", "m1"})
	require.Error(t, err)
	assert.Equal(t, before, moduleOrder(t, s))

	_, err = s.DeleteModule(ctx, "m1")
	require.Error(t, err)
	sec, _ := s.GetSection(ctx, "s1")
	assert.NotNil(t, sec)
	it, _ := s.GetItem(ctx, "i1")
	assert.NotNil(t, it)

	_, err = s.InsertMember(ctx, &models.Member{ID: "u1", Name: "Ana", Email: "ana@example.com", Status: models.MemberActive})
	require.Error(t, err)
	m, _ := s.GetMemberByEmail(ctx, "ana@example.com")
	assert.Nil(t, m)
}

func TestListAuditNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	for _, a := range []string{"one", "two", "three"} {
		s.AddAudit(models.AuditEntry{Action: a})
	}
	got, err := s.ListAudit(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].Action)
	assert.Equal(t, "two", got[1].Action)
}
