package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soaringjerry/coachdesk/internal/cache"
	"github.com/soaringjerry/coachdesk/internal/intake"
	"github.com/soaringjerry/coachdesk/internal/models"
)

// pausingStore holds the next armed read after it has fetched its result, so a write can
// land between that read and the cache fill that follows it.
type pausingStore struct {
	*stubStore
	armed  atomic.Bool
	read   chan struct{}
	resume chan struct{}
}

func newPausingStore() *pausingStore {
	return &pausingStore{stubStore: newStubStore(), read: make(chan struct{}), resume: make(chan struct{})}
}

func (s *pausingStore) pause() {
	if s.armed.CompareAndSwap(true, false) {
		s.read <- struct{}{}
		<-s.resume
	}
}

func (s *pausingStore) GetIntakeResponse(ctx context.Context, clientID, formType string) (*models.IntakeResponse, error) {
	r, err := s.stubStore.GetIntakeResponse(ctx, clientID, formType)
	s.pause()
	return r, err
}

func (s *pausingStore) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	c, err := s.stubStore.GetCourse(ctx, id)
	s.pause()
	return c, err
}

func newLRU(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewLRU(16, time.Minute)
	if err != nil {
		t.Fatalf("new lru: %v", err)
	}
	return c
}

func TestSlowReadDoesNotCacheOverSubmit(t *testing.T) {
	store := newPausingStore()
	svc := NewIntakeService(store, newLRU(t), nil)
	ctx := context.Background()

	submit := func(name string) {
		t.Helper()
		if _, err := svc.Submit(ctx, SubmitInput{ClientID: "c1", FormType: intake.FormHealthEvaluation, Responses: responses("fullName", name)}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	submit("Old Name")

	store.armed.Store(true)
	done := make(chan *models.IntakeResponse, 1)
	go func() {
		r, _ := svc.Get(ctx, "c1", intake.FormHealthEvaluation)
		done <- r
	}()
	<-store.read
	submit("New Name")
	close(store.resume)
	<-done

	got, err := svc.Get(ctx, "c1", intake.FormHealthEvaluation)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Responses["fullName"]) != `"New Name"` {
		t.Fatalf("stale read after submit: %s", got.Responses["fullName"])
	}
}

func TestSlowPreviewDoesNotCacheOverUpdate(t *testing.T) {
	store := newPausingStore()
	svc := NewCourseService(store, newLRU(t), nil)
	svc.idGenerator = sequentialIDs("n")
	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, CourseInput{Name: "Core Restore"})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}

	store.armed.Store(true)
	done := make(chan struct{})
	go func() {
		_, _ = svc.Preview(ctx, course.ID)
		close(done)
	}()
	<-store.read
	if _, err := svc.UpdateCourse(ctx, course.ID, CourseInput{Name: "Core Rebuild"}); err != nil {
		t.Fatalf("update course: %v", err)
	}
	close(store.resume)
	<-done

	got, err := svc.Preview(ctx, course.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if got.Name != "Core Rebuild" {
		t.Fatalf("stale preview after update: %q", got.Name)
	}
}

func TestReadCacheGenerations(t *testing.T) {
	rc := newReadCache(newLRU(t), nil)
	ctx := context.Background()

	var v string
	hit, gen := rc.get(ctx, nopRecorder{}, "test", "k", &v)
	if hit {
		t.Fatal("expected a miss on an empty cache")
	}
	if err := rc.invalidate(ctx, "k"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	rc.put(ctx, "k", gen, "stale")
	if hit, _ := rc.get(ctx, nopRecorder{}, "test", "k", &v); hit {
		t.Fatalf("put with an old generation must not fill the cache, got %q", v)
	}

	_, gen = rc.get(ctx, nopRecorder{}, "test", "k", &v)
	rc.put(ctx, "k", gen, "fresh")
	if hit, _ := rc.get(ctx, nopRecorder{}, "test", "k", &v); !hit || v != "fresh" {
		t.Fatalf("expected cached value, hit=%v v=%q", hit, v)
	}
}
