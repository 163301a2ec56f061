package models

import (
	"encoding/json"
	"time"
)

// IntakeResponse is the persisted answer set for one client and one questionnaire kind.
// Responses is the open wire map; it is decoded against the form schema by package intake.
type IntakeResponse struct {
	ID          string                     `json:"id"`
	ClientID    string                     `json:"clientId"`
	FormType    string                     `json:"formType"`
	Responses   map[string]json.RawMessage `json:"responses"`
	SubmittedAt *time.Time                 `json:"submittedAt,omitempty"`
	CreatedAt   time.Time                  `json:"createdAt"`
}

// Clone returns a deep copy so callers can hand records out without sharing maps.
func (r *IntakeResponse) Clone() *IntakeResponse {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Responses != nil {
		cp.Responses = make(map[string]json.RawMessage, len(r.Responses))
		for k, v := range r.Responses {
			cp.Responses[k] = append(json.RawMessage(nil), v...)
		}
	}
	if r.SubmittedAt != nil {
		t := *r.SubmittedAt
		cp.SubmittedAt = &t
	}
	return &cp
}

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

func (s CourseStatus) Valid() bool {
	switch s {
	case CourseDraft, CoursePublished, CourseArchived:
		return true
	}
	return false
}

type ModuleType string

const (
	ModuleEducational ModuleType = "educational"
	ModuleWorkout     ModuleType = "workout"
	ModuleFAQ         ModuleType = "faq"
	ModuleProgress    ModuleType = "progress"
	ModuleNutrition   ModuleType = "nutrition"
)

func (t ModuleType) Valid() bool {
	switch t {
	case ModuleEducational, ModuleWorkout, ModuleFAQ, ModuleProgress, ModuleNutrition:
		return true
	}
	return false
}

type ContentKind string

const (
	ContentVideo    ContentKind = "video"
	ContentText     ContentKind = "text"
	ContentExercise ContentKind = "exercise"
	ContentPDF      ContentKind = "pdf"
	ContentWorkout  ContentKind = "workout"
	ContentOther    ContentKind = "other"
)

func (k ContentKind) Valid() bool {
	switch k {
	case ContentVideo, ContentText, ContentExercise, ContentPDF, ContentWorkout, ContentOther:
		return true
	}
	return false
}

// Course is the root of the content tree. Modules are kept in Position order.
type Course struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Status      CourseStatus `json:"status"`
	CoverImage  string       `json:"coverImage,omitempty"`
	Modules     []Module     `json:"modules"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type Module struct {
	ID       string     `json:"id"`
	CourseID string     `json:"courseId"`
	Name     string     `json:"name"`
	Type     ModuleType `json:"type"`
	Position int        `json:"position"`
	Sections []Section  `json:"sections"`
}

type Section struct {
	ID       string        `json:"id"`
	ModuleID string        `json:"moduleId"`
	Title    string        `json:"title"`
	Position int           `json:"position"`
	Items    []ContentItem `json:"items"`
}

// ContentItem carries a kind-specific payload: VideoURL for video, Body for text,
// FileURL for pdf and Exercises for workout.
type ContentItem struct {
	ID        string            `json:"id"`
	SectionID string            `json:"sectionId"`
	Title     string            `json:"title"`
	Kind      ContentKind       `json:"kind"`
	Position  int               `json:"position"`
	VideoURL  string            `json:"videoUrl,omitempty"`
	Body      string            `json:"body,omitempty"`
	FileURL   string            `json:"fileUrl,omitempty"`
	Exercises []WorkoutExercise `json:"exercises,omitempty"`
}

type WorkoutExercise struct {
	Name            string `json:"name"`
	Sets            int    `json:"sets,omitempty"`
	Reps            string `json:"reps,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	RestSeconds     int    `json:"restSeconds,omitempty"`
	Notes           string `json:"notes,omitempty"`
	VideoURL        string `json:"videoUrl,omitempty"`
}

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberExpired   MemberStatus = "expired"
	MemberCancelled MemberStatus = "cancelled"
)

// Member is a coaching client with a time-boxed membership.
type Member struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Plan           string       `json:"plan,omitempty"`
	Status         MemberStatus `json:"status"`
	JoinedAt       time.Time    `json:"joinedAt"`
	ExpiresAt      *time.Time   `json:"expiresAt,omitempty"`
	LastRemindedAt *time.Time   `json:"lastRemindedAt,omitempty"`
}

// AuditEntry records an admin action: submissions, course edits, membership changes.
type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}
