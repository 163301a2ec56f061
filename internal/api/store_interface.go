package api

import (
	"context"

	"github.com/soaringjerry/coachdesk/internal/models"
	"github.com/soaringjerry/coachdesk/internal/services"
)

// Store is the full persistence surface the server needs. The in-memory store and
// db.SQLStore both satisfy it.
type Store interface {
	services.IntakeStore
	services.CourseStore
	services.MemberStore
	services.ExportStore

	ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

var _ Store = (*MemoryStore)(nil)
