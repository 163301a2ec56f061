package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/coachdesk/internal/logger"
	"github.com/soaringjerry/coachdesk/internal/models"
	"github.com/soaringjerry/coachdesk/internal/services"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// rebind turns ? placeholders into $n for Postgres.
func rebind(dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// Open connects to SQLite or Postgres and checks the connection.
func Open(ctx context.Context, dialect, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is required")
	}
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectSQLite:
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		db, err = sql.Open(DialectSQLite, dsn+sep+"_busy_timeout=5000&_foreign_keys=on")
		if err == nil {
			// one writer; also keeps :memory: databases on a single connection
			db.SetMaxOpenConns(1)
		}
	case DialectPostgres:
		db, err = sql.Open(DialectPostgres, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}

// SQLStore persists everything in SQL. Queries are written with ? placeholders and
// rebound for Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect string
	log     *logger.Logger
}

func NewSQLStore(db *sql.DB, dialect string, log *logger.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if log == nil {
		log = logger.Nop()
	}
	if dialect == DialectSQLite {
		pragmas := []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		}
		for _, stmt := range pragmas {
			if _, err := db.Exec(stmt); err != nil {
				return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
			}
		}
	} else if dialect != DialectPostgres {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &SQLStore{db: db, dialect: dialect, log: log.With("store", dialect)}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, rebind(s.dialect, query), args...)
}

func (s *SQLStore) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, rebind(s.dialect, query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, rebind(s.dialect, query), args...)
}

// inTx runs fn in a transaction and rolls back when it fails.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// intake responses

const intakeColumns = "id, client_id, form_type, responses, submitted_at, created_at"

func scanIntake(row interface{ Scan(...any) error }) (*models.IntakeResponse, error) {
	var (
		r         models.IntakeResponse
		raw       string
		submitted sql.NullString
		created   string
		err       error
	)
	if err = row.Scan(&r.ID, &r.ClientID, &r.FormType, &raw, &submitted, &created); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(raw), &r.Responses); err != nil {
		return nil, fmt.Errorf("decode responses for %s: %w", r.ID, err)
	}
	if r.SubmittedAt, err = timePtr(submitted); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertIntakeResponse keeps the existing id and created_at for a (client, form) pair
// and replaces the answers and submission time.
func (s *SQLStore) UpsertIntakeResponse(ctx context.Context, r *models.IntakeResponse) (*models.IntakeResponse, error) {
	if r == nil {
		return nil, services.NewInvalidError("response required")
	}
	responses := r.Responses
	if responses == nil {
		responses = map[string]json.RawMessage{}
	}
	b, err := json.Marshal(responses)
	if err != nil {
		return nil, err
	}
	_, err = s.exec(ctx, s.db, `INSERT INTO intake_responses (`+intakeColumns+`)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (client_id, form_type) DO UPDATE SET responses = excluded.responses, submitted_at = excluded.submitted_at`,
		r.ID, r.ClientID, r.FormType, string(b), nullTime(r.SubmittedAt), formatTime(r.CreatedAt))
	if err != nil {
		return nil, err
	}
	return s.GetIntakeResponse(ctx, r.ClientID, r.FormType)
}

func (s *SQLStore) GetIntakeResponse(ctx context.Context, clientID, formType string) (*models.IntakeResponse, error) {
	r, err := scanIntake(s.queryRow(ctx, s.db,
		"SELECT "+intakeColumns+" FROM intake_responses WHERE client_id = ? AND form_type = ?", clientID, formType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLStore) listIntake(ctx context.Context, where, order string, arg string) ([]*models.IntakeResponse, error) {
	rows, err := s.query(ctx, s.db, "SELECT "+intakeColumns+" FROM intake_responses WHERE "+where+" ORDER BY "+order, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.IntakeResponse{}
	for rows.Next() {
		r, err := scanIntake(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListIntakeResponses(ctx context.Context, clientID string) ([]*models.IntakeResponse, error) {
	return s.listIntake(ctx, "client_id = ?", "form_type", clientID)
}

func (s *SQLStore) ListIntakeResponsesByForm(ctx context.Context, formType string) ([]*models.IntakeResponse, error) {
	return s.listIntake(ctx, "form_type = ?", "client_id", formType)
}

// course tree

const courseColumns = "id, name, description, status, cover_image, created_at, updated_at"

func scanCourse(row interface{ Scan(...any) error }) (*models.Course, error) {
	var (
		c                models.Course
		created, updated string
		err              error
	)
	if err = row.Scan(&c.ID, &c.Name, &c.Description, &c.Status, &c.CoverImage, &created, &updated); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	c.Modules = []models.Module{}
	return &c, nil
}

func (s *SQLStore) ListCourses(ctx context.Context) ([]*models.Course, error) {
	rows, err := s.query(ctx, s.db, "SELECT "+courseColumns+" FROM courses ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	out := []*models.Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	if err := finishRows(rows); err != nil {
		return nil, err
	}
	if err := s.attachTrees(ctx, out, ""); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) InsertCourse(ctx context.Context, c *models.Course) (*models.Course, error) {
	_, err := s.exec(ctx, s.db, "INSERT INTO courses ("+courseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.Name, c.Description, string(c.Status), c.CoverImage, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, services.NewConflictError("course already exists")
		}
		return nil, err
	}
	return s.GetCourse(ctx, c.ID)
}

// GetCourse returns the course with modules, sections and items in position order.
func (s *SQLStore) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	c, err := scanCourse(s.queryRow(ctx, s.db, "SELECT "+courseColumns+" FROM courses WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachTrees(ctx, []*models.Course{c}, id); err != nil {
		return nil, err
	}
	return c, nil
}

// finishRows surfaces an iteration error before closing, so a result set cut short is
// not read as complete.
func finishRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

// attachTrees loads children for courses with three queries. courseID narrows the
// queries to one course; empty loads everything.
func (s *SQLStore) attachTrees(ctx context.Context, courses []*models.Course, courseID string) error {
	if len(courses) == 0 {
		return nil
	}
	modFilter, secFilter, itemFilter := "", "", ""
	var args []any
	if courseID != "" {
		modFilter = " WHERE course_id = ?"
		secFilter = " WHERE module_id IN (SELECT id FROM modules WHERE course_id = ?)"
		itemFilter = " WHERE section_id IN (SELECT s.id FROM sections s JOIN modules m ON s.module_id = m.id WHERE m.course_id = ?)"
		args = []any{courseID}
	}

	items := map[string][]models.ContentItem{}
	rows, err := s.query(ctx, s.db, "SELECT "+itemColumns+" FROM content_items"+itemFilter+" ORDER BY position, id", args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return err
		}
		items[it.SectionID] = append(items[it.SectionID], *it)
	}
	if err := finishRows(rows); err != nil {
		return err
	}

	sections := map[string][]models.Section{}
	rows, err = s.query(ctx, s.db, "SELECT id, module_id, title, position FROM sections"+secFilter+" ORDER BY position, id", args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var sec models.Section
		if err := rows.Scan(&sec.ID, &sec.ModuleID, &sec.Title, &sec.Position); err != nil {
			rows.Close()
			return err
		}
		sec.Items = items[sec.ID]
		if sec.Items == nil {
			sec.Items = []models.ContentItem{}
		}
		sections[sec.ModuleID] = append(sections[sec.ModuleID], sec)
	}
	if err := finishRows(rows); err != nil {
		return err
	}

	modules := map[string][]models.Module{}
	rows, err = s.query(ctx, s.db, "SELECT id, course_id, name, type, position FROM modules"+modFilter+" ORDER BY position, id", args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var m models.Module
		if err := rows.Scan(&m.ID, &m.CourseID, &m.Name, &m.Type, &m.Position); err != nil {
			rows.Close()
			return err
		}
		m.Sections = sections[m.ID]
		if m.Sections == nil {
			m.Sections = []models.Section{}
		}
		modules[m.CourseID] = append(modules[m.CourseID], m)
	}
	if err := finishRows(rows); err != nil {
		return err
	}

	for _, c := range courses {
		if ms := modules[c.ID]; ms != nil {
			c.Modules = ms
		}
	}
	return nil
}

func (s *SQLStore) UpdateCourse(ctx context.Context, c *models.Course) error {
	res, err := s.exec(ctx, s.db, "UPDATE courses SET name = ?, description = ?, status = ?, cover_image = ?, updated_at = ? WHERE id = ?",
		c.Name, c.Description, string(c.Status), c.CoverImage, formatTime(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return services.NewNotFoundError("course not found")
	}
	return nil
}

func (s *SQLStore) exists(ctx context.Context, q querier, table, id string) (bool, error) {
	var n int
	if err := s.queryRow(ctx, q, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// nextPosition mirrors the append-at-end rule for every level of the tree.
func (s *SQLStore) nextPosition(ctx context.Context, q querier, table, parentColumn, parentID string) (int, error) {
	var pos sql.NullInt64
	err := s.queryRow(ctx, q, "SELECT COALESCE(MAX(position), 0) + 1 FROM "+table+" WHERE "+parentColumn+" = ?", parentID).Scan(&pos)
	if err != nil {
		return 0, err
	}
	if pos.Valid {
		return int(pos.Int64), nil
	}
	return 1, nil
}

func (s *SQLStore) InsertModule(ctx context.Context, m *models.Module) (*models.Module, error) {
	out := *m
	out.Sections = []models.Section{}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "courses", m.CourseID)
		if err != nil {
			return err
		}
		if !ok {
			return services.NewNotFoundError("course not found")
		}
		pos, err := s.nextPosition(ctx, tx, "modules", "course_id", m.CourseID)
		if err != nil {
			return err
		}
		out.Position = pos
		_, err = s.exec(ctx, tx, "INSERT INTO modules (id, course_id, name, type, position) VALUES (?, ?, ?, ?, ?)",
			m.ID, m.CourseID, m.Name, string(m.Type), pos)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SQLStore) GetModule(ctx context.Context, id string) (*models.Module, error) {
	var m models.Module
	err := s.queryRow(ctx, s.db, "SELECT id, course_id, name, type, position FROM modules WHERE id = ?", id).
		Scan(&m.ID, &m.CourseID, &m.Name, &m.Type, &m.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteModule removes the module and its subtree explicitly so it does not depend on
// foreign key enforcement being enabled on the connection.
func (s *SQLStore) DeleteModule(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, "DELETE FROM content_items WHERE section_id IN (SELECT id FROM sections WHERE module_id = ?)", id); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, "DELETE FROM sections WHERE module_id = ?", id); err != nil {
			return err
		}
		res, err := s.exec(ctx, tx, "DELETE FROM modules WHERE id = ?", id)
		if err != nil {
			return err
		}
		ok, err = affected(res)
		return err
	})
	return ok, err
}

// ReorderModules puts the listed modules first, then the rest in their current order.
func (s *SQLStore) ReorderModules(ctx context.Context, courseID string, order []string) (bool, error) {
	if strings.TrimSpace(courseID) == "" {
		return false, nil
	}
	var found bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "courses", courseID)
		if err != nil || !ok {
			return err
		}
		found = true

		rows, err := s.query(ctx, tx, "SELECT id FROM modules WHERE course_id = ? ORDER BY position, id", courseID)
		if err != nil {
			return err
		}
		var current []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			current = append(current, id)
		}
		if err := finishRows(rows); err != nil {
			return err
		}

		member := map[string]bool{}
		for _, id := range current {
			member[id] = true
		}
		seen := map[string]bool{}
		final := make([]string, 0, len(current))
		for _, id := range order {
			id = strings.TrimSpace(id)
			if member[id] && !seen[id] {
				seen[id] = true
				final = append(final, id)
			}
		}
		for _, id := range current {
			if !seen[id] {
				final = append(final, id)
			}
		}
		for i, id := range final {
			if _, err := s.exec(ctx, tx, "UPDATE modules SET position = ? WHERE id = ? AND course_id = ?", i+1, id, courseID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn("reorder modules failed", "course_id", courseID, "error", err)
		return false, err
	}
	return found, nil
}

func (s *SQLStore) InsertSection(ctx context.Context, sec *models.Section) (*models.Section, error) {
	out := *sec
	out.Items = []models.ContentItem{}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "modules", sec.ModuleID)
		if err != nil {
			return err
		}
		if !ok {
			return services.NewNotFoundError("module not found")
		}
		pos, err := s.nextPosition(ctx, tx, "sections", "module_id", sec.ModuleID)
		if err != nil {
			return err
		}
		out.Position = pos
		_, err = s.exec(ctx, tx, "INSERT INTO sections (id, module_id, title, position) VALUES (?, ?, ?, ?)",
			sec.ID, sec.ModuleID, sec.Title, pos)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SQLStore) GetSection(ctx context.Context, id string) (*models.Section, error) {
	var sec models.Section
	err := s.queryRow(ctx, s.db, "SELECT id, module_id, title, position FROM sections WHERE id = ?", id).
		Scan(&sec.ID, &sec.ModuleID, &sec.Title, &sec.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

func (s *SQLStore) DeleteSection(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, "DELETE FROM content_items WHERE section_id = ?", id); err != nil {
			return err
		}
		res, err := s.exec(ctx, tx, "DELETE FROM sections WHERE id = ?", id)
		if err != nil {
			return err
		}
		ok, err = affected(res)
		return err
	})
	return ok, err
}

const itemColumns = "id, section_id, title, kind, position, video_url, body, file_url, exercises"

func scanItem(row interface{ Scan(...any) error }) (*models.ContentItem, error) {
	var (
		it        models.ContentItem
		exercises sql.NullString
	)
	if err := row.Scan(&it.ID, &it.SectionID, &it.Title, &it.Kind, &it.Position, &it.VideoURL, &it.Body, &it.FileURL, &exercises); err != nil {
		return nil, err
	}
	if exercises.Valid && exercises.String != "" {
		if err := json.Unmarshal([]byte(exercises.String), &it.Exercises); err != nil {
			return nil, fmt.Errorf("decode exercises for %s: %w", it.ID, err)
		}
	}
	return &it, nil
}

func (s *SQLStore) InsertItem(ctx context.Context, it *models.ContentItem) (*models.ContentItem, error) {
	var exercises sql.NullString
	if len(it.Exercises) > 0 {
		b, err := json.Marshal(it.Exercises)
		if err != nil {
			return nil, err
		}
		exercises = sql.NullString{String: string(b), Valid: true}
	}
	out := *it
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.exists(ctx, tx, "sections", it.SectionID)
		if err != nil {
			return err
		}
		if !ok {
			return services.NewNotFoundError("section not found")
		}
		pos, err := s.nextPosition(ctx, tx, "content_items", "section_id", it.SectionID)
		if err != nil {
			return err
		}
		out.Position = pos
		_, err = s.exec(ctx, tx, "INSERT INTO content_items ("+itemColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			it.ID, it.SectionID, it.Title, string(it.Kind), pos, it.VideoURL, it.Body, it.FileURL, exercises)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SQLStore) GetItem(ctx context.Context, id string) (*models.ContentItem, error) {
	it, err := scanItem(s.queryRow(ctx, s.db, "SELECT "+itemColumns+" FROM content_items WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

func (s *SQLStore) DeleteItem(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, s.db, "DELETE FROM content_items WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// members

const memberColumns = "id, name, email, plan, status, joined_at, expires_at, last_reminded_at"

func scanMember(row interface{ Scan(...any) error }) (*models.Member, error) {
	var (
		m                 models.Member
		joined            string
		expires, reminded sql.NullString
		err               error
	)
	if err = row.Scan(&m.ID, &m.Name, &m.Email, &m.Plan, &m.Status, &joined, &expires, &reminded); err != nil {
		return nil, err
	}
	if m.JoinedAt, err = parseTime(joined); err != nil {
		return nil, err
	}
	if m.ExpiresAt, err = timePtr(expires); err != nil {
		return nil, err
	}
	if m.LastRemindedAt, err = timePtr(reminded); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLStore) ListMembers(ctx context.Context, status models.MemberStatus) ([]*models.Member, error) {
	q := "SELECT " + memberColumns + " FROM members"
	var args []any
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, string(status))
	}
	rows, err := s.query(ctx, s.db, q+" ORDER BY joined_at, id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) InsertMember(ctx context.Context, m *models.Member) (*models.Member, error) {
	_, err := s.exec(ctx, s.db, "INSERT INTO members ("+memberColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.Name, strings.ToLower(m.Email), m.Plan, string(m.Status), formatTime(m.JoinedAt), nullTime(m.ExpiresAt), nullTime(m.LastRemindedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, services.NewConflictError("member with this email already exists")
		}
		return nil, err
	}
	out := *m
	out.Email = strings.ToLower(m.Email)
	return &out, nil
}

func (s *SQLStore) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	m, err := scanMember(s.queryRow(ctx, s.db, "SELECT "+memberColumns+" FROM members WHERE email = ?", strings.ToLower(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (s *SQLStore) updateMember(ctx context.Context, query string, args ...any) error {
	res, err := s.exec(ctx, s.db, query, args...)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return services.NewNotFoundError("member not found")
	}
	return nil
}

func (s *SQLStore) UpdateMemberStatus(ctx context.Context, id string, status models.MemberStatus) error {
	return s.updateMember(ctx, "UPDATE members SET status = ? WHERE id = ?", string(status), id)
}

func (s *SQLStore) MarkReminded(ctx context.Context, id string, at time.Time) error {
	return s.updateMember(ctx, "UPDATE members SET last_reminded_at = ? WHERE id = ?", formatTime(at), id)
}

// audit log

// AddAudit never fails the caller; a write error is logged.
func (s *SQLStore) AddAudit(e models.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.exec(ctx, s.db, "INSERT INTO audit_log (at, actor, action, target, note) VALUES (?, ?, ?, ?, ?)",
		formatTime(e.Time), e.Actor, e.Action, e.Target, e.Note)
	if err != nil {
		s.log.Warn("write audit entry", "action", e.Action, "target", e.Target, "error", err)
	}
}

// ListAudit returns the newest entries first. A limit <= 0 returns everything.
func (s *SQLStore) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	q := "SELECT at, actor, action, target, note FROM audit_log ORDER BY at DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.query(ctx, s.db, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.AuditEntry{}
	for rows.Next() {
		var (
			e  models.AuditEntry
			at string
		)
		if err := rows.Scan(&at, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			return nil, err
		}
		if e.Time, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
