package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/classroll/attendance/internal/model"
	"github.com/classroll/attendance/internal/report"
)

// PostgresRepository persists backend data in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT UNIQUE NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL,
	password_hash TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS courses (
	id    BIGSERIAL PRIMARY KEY,
	code  TEXT UNIQUE NOT NULL,
	name  TEXT NOT NULL,
	units INT NOT NULL DEFAULT 0,
	type  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS class_schedules (
	id                BIGSERIAL PRIMARY KEY,
	course_id         BIGINT NOT NULL REFERENCES courses(id),
	day_of_week       TEXT NOT NULL,
	start_time        TEXT NOT NULL,
	end_time          TEXT NOT NULL,
	classroom_id      BIGINT NOT NULL DEFAULT 0,
	offered_course_id BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS students (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	program    TEXT NOT NULL DEFAULT '',
	year_level INT NOT NULL DEFAULT 0,
	section    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS enrollments (
	course_id  BIGINT NOT NULL REFERENCES courses(id),
	student_id BIGINT NOT NULL REFERENCES students(id),
	PRIMARY KEY (course_id, student_id)
);
CREATE TABLE IF NOT EXISTS attendance_sessions (
	id           BIGSERIAL PRIMARY KEY,
	course_id    BIGINT NOT NULL REFERENCES courses(id),
	schedule_id  BIGINT REFERENCES class_schedules(id),
	session_date DATE NOT NULL,
	start_time   TEXT NOT NULL,
	end_time     TEXT NOT NULL,
	session_type TEXT NOT NULL,
	finalized    BOOLEAN NOT NULL DEFAULT FALSE,
	remarks      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS attendance_records (
	id         BIGSERIAL PRIMARY KEY,
	session_id BIGINT NOT NULL REFERENCES attendance_sessions(id),
	student_id BIGINT NOT NULL REFERENCES students(id),
	status     TEXT NOT NULL,
	remarks    TEXT NOT NULL DEFAULT '',
	time_in    TEXT NOT NULL DEFAULT '',
	UNIQUE (session_id, student_id)
);
CREATE TABLE IF NOT EXISTS session_summaries (
	session_id BIGINT PRIMARY KEY REFERENCES attendance_sessions(id),
	body       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_course ON attendance_sessions(course_id, session_date DESC, id DESC);
`

// Migrate creates the tables if they are missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *PostgresRepository) AddUser(ctx context.Context, u User) (User, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, name, role, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, u.Username, u.Name, u.Role, u.PasswordHash).Scan(&u.ID)
	return u, err
}

func (r *PostgresRepository) AddCourse(ctx context.Context, c model.Course) (model.Course, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO courses (code, name, units, type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, c.Code, c.Name, c.Units, c.Type).Scan(&c.ID)
	return c, err
}

func (r *PostgresRepository) AddSchedule(ctx context.Context, courseID int64, s model.ClassSchedule) (model.ClassSchedule, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO class_schedules (course_id, day_of_week, start_time, end_time, classroom_id, offered_course_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, courseID, s.DayOfWeek, s.StartTime, s.EndTime, s.ClassroomID, s.OfferedCourseID).Scan(&s.ID)
	return s, err
}

func (r *PostgresRepository) AddStudent(ctx context.Context, courseID int64, e model.RosterEntry) (model.RosterEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.RosterEntry{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO students (name, program, year_level, section)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, e.Name, e.Program, e.YearLevel, e.Section).Scan(&e.StudentID); err != nil {
		return model.RosterEntry{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO enrollments (course_id, student_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, courseID, e.StudentID); err != nil {
		return model.RosterEntry{}, err
	}
	return e, tx.Commit()
}

func (r *PostgresRepository) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, name, role, password_hash FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.Name, &u.Role, &u.PasswordHash)
	return u, notFound(err)
}

func (r *PostgresRepository) ListCourses(ctx context.Context) ([]model.Course, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, code, name, units, type FROM courses ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Units, &c.Type); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetCourse(ctx context.Context, id int64) (model.Course, error) {
	var c model.Course
	err := r.db.QueryRowContext(ctx, `SELECT id, code, name, units, type FROM courses WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.Units, &c.Type)
	return c, notFound(err)
}

func (r *PostgresRepository) ListSchedules(ctx context.Context, courseID int64) ([]model.ClassSchedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, day_of_week, start_time, end_time, classroom_id, offered_course_id
		FROM class_schedules WHERE course_id = $1 ORDER BY id
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ClassSchedule
	for rows.Next() {
		var s model.ClassSchedule
		if err := rows.Scan(&s.ID, &s.DayOfWeek, &s.StartTime, &s.EndTime, &s.ClassroomID, &s.OfferedCourseID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListRoster(ctx context.Context, courseID int64) ([]model.RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.program, s.year_level, s.section
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		WHERE e.course_id = $1
		ORDER BY s.name
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RosterEntry
	for rows.Next() {
		var e model.RosterEntry
		if err := rows.Scan(&e.StudentID, &e.Name, &e.Program, &e.YearLevel, &e.Section); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const sessionColumns = `id, course_id, schedule_id, to_char(session_date, 'YYYY-MM-DD'), start_time, end_time, session_type, finalized, remarks`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (model.Session, error) {
	var s model.Session
	var sched sql.NullInt64
	var st string
	if err := row.Scan(&s.ID, &s.CourseID, &sched, &s.Date, &s.StartTime, &s.EndTime, &st, &s.Finalized, &s.Remarks); err != nil {
		return model.Session{}, err
	}
	if sched.Valid {
		v := sched.Int64
		s.ScheduleID = &v
	}
	s.SessionType = model.SessionType(st)
	return s, nil
}

func (r *PostgresRepository) ListSessions(ctx context.Context, courseID int64, scheduleID *int64) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions`
	args := []any{courseID}
	clauses := []string{"course_id = $1"}
	if scheduleID != nil {
		args = append(args, *scheduleID)
		clauses = append(clauses, "schedule_id = $"+strconv.Itoa(len(args)))
	}
	query += " WHERE " + strings.Join(clauses, " AND ") + " ORDER BY session_date DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetSession(ctx context.Context, id int64) (model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1`, id))
	return s, notFound(err)
}

func (r *PostgresRepository) InsertSession(ctx context.Context, in model.NewSession) (model.Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions (course_id, schedule_id, session_date, start_time, end_time, session_type, remarks)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+sessionColumns,
		in.CourseID, in.ScheduleID, in.Date, in.StartTime, in.EndTime, string(in.SessionType), in.Remarks))
}

// UpdateSession only touches rows that are still open, so a concurrent
// finalize can never be undone.
func (r *PostgresRepository) UpdateSession(ctx context.Context, s model.Session) (model.Session, error) {
	updated, err := scanSession(r.db.QueryRowContext(ctx, `
		UPDATE attendance_sessions
		SET schedule_id = $2, session_date = $3, start_time = $4, end_time = $5,
		    session_type = $6, finalized = $7, remarks = $8
		WHERE id = $1 AND finalized = FALSE
		RETURNING `+sessionColumns,
		s.ID, s.ScheduleID, s.Date, s.StartTime, s.EndTime, string(s.SessionType), s.Finalized, s.Remarks))
	if errors.Is(err, sql.ErrNoRows) {
		cur, gerr := r.GetSession(ctx, s.ID)
		if gerr != nil {
			return model.Session{}, gerr
		}
		return cur, ErrFinalized
	}
	return updated, err
}

func (r *PostgresRepository) ListRecords(ctx context.Context, sessionID int64) ([]model.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ar.id, ar.student_id, ar.session_id, s.course_id, to_char(s.session_date, 'YYYY-MM-DD'),
		       ar.status, ar.remarks, ar.time_in
		FROM attendance_records ar
		JOIN attendance_sessions s ON s.id = ar.session_id
		WHERE ar.session_id = $1
		ORDER BY ar.student_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Record
	for rows.Next() {
		var rec model.Record
		var st string
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.SessionID, &rec.CourseID, &rec.Date, &st, &rec.Remarks, &rec.TimeIn); err != nil {
			return nil, err
		}
		rec.Status = model.Status(st)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertRecord locks the session row so a finalize cannot interleave with the write.
func (r *PostgresRepository) UpsertRecord(ctx context.Context, in model.RecordInput) (model.Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var finalized bool
	var courseID int64
	var date string
	err = tx.QueryRowContext(ctx, `
		SELECT finalized, course_id, to_char(session_date, 'YYYY-MM-DD')
		FROM attendance_sessions WHERE id = $1 FOR UPDATE
	`, in.SessionID).Scan(&finalized, &courseID, &date)
	if err != nil {
		return model.Record{}, notFound(err)
	}
	if finalized {
		return model.Record{}, ErrFinalized
	}

	rec := model.Record{
		StudentID: in.StudentID, SessionID: in.SessionID, CourseID: courseID, Date: date,
		Status: in.Status, Remarks: in.Remarks, TimeIn: in.TimeIn,
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status, remarks, time_in)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status, remarks = EXCLUDED.remarks, time_in = EXCLUDED.time_in
		RETURNING id
	`, in.SessionID, in.StudentID, string(in.Status), in.Remarks, in.TimeIn).Scan(&rec.ID); err != nil {
		return model.Record{}, err
	}
	return rec, tx.Commit()
}

func (r *PostgresRepository) SaveSummary(ctx context.Context, s report.Summary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO session_summaries (session_id, body) VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET body = EXCLUDED.body
	`, s.SessionID, body)
	return err
}

func (r *PostgresRepository) GetSummary(ctx context.Context, sessionID int64) (report.Summary, error) {
	var body []byte
	if err := r.db.QueryRowContext(ctx, `SELECT body FROM session_summaries WHERE session_id = $1`, sessionID).Scan(&body); err != nil {
		return report.Summary{}, notFound(err)
	}
	var s report.Summary
	if err := json.Unmarshal(body, &s); err != nil {
		return report.Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	return s, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
