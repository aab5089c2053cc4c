package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"campus-backend/internal/platform/db"
)

var (
	ErrSessionNotFound     = errors.New("attendance: session not found")
	ErrDuplicateCode       = errors.New("attendance: code already in use")
	ErrActiveSessionExists = errors.New("attendance: active session exists for class and subject")
)

type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	GetByCode(ctx context.Context, code string) (*Session, error)
	// FindActive: is_active=1 のもの（期限切れでも返す）
	FindActive(ctx context.Context, classID, subjectID string) (*Session, error)
	// Update: セッション行をロックしたまま fn を実行し、結果と fn が返したレコードを同じ Tx で書く。
	// fn がエラーを返せば何も書かずにそのエラーを返す
	Update(ctx context.Context, id string, fn func(s *Session) ([]Record, error)) (*Session, error)
	ListByClass(ctx context.Context, classID string) ([]Session, error)
	ListForStudent(ctx context.Context, studentID string, offset, limit int) ([]HistoryRow, int, error)
	CountsForStudent(ctx context.Context, studentID string) (StudentCounts, error)
}

const (
	keyCode   = "uq_attendance_code"
	keyActive = "uq_attendance_active"
)

type SQLStore struct{ db *sql.DB }

func NewSQLStore(conn *sql.DB) *SQLStore { return &SQLStore{db: conn} }

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) Create(ctx context.Context, sess *Session) error {
	const q = `
INSERT INTO attendance_sessions
  (id, class_id, subject_id, teacher_id, code, duration_minutes, allow_late,
   started_at, expires_at, is_active, total_students, attended_count, version, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1, ?)`
	_, err := s.db.ExecContext(ctx, q,
		sess.ID, sess.ClassID, sess.SubjectID, sess.TeacherID, sess.Code, sess.Duration, sess.AllowLate,
		sess.StartedAt, sess.ExpiresAt, sess.IsActive, sess.TotalStudents, sess.CreatedAt)
	if err != nil {
		return translateDup(err)
	}
	sess.Version = 1
	sess.AttendedCount = 0
	return nil
}

const selectSession = `
SELECT id, class_id, subject_id, teacher_id, code, duration_minutes, allow_late,
       started_at, expires_at, is_active, total_students, attended_count, version, created_at
FROM attendance_sessions
`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.ClassID, &s.SubjectID, &s.TeacherID, &s.Code, &s.Duration, &s.AllowLate,
		&s.StartedAt, &s.ExpiresAt, &s.IsActive, &s.TotalStudents, &s.AttendedCount, &s.Version, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.StartedAt = s.StartedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func (s *SQLStore) getOne(ctx context.Context, where string, args ...any) (*Session, error) {
	var out *Session
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		sess, err := scanSession(tx.QueryRowContext(ctx, selectSession+where, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if sess.Records, err = loadRecords(ctx, tx, sess.ID); err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Session, error) {
	return s.getOne(ctx, `WHERE id = ?`, id)
}

func (s *SQLStore) GetByCode(ctx context.Context, code string) (*Session, error) {
	// 閉じたセッションは同じコードを持ちうるので開いているものを優先
	return s.getOne(ctx, `WHERE code = ? ORDER BY is_active DESC, started_at DESC LIMIT 1`, code)
}

func (s *SQLStore) FindActive(ctx context.Context, classID, subjectID string) (*Session, error) {
	return s.getOne(ctx, `WHERE class_id = ? AND subject_id = ? AND is_active = 1 LIMIT 1`, classID, subjectID)
}

func loadRecords(ctx context.Context, tx db.DBTX, sessionID string) ([]Record, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT student_id, status, checked_in_at, note
FROM attendance_records
WHERE session_id = ?
ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var (
		r      Record
		status string
		note   sql.NullString
	)
	if err := row.Scan(&r.StudentID, &status, &r.CheckedInAt, &note); err != nil {
		return Record{}, err
	}
	r.Status = Status(status)
	r.CheckedInAt = r.CheckedInAt.UTC()
	if note.Valid {
		r.Note = &note.String
	}
	return r, nil
}

// Update: SELECT ... FOR UPDATE で同じセッションへの更新を直列化する。
// 同時チェックインは行ロックを順に待つだけで、互いを失敗させない
func (s *SQLStore) Update(ctx context.Context, id string, fn func(sess *Session) ([]Record, error)) (*Session, error) {
	var out *Session
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		sess, err := scanSession(tx.QueryRowContext(ctx, selectSession+`WHERE id = ? FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if sess.Records, err = loadRecords(ctx, tx, sess.ID); err != nil {
			return err
		}

		dirty, err := fn(sess)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE attendance_sessions
SET code = ?, expires_at = ?, is_active = ?, version = version + 1
WHERE id = ?`,
			sess.Code, sess.ExpiresAt, sess.IsActive, sess.ID); err != nil {
			return translateDup(err)
		}

		for _, r := range dirty {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO attendance_records (session_id, student_id, status, checked_in_at, note)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE status = VALUES(status), note = VALUES(note)`,
				sess.ID, r.StudentID, string(r.Status), r.CheckedInAt, noteOrNil(r.Note)); err != nil {
				return err
			}
		}

		// attended_count はレコード件数から再計算して常に一致させる
		if len(dirty) > 0 {
			if _, err := tx.ExecContext(ctx, `
UPDATE attendance_sessions
SET attended_count = (SELECT COUNT(*) FROM attendance_records WHERE session_id = ?)
WHERE id = ?`, sess.ID, sess.ID); err != nil {
				return err
			}
		}
		sess.Version++
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByClass: 新しい順。レコード本体は載せない（attendedCount のみ）
func (s *SQLStore) ListByClass(ctx context.Context, classID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, selectSession+`WHERE class_id = ? ORDER BY started_at DESC, id DESC`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// ListForStudent: 生徒が記録を持つセッションだけ（CountsForStudent と同じ範囲）
func (s *SQLStore) ListForStudent(ctx context.Context, studentID string, offset, limit int) ([]HistoryRow, int, error) {
	var (
		out   = []HistoryRow{}
		total int
	)
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM attendance_records WHERE student_id = ?`, studentID).Scan(&total); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
SELECT s.id, s.started_at, sub.id, sub.name, sub.code, c.id, c.name, c.code,
       r.student_id, r.status, r.checked_in_at, r.note
FROM attendance_records r
JOIN attendance_sessions s ON s.id = r.session_id
JOIN subjects sub ON sub.id = s.subject_id
JOIN classes c ON c.id = s.class_id
WHERE r.student_id = ?
ORDER BY s.started_at DESC, s.id DESC
LIMIT %d OFFSET %d`, limit, offset), studentID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				h    HistoryRow
				note sql.NullString
			)
			if err := rows.Scan(&h.SessionID, &h.Date, &h.Subject.ID, &h.Subject.Name, &h.Subject.Code,
				&h.Class.ID, &h.Class.Name, &h.Class.Code,
				&h.Record.StudentID, &h.Record.Status, &h.Record.CheckedInAt, &note); err != nil {
				return err
			}
			h.Date = h.Date.UTC()
			h.Record.CheckedInAt = h.Record.CheckedInAt.UTC()
			if note.Valid {
				h.Record.Note = &note.String
			}
			out = append(out, h)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *SQLStore) CountsForStudent(ctx context.Context, studentID string) (StudentCounts, error) {
	var c StudentCounts
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(status = 'present'), 0),
       COALESCE(SUM(status = 'late'), 0),
       COALESCE(SUM(status = 'absent'), 0)
FROM attendance_records
WHERE student_id = ?`, studentID).Scan(&c.Total, &c.Present, &c.Late, &c.Absent)
	return c, err
}

// ===== helpers =====

func translateDup(err error) error {
	switch {
	case db.DuplicateKey(err, keyCode):
		return ErrDuplicateCode
	case db.DuplicateKey(err, keyActive):
		return ErrActiveSessionExists
	}
	return err
}

func noteOrNil(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

