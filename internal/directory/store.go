package directory

import (
	"context"
	"database/sql"
	"errors"

	"campus-backend/internal/platform/db"
)

// Directory: 出欠エンジンが参照する読み取り契約
type Directory interface {
	GetClass(ctx context.Context, id string) (*Class, error)
	GetSubject(ctx context.Context, id string) (*Subject, error)
	Roster(ctx context.Context, classID string) ([]Member, error)
}

type Store struct{ db db.DBTX }

func NewStore(conn db.DBTX) *Store { return &Store{db: conn} }

var _ Directory = (*Store)(nil)

func (s *Store) GetClass(ctx context.Context, id string) (*Class, error) {
	var (
		c    Class
		desc sql.NullString
		tid  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, code, description, teacher_id
FROM classes
WHERE id = ?`, id).Scan(&c.ID, &c.Name, &c.Code, &desc, &tid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		c.Description = &desc.String
	}
	if tid.Valid {
		c.TeacherID = &tid.String
	}

	if c.StudentIDs, err = s.strings(ctx, `SELECT student_id FROM class_students WHERE class_id = ? ORDER BY seq`, id); err != nil {
		return nil, err
	}
	if c.SubjectIDs, err = s.strings(ctx, `SELECT subject_id FROM class_subjects WHERE class_id = ? ORDER BY subject_id`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetSubject(ctx context.Context, id string) (*Subject, error) {
	var sub Subject
	err := s.db.QueryRowContext(ctx, `SELECT id, name, code, credits FROM subjects WHERE id = ?`, id).
		Scan(&sub.ID, &sub.Name, &sub.Code, &sub.Credits)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Roster: 登録順の名簿（クラスが無ければ ErrNotFound）
func (s *Store) Roster(ctx context.Context, classID string) ([]Member, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM classes WHERE id = ?`, classID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT u.id, u.name, u.email, u.student_code
FROM class_students cs
JOIN users u ON u.id = cs.student_id
WHERE cs.class_id = ?
ORDER BY cs.seq`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Member{}
	for rows.Next() {
		var (
			m  Member
			sc sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &sc); err != nil {
			return nil, err
		}
		if sc.Valid {
			m.StudentCode = &sc.String
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) strings(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
