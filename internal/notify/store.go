package notify

import (
	"context"
	"database/sql"

	"campus-backend/internal/platform/db"
)

const DefaultListLimit = 50

type Store interface {
	Insert(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type SQLStore struct{ db db.DBTX }

func NewSQLStore(conn db.DBTX) *SQLStore { return &SQLStore{db: conn} }

func (s *SQLStore) Insert(ctx context.Context, n *Notification) error {
	var link any
	if n.Link != "" {
		link = n.Link
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO notifications (id, user_id, message, link, is_read, created_at)
VALUES (?, ?, ?, ?, ?, ?)`, n.ID, n.UserID, n.Message, link, n.IsRead, n.CreatedAt)
	return err
}

// 新しい順
func (s *SQLStore) ListByUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, message, link, is_read, created_at
FROM notifications
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var (
			n    Notification
			link sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Link = link.String
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
