package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-backend/internal/directory"
)

// ===== clock =====

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ===== directory =====

type fakeDir struct {
	classes  map[string]*directory.Class
	subjects map[string]*directory.Subject
	members  map[string]directory.Member
}

func (d *fakeDir) GetClass(_ context.Context, id string) (*directory.Class, error) {
	c, ok := d.classes[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (d *fakeDir) GetSubject(_ context.Context, id string) (*directory.Subject, error) {
	s, ok := d.subjects[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (d *fakeDir) Roster(_ context.Context, classID string) ([]directory.Member, error) {
	c, ok := d.classes[classID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	out := []directory.Member{}
	for _, id := range c.StudentIDs {
		out = append(out, d.members[id])
	}
	return out, nil
}

// ===== notifier =====

type sent struct{ UserID, Message, Link string }

type recNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *recNotifier) Notify(_ context.Context, userID, message, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{userID, message, link})
}

func (n *recNotifier) to(userID string) []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sent
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

// ===== store =====

// memStore: SQLStore と同じ一意制約を持ち、Update は mu を行ロック代わりに直列化する
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	dir      *fakeDir
	// lockHook はロック保持中に呼ばれる（DB 往復の遅延やエラーの再現用）
	lockHook func(id string) error
}

func newMemStore(dir *fakeDir) *memStore {
	return &memStore{sessions: map[string]*Session{}, dir: dir}
}

func clone(s *Session) *Session {
	cp := *s
	cp.Records = append([]Record(nil), s.Records...)
	return &cp
}

func (m *memStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.sessions {
		if x.IsActive && s.IsActive && x.Code == s.Code {
			return ErrDuplicateCode
		}
		if x.IsActive && s.IsActive && x.ClassID == s.ClassID && x.SubjectID == s.SubjectID {
			return ErrActiveSessionExists
		}
	}
	s.Version = 1
	s.AttendedCount = 0
	m.sessions[s.ID] = clone(s)
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return clone(s), nil
}

func (m *memStore) GetByCode(_ context.Context, code string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hit *Session
	for _, s := range m.sessions {
		if s.Code == code && (hit == nil || s.IsActive && !hit.IsActive) {
			hit = s
		}
	}
	if hit == nil {
		return nil, ErrSessionNotFound
	}
	return clone(hit), nil
}

func (m *memStore) FindActive(_ context.Context, classID, subjectID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.IsActive && s.ClassID == classID && s.SubjectID == subjectID {
			return clone(s), nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *memStore) Update(_ context.Context, id string, fn func(s *Session) ([]Record, error)) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockHook != nil {
		if err := m.lockHook(id); err != nil {
			return nil, err
		}
	}
	cur, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s := clone(cur)
	dirty, err := fn(s)
	if err != nil {
		return nil, err
	}
	for _, x := range m.sessions {
		if x.ID != s.ID && x.IsActive && s.IsActive && x.Code == s.Code {
			return nil, ErrDuplicateCode
		}
	}
	cur.Code = s.Code
	cur.ExpiresAt = s.ExpiresAt
	cur.IsActive = s.IsActive
	cur.Version++
	for _, r := range dirty {
		found := false
		for i := range cur.Records {
			if cur.Records[i].StudentID == r.StudentID {
				cur.Records[i].Status = r.Status
				cur.Records[i].Note = r.Note
				found = true
			}
		}
		if !found {
			cur.Records = append(cur.Records, r)
		}
	}
	cur.AttendedCount = len(cur.Records)
	return clone(cur), nil
}

func (m *memStore) sorted() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *memStore) ListByClass(_ context.Context, classID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Session{}
	for _, s := range m.sorted() {
		if s.ClassID == classID {
			cp := *s
			cp.Records = nil
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *memStore) ListForStudent(_ context.Context, studentID string, offset, limit int) ([]HistoryRow, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []HistoryRow
	for _, s := range m.sorted() {
		rec, has := s.Record(studentID)
		if !has {
			continue
		}
		class := m.dir.classes[s.ClassID]
		sub := m.dir.subjects[s.SubjectID]
		all = append(all, HistoryRow{
			SessionID: s.ID,
			Date:      s.StartedAt,
			Subject:   Ref{ID: sub.ID, Name: sub.Name, Code: sub.Code},
			Class:     Ref{ID: class.ID, Name: class.Name, Code: class.Code},
			Record:    rec,
		})
	}
	total := len(all)
	if offset >= total {
		return []HistoryRow{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memStore) CountsForStudent(_ context.Context, studentID string) (StudentCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c StudentCounts
	for _, s := range m.sessions {
		if r, ok := s.Record(studentID); ok {
			c.Total++
			switch r.Status {
			case StatusPresent:
				c.Present++
			case StatusLate:
				c.Late++
			case StatusAbsent:
				c.Absent++
			}
		}
	}
	return c, nil
}

func (m *memStore) stored(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.sessions[id])
}
