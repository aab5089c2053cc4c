package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-backend/internal/platform/auth"
)

type memStore struct {
	mu      sync.Mutex
	items   []Notification
	entered chan struct{}
	release chan struct{}
	fail    error
}

func (m *memStore) Insert(_ context.Context, n *Notification) error {
	if m.entered != nil {
		m.entered <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.items = append(m.items, *n)
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID string, limit int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Notification{}
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkAllRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.items {
		if m.items[i].UserID == userID && !m.items[i].IsRead {
			m.items[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	a1 := r.Register("alice")
	a2 := r.Register("alice")
	b := r.Register("bob")
	assert.Equal(t, 2, r.Count("alice"))

	assert.Equal(t, 2, r.Deliver("alice", Notification{ID: "1", UserID: "alice"}))
	assert.Equal(t, "1", (<-a1.C()).ID)
	assert.Equal(t, "1", (<-a2.C()).ID)
	select {
	case <-b.C():
		t.Fatal("bob must not receive alice's notification")
	default:
	}

	r.Unregister(a1)
	r.Unregister(a1)
	_, open := <-a1.C()
	assert.False(t, open)
	assert.Equal(t, 1, r.Count("alice"))

	r.Unregister(a2)
	assert.Equal(t, 0, r.Count("alice"))
	assert.Equal(t, 0, r.Deliver("alice", Notification{ID: "2"}))
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	a := r.Register("alice")
	b := r.Register("bob")
	r.CloseAll()
	_, okA := <-a.C()
	_, okB := <-b.C()
	assert.False(t, okA)
	assert.False(t, okB)
	r.Unregister(a) // 既に閉じていても安全
	assert.Equal(t, 0, r.Count("alice"))
}

func TestRegistryDeliverNeverBlocks(t *testing.T) {
	r := NewRegistry()
	c := r.Register("alice")
	for i := 0; i < connBuffer+10; i++ {
		r.Deliver("alice", Notification{UserID: "alice"})
	}
	assert.Len(t, c.ch, connBuffer)
}

func TestDispatcherPersistsAndPublishes(t *testing.T) {
	store := &memStore{}
	reg := NewRegistry()
	conn := reg.Register("alice")
	d := NewDispatcher(store, LocalPublisher{Registry: reg}, 8)

	d.Notify(context.Background(), "alice", "Attendance open for Math", "/attendance")
	select {
	case n := <-conn.C():
		assert.Equal(t, "Attendance open for Math", n.Message)
		assert.Equal(t, "/attendance", n.Link)
		assert.NotEmpty(t, n.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
	d.Close()
	assert.Equal(t, 1, store.len())

	// Close 後は捨てるだけで panic しない
	d.Notify(context.Background(), "alice", "late", "")
	d.Close()
	assert.Equal(t, 1, store.len())
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	store := &memStore{entered: make(chan struct{}), release: make(chan struct{})}
	d := NewDispatcher(store, LocalPublisher{Registry: NewRegistry()}, 1)

	d.Notify(context.Background(), "u", "first", "")
	<-store.entered // worker は first の保存中
	d.Notify(context.Background(), "u", "second", "")
	d.Notify(context.Background(), "u", "dropped", "")

	go func() {
		for range store.entered {
		}
	}()
	close(store.release)
	d.Close()
	close(store.entered)

	msgs := []string{}
	for _, n := range store.items {
		msgs = append(msgs, n.Message)
	}
	assert.Equal(t, []string{"first", "second"}, msgs)
}

func TestDispatcherSkipsPublishWhenPersistFails(t *testing.T) {
	store := &memStore{fail: errors.New("db down")}
	reg := NewRegistry()
	conn := reg.Register("alice")
	d := NewDispatcher(store, LocalPublisher{Registry: reg}, 4)
	d.Notify(context.Background(), "alice", "x", "")
	d.Close()
	assert.Len(t, conn.ch, 0)
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &memStore{items: []Notification{
		{ID: "01A", UserID: "alice", Message: "old"},
		{ID: "01B", UserID: "alice", Message: "new"},
		{ID: "01C", UserID: "bob", Message: "other"},
	}}
	svc := NewService(store, NewRegistry())

	r := gin.New()
	g := r.Group("/", func(c *gin.Context) {
		auth.SetCaller(c, auth.Caller{UserID: "alice", Role: auth.RoleStudent})
	})
	RegisterRoutes(g, svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Notifications []Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Notifications, 2)
	assert.Equal(t, "new", list.Notifications[0].Message)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/notifications/mark-as-read", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var marked struct {
		Updated int64 `json:"updated"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &marked))
	assert.Equal(t, int64(2), marked.Updated)
	for _, n := range store.items {
		assert.Equal(t, n.UserID == "alice", n.IsRead)
	}
}
