package notify

import "sync"

const connBuffer = 16

// Conn: 1 接続（SSE ストリーム等）のハンドル
type Conn struct {
	UserID string
	ch     chan Notification
}

func (c *Conn) C() <-chan Notification { return c.ch }

// Registry: userId → 生きている接続。Register / Unregister で明示的に出し入れする
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[*Conn]struct{})}
}

func (r *Registry) Register(userID string) *Conn {
	c := &Conn{UserID: userID, ch: make(chan Notification, connBuffer)}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[userID] = set
	}
	set[c] = struct{}{}
	return c
}

// Unregister: 2 回呼んでも安全
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.ch)
	if len(set) == 0 {
		delete(r.conns, c.UserID)
	}
}

// Deliver: ブロックしない。バッファが埋まっている接続は取りこぼす。届いた接続数を返す
func (r *Registry) Deliver(userID string, n Notification) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for c := range r.conns[userID] {
		select {
		case c.ch <- n:
			sent++
		default:
		}
	}
	return sent
}

// CloseAll: シャットダウン時にすべてのストリームを終わらせる
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, set := range r.conns {
		for c := range set {
			close(c.ch)
		}
		delete(r.conns, userID)
	}
}

func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}
