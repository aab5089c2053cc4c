package notify

import (
	"context"
	"sync"
	"time"

	"campus-backend/internal/platform/ids"
	"campus-backend/internal/platform/logger"
)

const (
	DefaultQueueSize = 256
	persistTimeout   = 5 * time.Second
)

// Publisher: 永続化後の配信先（ローカル Registry か Redis）
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// LocalPublisher: 同一プロセスの Registry にだけ配る
type LocalPublisher struct{ Registry *Registry }

func (p LocalPublisher) Publish(_ context.Context, n Notification) error {
	p.Registry.Deliver(n.UserID, n)
	return nil
}

// Dispatcher: Notify は投げっぱなし。キューが溢れたら捨ててログだけ残す
type Dispatcher struct {
	store Store
	pub   Publisher
	clock ids.Clock
	id    ids.IDGen

	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	wg     sync.WaitGroup
}

func NewDispatcher(store Store, pub Publisher, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{
		store: store,
		pub:   pub,
		clock: ids.SystemClock{},
		id:    ids.NewULIDGen(),
		queue: make(chan Notification, queueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Notify: 呼び出し元の ctx には依存しない（レスポンス後も配信を続ける）
func (d *Dispatcher) Notify(_ context.Context, userID, message, link string) {
	id, err := d.id.New()
	if err != nil {
		logger.Warnf("notify: id generation failed: %v", err)
		return
	}
	n := Notification{ID: id, UserID: userID, Message: message, Link: link, CreatedAt: d.clock.Now()}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		logger.Warnf("notify: dispatcher closed, dropped notification for %s", userID)
		return
	}
	select {
	case d.queue <- n:
	default:
		logger.Warnf("notify: queue full, dropped notification for %s", userID)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := d.store.Insert(ctx, &n); err != nil {
		logger.Errorf("notify: persist for %s: %v", n.UserID, err)
		return
	}
	if err := d.pub.Publish(ctx, n); err != nil {
		logger.Warnf("notify: publish for %s: %v", n.UserID, err)
	}
}

// Close: 新規受付を止め、キューに残った分を処理してから戻る
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}
