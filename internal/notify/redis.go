package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"campus-backend/internal/platform/logger"
)

const channelPrefix = "notifications:"

func Channel(userID string) string { return channelPrefix + userID }

// RedisFanout: 全インスタンスへ Redis Pub/Sub で配り、各インスタンスが自分の Registry に届ける
type RedisFanout struct {
	rdb      *redis.Client
	registry *Registry
}

func NewRedisFanout(rdb *redis.Client, registry *Registry) *RedisFanout {
	return &RedisFanout{rdb: rdb, registry: registry}
}

func (f *RedisFanout) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := f.rdb.Publish(ctx, Channel(n.UserID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run: ctx が終わるまで購読してローカル配信する
func (f *RedisFanout) Run(ctx context.Context) error {
	sub := f.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	// 購読確立を待つ
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	logger.Infof("notify: subscribed to %s*", channelPrefix)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.handle(msg)
		}
	}
}

func (f *RedisFanout) handle(msg *redis.Message) {
	var n Notification
	if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
		logger.Warnf("notify: bad payload on %s: %v", msg.Channel, err)
		return
	}
	userID := strings.TrimPrefix(msg.Channel, channelPrefix)
	if n.UserID != userID {
		logger.Warnf("notify: channel %s carries notification for %s", msg.Channel, n.UserID)
		return
	}
	f.registry.Deliver(userID, n)
}
