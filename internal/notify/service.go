package notify

import (
	"context"

	"campus-backend/internal/platform/auth"
)

type Service struct {
	store    Store
	registry *Registry
}

func NewService(store Store, registry *Registry) *Service {
	return &Service{store: store, registry: registry}
}

func (s *Service) List(ctx context.Context, caller auth.Caller, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = DefaultListLimit
	}
	return s.store.ListByUser(ctx, caller.UserID, limit)
}

func (s *Service) MarkAllRead(ctx context.Context, caller auth.Caller) (int64, error) {
	return s.store.MarkAllRead(ctx, caller.UserID)
}

// Subscribe: 戻り値の cancel で必ず登録解除すること
func (s *Service) Subscribe(caller auth.Caller) (*Conn, func()) {
	c := s.registry.Register(caller.UserID)
	return c, func() { s.registry.Unregister(c) }
}
