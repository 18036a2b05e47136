package submission

import (
	"context"
	"time"

	"aarambh-client/internal/session"
	"aarambh-client/pkg/errors"
)

// Guard reserves an assignment for one submission attempt at a time. It
// sits on the session store, so with Redis the reservation is shared by
// every process signed in as the same user.
type Guard struct {
	store session.Store
	ttl   time.Duration
}

func NewGuard(store session.Store, ttl time.Duration) *Guard {
	return &Guard{store: store, ttl: ttl}
}

func guardKey(assignmentID string) string {
	return "submit:" + assignmentID
}

// Acquire reserves assignmentID for the attempt identified by key. It
// reports false when a different attempt holds the reservation.
func (g *Guard) Acquire(ctx context.Context, assignmentID, key string) (bool, error) {
	ok, err := g.store.SetNX(ctx, guardKey(assignmentID), key, g.ttl)
	if err != nil || ok {
		return ok, err
	}
	holder, err := g.store.Get(ctx, guardKey(assignmentID))
	if errors.Is(err, session.ErrNotFound) {
		return g.store.SetNX(ctx, guardKey(assignmentID), key, g.ttl)
	}
	if err != nil {
		return false, err
	}
	return holder == key, nil
}

// Release drops the reservation if key still holds it.
func (g *Guard) Release(ctx context.Context, assignmentID, key string) error {
	holder, err := g.store.Get(ctx, guardKey(assignmentID))
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if holder != key {
		return nil
	}
	return g.store.Delete(ctx, guardKey(assignmentID))
}
