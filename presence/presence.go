// Package presence derives online/offline status from session registry
// membership. There is no separate presence table: a user is online iff
// the registry holds a session for them, which rules out dual-write
// inconsistency.
package presence

import (
	"context"

	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/domain"
)

type Tracker struct {
	registry contract.ISessionRegistry
}

func NewTracker(registry contract.ISessionRegistry) *Tracker {
	return &Tracker{registry: registry}
}

func (t *Tracker) IsOnline(ctx context.Context, userID string) bool {
	_, err := t.registry.FindByUser(ctx, userID)
	return err == nil
}

// AnnotateOnline decorates each user with a transient online flag.
// It is a pure enrichment step: persisted user records are untouched.
func (t *Tracker) AnnotateOnline(ctx context.Context, users []domain.User) []domain.User {
	return lo.Map(users, func(user domain.User, _ int) domain.User {
		user.Online = t.IsOnline(ctx, user.ID)
		return user
	})
}
