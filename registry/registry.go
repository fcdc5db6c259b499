// Package registry implements the session registry, the single source
// of truth for presence. Sessions are persisted through the session
// repository so presence survives process restarts; live transport
// sinks and transient channel memberships stay in memory.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	apperrors "chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/repositories"
)

type set map[string]struct{}

type Registry struct {
	log        *slog.Logger
	verifier   contract.ITokenVerifier
	sessions   repositories.ISessionRepository
	monitoring *observability.Monitor

	// mu guards the in-memory maps only. Mutations of a single user's
	// session are serialized through that user's entry in userLocks.
	mu              sync.Mutex
	userLocks       map[string]*sync.Mutex
	sinks           map[string]contract.EventSink
	channels        map[string]set // channelID -> sessionIDs
	sessionChannels map[string]set // sessionID -> channelIDs
}

func NewRegistry(log *slog.Logger, verifier contract.ITokenVerifier,
	sessions repositories.ISessionRepository, monitoring *observability.Monitor) *Registry {
	return &Registry{
		log:             log,
		verifier:        verifier,
		sessions:        sessions,
		monitoring:      monitoring,
		userLocks:       make(map[string]*sync.Mutex),
		sinks:           make(map[string]contract.EventSink),
		channels:        make(map[string]set),
		sessionChannels: make(map[string]set),
	}
}

// lockFor returns the mutex serializing all mutations for one user.
// The table grows with the connected-user population and entries are
// tiny, so it is never pruned.
func (r *Registry) lockFor(userID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		r.userLocks[userID] = lock
	}
	return lock
}

// Register verifies the token and stores the new session, evicting any
// prior session of the same user first. Eviction and creation happen
// under the user's lock, closing the delete-then-create race window.
func (r *Registry) Register(ctx context.Context, userID, sessionID, token string,
	sink contract.EventSink) (*domain.Session, error) {
	verifiedID, err := r.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	if verifiedID != userID {
		return nil, apperrors.ErrAuth
	}

	lock := r.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	prior, err := r.sessions.GetByUser(userID)
	switch {
	case err == nil:
		if err := r.sessions.Delete(prior.ID); err != nil {
			return nil, err
		}
		r.detach(prior.ID)
		r.monitoring.SessionEvicted()
		r.log.Info("Superseded prior session", "user", userID, "evicted", prior.ID)
	case errors.Is(err, apperrors.ErrNotFound):
		// First connection for this user
	default:
		return nil, err
	}

	session := domain.NewSession(sessionID, userID, token)
	if err := r.sessions.Save(session); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sinks[sessionID] = sink
	r.mu.Unlock()

	r.monitoring.SessionRegistered()
	return session, nil
}

func (r *Registry) Find(ctx context.Context, sessionID string) (*domain.Session, error) {
	return r.sessions.Get(sessionID)
}

func (r *Registry) FindByUser(ctx context.Context, userID string) (*domain.Session, error) {
	return r.sessions.GetByUser(userID)
}

// Remove deletes the session. Removing an unknown session is a no-op.
// The in-memory traces (sink, channel subscriptions) are dropped on
// every exit path: the transport is gone whether or not the store
// cooperated.
func (r *Registry) Remove(ctx context.Context, sessionID string) error {
	defer r.detach(sessionID)

	session, err := r.sessions.Get(sessionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	lock := r.lockFor(session.UserID)
	lock.Lock()
	defer lock.Unlock()

	if err := r.sessions.Delete(sessionID); err != nil {
		return err
	}
	r.monitoring.SessionRemoved()
	return nil
}

func (r *Registry) AddRoom(ctx context.Context, sessionID, roomID string) error {
	return r.mutate(sessionID, func(s *domain.Session) {
		s.JoinRoom(roomID)
	})
}

func (r *Registry) RemoveRoom(ctx context.Context, sessionID, roomID string) error {
	return r.mutate(sessionID, func(s *domain.Session) {
		s.LeaveRoom(roomID)
	})
}

// mutate applies a read-modify-write on one session under its user's
// lock, so a concurrent join and disconnect for the same session never
// interleave.
func (r *Registry) mutate(sessionID string, apply func(*domain.Session)) error {
	session, err := r.sessions.Get(sessionID)
	if err != nil {
		return err
	}

	lock := r.lockFor(session.UserID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read: the session may have been removed or superseded while
	// we were waiting for the lock.
	session, err = r.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	apply(session)
	return r.sessions.Save(session)
}

func (r *Registry) SinkFor(sessionID string) (contract.EventSink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sink, ok := r.sinks[sessionID]
	return sink, ok
}

func (r *Registry) SessionsInRoom(ctx context.Context, roomID string) ([]*domain.Session, error) {
	return r.sessions.ListInRoom(roomID)
}

// JoinChannel subscribes a session to a transient conversation channel.
// Channel membership is memory-only and dies with the session.
func (r *Registry) JoinChannel(sessionID, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[channelID]; !ok {
		r.channels[channelID] = make(set)
	}
	r.channels[channelID][sessionID] = struct{}{}

	if _, ok := r.sessionChannels[sessionID]; !ok {
		r.sessionChannels[sessionID] = make(set)
	}
	r.sessionChannels[sessionID][channelID] = struct{}{}
}

func (r *Registry) SessionsInChannel(channelID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.channels[channelID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// detach drops the in-memory traces of a session: its sink and every
// channel subscription. Empty channel sets are removed to avoid slow
// growth over time.
func (r *Registry) detach(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sinks, sessionID)

	for channelID := range r.sessionChannels[sessionID] {
		if members, ok := r.channels[channelID]; ok {
			delete(members, sessionID)
			if len(members) == 0 {
				delete(r.channels, channelID)
			}
		}
	}
	delete(r.sessionChannels, sessionID)
}
