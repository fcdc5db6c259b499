package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain/event"
	apperrors "chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/repositories"
)

var secret = []byte("registry_test_secret_key_2026")

type nopSink struct{}

func (nopSink) Consume(ctx context.Context, e event.Envelope) error { return nil }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRegistry(slog.Default(), auth.NewVerifier(secret),
		repositories.NewSessionRepository(db), observability.NewMonitor())
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(secret, userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestRegistry_Register_And_Find(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t)
	userID := uuid.NewString()
	sessionID := uuid.NewString()

	// When a user registers with a valid token
	session, err := registry.Register(ctx, userID, sessionID, token(t, userID), nopSink{})
	req.NoError(err)
	req.Equal(userID, session.UserID)

	// Then the session resolves by ID and by user, and its sink is live
	found, err := registry.Find(ctx, sessionID)
	req.NoError(err)
	req.Equal(userID, found.UserID)

	byUser, err := registry.FindByUser(ctx, userID)
	req.NoError(err)
	req.Equal(sessionID, byUser.ID)

	_, ok := registry.SinkFor(sessionID)
	req.True(ok)
}

func TestRegistry_Register_BadToken(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t)
	userID := uuid.NewString()

	_, err := registry.Register(ctx, userID, uuid.NewString(), "garbage", nopSink{})
	req.ErrorIs(err, apperrors.ErrAuth)

	// Then no session was created
	_, err = registry.FindByUser(ctx, userID)
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func TestRegistry_Register_TokenForAnotherUser(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t)

	_, err := registry.Register(ctx, uuid.NewString(), uuid.NewString(),
		token(t, uuid.NewString()), nopSink{})
	req.ErrorIs(err, apperrors.ErrAuth)
}

func TestRegistry_SecondRegister_EvictsFirst(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t)
	userID := uuid.NewString()
	first := uuid.NewString()
	second := uuid.NewString()

	// Given an established session
	_, err := registry.Register(ctx, userID, first, token(t, userID), nopSink{})
	req.NoError(err)

	// When the same user connects again
	_, err = registry.Register(ctx, userID, second, token(t, userID), nopSink{})
	req.NoError(err)

	// Then the prior session is gone and the new one owns the user
	_, err = registry.Find(ctx, first)
	req.ErrorIs(err, apperrors.ErrNotFound)
	_, ok := registry.SinkFor(first)
	req.False(ok)

	byUser, err := registry.FindByUser(ctx, userID)
	req.NoError(err)
	req.Equal(second, byUser.ID)
}

func TestRegistry_Remove_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t)
	userID := uuid.NewString()
	sessionID := uuid.NewString()

	_, err := registry.Register(ctx, userID, sessionID, token(t, userID), nopSink{})
	req.NoError(err)

	req.NoError(registry.Remove(ctx, sessionID))
	req.NoError(registry.Remove(ctx, sessionID))
	// Removing a session that never existed is also a no-op
	req.NoError(registry.Remove(ctx, uuid.NewString()))

	_, err = registry.FindByUser(ctx, userID)
	req.ErrorIs(err, apperrors.ErrNotFound)
	_, ok := registry.SinkFor(sessionID)
	req.False(ok)
}

func TestRegistry_Rooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t)
	userID := uuid.NewString()
	sessionID := uuid.NewString()
	roomID := uuid.NewString()

	_, err := registry.Register(ctx, userID, sessionID, token(t, userID), nopSink{})
	req.NoError(err)

	req.NoError(registry.AddRoom(ctx, sessionID, roomID))

	session, err := registry.Find(ctx, sessionID)
	req.NoError(err)
	req.True(session.InRoom(roomID))

	inRoom, err := registry.SessionsInRoom(ctx, roomID)
	req.NoError(err)
	req.Len(inRoom, 1)

	req.NoError(registry.RemoveRoom(ctx, sessionID, roomID))
	inRoom, err = registry.SessionsInRoom(ctx, roomID)
	req.NoError(err)
	req.Empty(inRoom)

	// Mutating an absent session fails with NotFound
	req.ErrorIs(registry.AddRoom(ctx, uuid.NewString(), roomID), apperrors.ErrNotFound)
	req.ErrorIs(registry.RemoveRoom(ctx, uuid.NewString(), roomID), apperrors.ErrNotFound)
}

func TestRegistry_Remove_DetachesSinkOnStoreError(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	sessions := mocks.NewMockISessionRepository(ctrl)

	registry := NewRegistry(slog.Default(), auth.NewVerifier(secret),
		sessions, observability.NewMonitor())

	userID := uuid.NewString()
	sessionID := uuid.NewString()

	// Given an established session with a live sink
	sessions.EXPECT().GetByUser(userID).Return(nil, apperrors.ErrNotFound)
	sessions.EXPECT().Save(gomock.Any()).Return(nil)
	_, err := registry.Register(ctx, userID, sessionID, token(t, userID), nopSink{})
	req.NoError(err)
	_, ok := registry.SinkFor(sessionID)
	req.True(ok)

	// When the store fails mid-removal
	sessions.EXPECT().Get(sessionID).Return(nil, errors.New("storage down"))
	req.Error(registry.Remove(ctx, sessionID))

	// Then the sink is gone anyway: the transport no longer exists
	_, ok = registry.SinkFor(sessionID)
	req.False(ok)
}

func TestRegistry_Channels_Die_With_Session(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t)
	userID := uuid.NewString()
	sessionID := uuid.NewString()
	channelID := uuid.NewString()

	_, err := registry.Register(ctx, userID, sessionID, token(t, userID), nopSink{})
	req.NoError(err)

	registry.JoinChannel(sessionID, channelID)
	req.Equal([]string{sessionID}, registry.SessionsInChannel(channelID))

	req.NoError(registry.Remove(ctx, sessionID))
	req.Empty(registry.SessionsInChannel(channelID))
}

var _ contract.ISessionRegistry = (*Registry)(nil)
