package repositories

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	apperrors "chat-relay/errors"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Session_Save_And_Get(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(openTestDB(t))

	session := domain.NewSession(uuid.NewString(), uuid.NewString(), "token")
	session.JoinRoom("room-1")

	req.NoError(repository.Save(session))

	// Then the session is found by ID and by user
	bySession, err := repository.Get(session.ID)
	req.NoError(err)
	req.Equal(session.UserID, bySession.UserID)
	req.True(bySession.InRoom("room-1"))

	byUser, err := repository.GetByUser(session.UserID)
	req.NoError(err)
	req.Equal(session.ID, byUser.ID)
}

func Test_Session_Get_Unknown(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(openTestDB(t))

	_, err := repository.Get(uuid.NewString())
	req.ErrorIs(err, apperrors.ErrNotFound)

	_, err = repository.GetByUser(uuid.NewString())
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func Test_Session_Delete_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(openTestDB(t))

	session := domain.NewSession(uuid.NewString(), uuid.NewString(), "token")
	req.NoError(repository.Save(session))

	req.NoError(repository.Delete(session.ID))
	// Deleting again is a no-op, not an error
	req.NoError(repository.Delete(session.ID))

	_, err := repository.Get(session.ID)
	req.ErrorIs(err, apperrors.ErrNotFound)
	_, err = repository.GetByUser(session.UserID)
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func Test_Session_Delete_Superseded_Keeps_Successor_Index(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(openTestDB(t))
	userID := uuid.NewString()

	// Given an old and a new session for the same user
	old := domain.NewSession(uuid.NewString(), userID, "token")
	req.NoError(repository.Save(old))
	current := domain.NewSession(uuid.NewString(), userID, "token")
	req.NoError(repository.Save(current))

	// When the superseded session record is deleted
	req.NoError(repository.Delete(old.ID))

	// Then the user index still resolves to the successor
	byUser, err := repository.GetByUser(userID)
	req.NoError(err)
	req.Equal(current.ID, byUser.ID)
}

func Test_Session_ListInRoom(t *testing.T) {
	req := require.New(t)
	repository := NewSessionRepository(openTestDB(t))
	roomID := uuid.NewString()

	inRoom := domain.NewSession(uuid.NewString(), uuid.NewString(), "token")
	inRoom.JoinRoom(roomID)
	outside := domain.NewSession(uuid.NewString(), uuid.NewString(), "token")

	req.NoError(repository.Save(inRoom))
	req.NoError(repository.Save(outside))

	sessions, err := repository.ListInRoom(roomID)
	req.NoError(err)
	req.Len(sessions, 1)
	req.Equal(inRoom.ID, sessions[0].ID)

	all, err := repository.All()
	req.NoError(err)
	req.Len(all, 2)
}
