//go:generate go run go.uber.org/mock/mockgen -source=session.go -destination=../mocks/mock_session_repository.go -package=mocks
package repositories

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
	apperrors "chat-relay/errors"
)

const (
	sessionPrefix   = "sess:"
	userIndexPrefix = "sessuser:"
)

type ISessionRepository interface {
	Save(session *domain.Session) error
	Get(sessionID string) (*domain.Session, error)
	GetByUser(userID string) (*domain.Session, error)
	Delete(sessionID string) error
	ListInRoom(roomID string) ([]*domain.Session, error)
	All() ([]*domain.Session, error)
}

// SessionRepository persists sessions in BadgerDB so presence survives
// process restarts. Two keys are written per session:
//
//	sess:{sessionID}   -> encoded session
//	sessuser:{userID}  -> sessionID
//
// The user index enforces the lookup side of the one-session-per-user
// invariant; the registry serializes writers per user so the two keys
// never diverge.
type SessionRepository struct {
	db *badger.DB
}

func NewSessionRepository(db *badger.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Save writes the session and its user index in a single transaction.
func (r *SessionRepository) Save(session *domain.Session) error {
	data, err := sonic.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(sessionPrefix+session.ID), data); err != nil {
			return err
		}
		return txn.Set([]byte(userIndexPrefix+session.UserID), []byte(session.ID))
	})
}

func (r *SessionRepository) Get(sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionPrefix + sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return sonic.Unmarshal(val, &session)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) GetByUser(userID string) (*domain.Session, error) {
	var sessionID string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userIndexPrefix + userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			sessionID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.Get(sessionID)
}

// Delete removes the session and its user index. Deleting an absent
// session is a no-op. The index entry is only removed when it still
// points at this session, so deleting a superseded session never drops
// the index of its successor.
func (r *SessionRepository) Delete(sessionID string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionPrefix + sessionID))
		if err != nil {
			return err
		}
		var session domain.Session
		if err := item.Value(func(val []byte) error {
			return sonic.Unmarshal(val, &session)
		}); err != nil {
			return err
		}
		if err := txn.Delete([]byte(sessionPrefix + sessionID)); err != nil {
			return err
		}
		idxKey := []byte(userIndexPrefix + session.UserID)
		idx, err := txn.Get(idxKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var current string
		if err := idx.Value(func(val []byte) error {
			current = string(val)
			return nil
		}); err != nil {
			return err
		}
		if current == sessionID {
			return txn.Delete(idxKey)
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// ListInRoom scans all sessions and keeps those that joined the room.
// Session cardinality equals live connections, so the scan stays small.
func (r *SessionRepository) ListInRoom(roomID string) ([]*domain.Session, error) {
	sessions, err := r.All()
	if err != nil {
		return nil, err
	}
	var inRoom []*domain.Session
	for _, s := range sessions {
		if s.InRoom(roomID) {
			inRoom = append(inRoom, s)
		}
	}
	return inRoom, nil
}

func (r *SessionRepository) All() ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(sessionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var session domain.Session
			err := it.Item().Value(func(val []byte) error {
				return sonic.Unmarshal(val, &session)
			})
			if err != nil {
				return err
			}
			sessions = append(sessions, &session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
