package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"chat-relay/domain"
	apperrors "chat-relay/errors"
)

const roomPrefix = "room:"

// RoomStore owns the persisted side of room membership. The in-session
// joined-room set tracked by the registry is a separate, transport-scoped
// record; both are mutated on join/leave but only this one survives a
// disconnect.
type RoomStore struct {
	db *badger.DB
}

func NewRoomStore(db *badger.DB) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) Find(ctx context.Context, roomID string) (domain.Room, error) {
	var room domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(roomPrefix + roomID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return sonic.Unmarshal(val, &room)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *RoomStore) Save(ctx context.Context, room domain.Room) error {
	data, err := sonic.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(roomPrefix+room.ID), data)
	})
}

// AddMember appends the user to the persisted member list.
// Adding an existing member is a no-op.
func (s *RoomStore) AddMember(ctx context.Context, roomID, userID string) error {
	return s.update(roomID, func(room *domain.Room) {
		if !room.HasMember(userID) {
			room.Members = append(room.Members, userID)
		}
	})
}

// RemoveMember drops the user from the persisted member list.
// Removing an absent member is a no-op, which makes an explicit leave
// commute with a concurrent disconnect sweep.
func (s *RoomStore) RemoveMember(ctx context.Context, roomID, userID string) error {
	return s.update(roomID, func(room *domain.Room) {
		room.Members = lo.Filter(room.Members, func(m string, _ int) bool {
			return m != userID
		})
	})
}

// update applies a read-modify-write in one transaction, which is the
// document-level atomicity the store guarantees.
func (s *RoomStore) update(roomID string, mutate func(*domain.Room)) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(roomPrefix + roomID))
		if err != nil {
			return err
		}
		var room domain.Room
		if err := item.Value(func(val []byte) error {
			return sonic.Unmarshal(val, &room)
		}); err != nil {
			return err
		}
		mutate(&room)
		data, err := sonic.Marshal(room)
		if err != nil {
			return err
		}
		return txn.Set([]byte(roomPrefix+roomID), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.ErrNotFound
	}
	return err
}

// FindEmptyActivated returns activated rooms with no members left,
// the candidates the janitor deletes.
func (s *RoomStore) FindEmptyActivated(ctx context.Context) ([]domain.Room, error) {
	var empty []domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(roomPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var room domain.Room
			err := it.Item().Value(func(val []byte) error {
				return sonic.Unmarshal(val, &room)
			})
			if err != nil {
				return err
			}
			if room.Activated && len(room.Members) == 0 {
				empty = append(empty, room)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return empty, nil
}

func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(roomPrefix + roomID))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}
