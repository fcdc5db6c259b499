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

const conversationPrefix = "chat:"

// ConversationStore holds the two-party threads the lifecycle manager
// queries to compute online/offline fan-out targets.
type ConversationStore struct {
	db *badger.DB
}

func NewConversationStore(db *badger.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) Save(ctx context.Context, conversation domain.Conversation) error {
	data, err := sonic.Marshal(conversation)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(conversationPrefix+conversation.ID), data)
	})
}

func (s *ConversationStore) Find(ctx context.Context, conversationID string) (domain.Conversation, error) {
	var conversation domain.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(conversationPrefix + conversationID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return sonic.Unmarshal(val, &conversation)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	return conversation, nil
}

func (s *ConversationStore) FindByParticipant(ctx context.Context, userID string) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(conversationPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var conversation domain.Conversation
			err := it.Item().Value(func(val []byte) error {
				return sonic.Unmarshal(val, &conversation)
			})
			if err != nil {
				return err
			}
			if conversation.HasParticipant(userID) {
				conversations = append(conversations, conversation)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// MarkDeleted records that one participant deleted the thread. When the
// second participant follows, the conversation is removed entirely.
func (s *ConversationStore) MarkDeleted(ctx context.Context, conversationID, userID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(conversationPrefix + conversationID)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var conversation domain.Conversation
		if err := item.Value(func(val []byte) error {
			return sonic.Unmarshal(val, &conversation)
		}); err != nil {
			return err
		}

		conversation.Deleted = lo.Uniq(append(conversation.Deleted, userID))
		if len(conversation.Deleted) >= 2 {
			return txn.Delete(key)
		}

		data, err := sonic.Marshal(conversation)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.ErrNotFound
	}
	return err
}
