//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual
// naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one session's outbound channel. Consume must preserve
// the order of successive calls for a single sink and must never block
// the caller beyond enqueueing.
type EventSink interface {
	Consume(ctx context.Context, e event.Envelope) error
}

// ISessionRegistry is the single source of truth for presence.
// All mutation is atomic per user ID.
type ISessionRegistry interface {
	// Register verifies the token, evicts any prior session of the user
	// and stores the new one, all under the user's lock.
	Register(ctx context.Context, userID, sessionID, token string, sink EventSink) (*domain.Session, error)
	Find(ctx context.Context, sessionID string) (*domain.Session, error)
	FindByUser(ctx context.Context, userID string) (*domain.Session, error)
	// Remove is idempotent: removing an absent session is a no-op.
	Remove(ctx context.Context, sessionID string) error
	AddRoom(ctx context.Context, sessionID, roomID string) error
	RemoveRoom(ctx context.Context, sessionID, roomID string) error
	SinkFor(sessionID string) (EventSink, bool)
	SessionsInRoom(ctx context.Context, roomID string) ([]*domain.Session, error)
	// JoinChannel tracks a transient conversation channel membership.
	// Unlike AddRoom it is never persisted.
	JoinChannel(sessionID, channelID string)
	SessionsInChannel(channelID string) []string
}

type IPresenceTracker interface {
	IsOnline(ctx context.Context, userID string) bool
	AnnotateOnline(ctx context.Context, users []domain.User) []domain.User
}

// IRouter delivers one event to many live sessions, always skipping
// the originating session and silently dropping offline targets.
type IRouter interface {
	Deliver(ctx context.Context, name event.Name, targets []string, originSessionID string, payload any)
	DeliverToUser(ctx context.Context, name event.Name, userID, originSessionID string, payload any)
	DeliverToRoom(ctx context.Context, name event.Name, roomID, originSessionID string, payload any)
	DeliverToChannel(ctx context.Context, name event.Name, channelID, originSessionID string, payload any)
}

type IConversationStore interface {
	FindByParticipant(ctx context.Context, userID string) ([]domain.Conversation, error)
	Save(ctx context.Context, conversation domain.Conversation) error
	Find(ctx context.Context, conversationID string) (domain.Conversation, error)
	// MarkDeleted flags the thread deleted for one participant and
	// removes it entirely once both participants did.
	MarkDeleted(ctx context.Context, conversationID, userID string) error
}

type IRoomStore interface {
	Find(ctx context.Context, roomID string) (domain.Room, error)
	Save(ctx context.Context, room domain.Room) error
	AddMember(ctx context.Context, roomID, userID string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	FindEmptyActivated(ctx context.Context) ([]domain.Room, error)
	Delete(ctx context.Context, roomID string) error
}

type ITokenVerifier interface {
	Verify(token string) (userID string, err error)
}
