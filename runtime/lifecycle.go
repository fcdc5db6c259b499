package runtime

import (
	"context"
	"errors"
	"log/slog"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	apperrors "chat-relay/errors"
)

// Lifecycle drives a connection through
// Connecting -> Authenticated -> Active -> Disconnected.
// The transport decodes inbound envelopes and calls one method per
// event; every blocking collaborator is injected, never global.
type Lifecycle struct {
	log           *slog.Logger
	registry      contract.ISessionRegistry
	router        contract.IRouter
	presence      contract.IPresenceTracker
	conversations contract.IConversationStore
	rooms         contract.IRoomStore
}

func NewLifecycle(log *slog.Logger, registry contract.ISessionRegistry,
	router contract.IRouter, presence contract.IPresenceTracker,
	conversations contract.IConversationStore, rooms contract.IRoomStore) *Lifecycle {
	return &Lifecycle{
		log:           log,
		registry:      registry,
		router:        router,
		presence:      presence,
		conversations: conversations,
		rooms:         rooms,
	}
}

// Connect handles go-online: it authenticates, registers the session
// (evicting any prior one for the user) and broadcasts an online event
// to the partner of every conversation of this user. The broadcast runs
// once per connect, not per join. An auth failure leaves no session
// behind and the caller closes the transport.
func (l *Lifecycle) Connect(ctx context.Context, sessionID string, user domain.User,
	sink contract.EventSink) error {
	if user.ID == "" {
		return apperrors.ErrAuth
	}

	if _, err := l.registry.Register(ctx, user.ID, sessionID, user.Token, sink); err != nil {
		return err
	}
	l.log.Info("Session registered", "user", user.ID, "session", sessionID)

	conversations, err := l.conversations.FindByParticipant(ctx, user.ID)
	if err != nil {
		// Presence stays correct without the broadcast; partners catch
		// up on their next listing query.
		l.log.Error("Online broadcast skipped", "user", user.ID, "err", err)
		return nil
	}
	for _, conversation := range conversations {
		partner, ok := conversation.PartnerOf(user.ID)
		if !ok {
			continue
		}
		l.router.DeliverToUser(ctx, event.Online, partner, sessionID, user.ID)
	}
	return nil
}

// JoinConversation handles joinChat: a transient, non-persisted channel
// subscription used to scope typing relays.
func (l *Lifecycle) JoinConversation(ctx context.Context, sessionID, conversationID string) {
	l.registry.JoinChannel(sessionID, conversationID)
	l.log.Debug("Joined conversation channel", "session", sessionID, "conversation", conversationID)
}

// Typing relays a typing indicator to the conversation channel.
// Fire-and-forget: no state is retained anywhere.
func (l *Lifecycle) Typing(ctx context.Context, originSessionID string, p event.TypingPayload) {
	var relay event.TypingRelayPayload
	relay.UserTyping.User = p.User
	relay.UserTyping.Chat = p.SelectedChat
	l.router.DeliverToChannel(ctx, event.Typing, p.SelectedChat.ID, originSessionID, relay)
}

// StopTyping relays a stop signal. A stop with no preceding typing is a
// valid no-op at the receiver.
func (l *Lifecycle) StopTyping(ctx context.Context, originSessionID, conversationID string) {
	l.router.DeliverToChannel(ctx, event.StopTyping, conversationID, originSessionID, nil)
}

// NewMessage relays a conversation message to every participant except
// the sender, with participants annotated by live presence first.
func (l *Lifecycle) NewMessage(ctx context.Context, originSessionID string, p event.NewMessagePayload) {
	chat := p.NewMessageReceived.Chat
	if len(chat.Users) == 0 {
		l.log.Warn("Message without participants dropped", "chat", chat.ID)
		return
	}

	chat.Users = l.presence.AnnotateOnline(ctx, chat.Users)
	relay := event.MessageReceivedPayload{
		NewMessageReceived: p.NewMessageReceived,
		Chat:               chat,
	}
	for _, user := range chat.Users {
		if user.ID == p.NewMessageReceived.Sender.ID {
			continue
		}
		l.router.DeliverToUser(ctx, event.MessageReceived, user.ID, originSessionID, relay)
	}
}

// DeleteConversation relays a deletion notice to the single receiver.
func (l *Lifecycle) DeleteConversation(ctx context.Context, originSessionID string,
	p event.DeleteConversationPayload) {
	notice := event.DeleteConversationPayload{
		ChatID:   p.ChatID,
		UserID:   p.UserID,
		UserName: p.UserName,
	}
	l.router.DeliverToUser(ctx, event.DeleteConversation, p.Receiver.ID, originSessionID, notice)
}

// JoinRoom validates the room, checks the password gate, records the
// join in the session, persists the membership and announces the new
// user to the room.
func (l *Lifecycle) JoinRoom(ctx context.Context, originSessionID string, p event.JoinRoomPayload) error {
	room, err := l.rooms.Find(ctx, p.Chatroom.ID)
	if err != nil {
		return err
	}
	if room.IsBanned(p.User.ID) {
		return apperrors.ErrAuth
	}
	if room.PasswordHash != "" {
		ok, err := auth.ComparePassword(p.Password, room.PasswordHash)
		if err != nil || !ok {
			return apperrors.ErrRoomPassword
		}
	}

	if err := l.registry.AddRoom(ctx, originSessionID, room.ID); err != nil {
		return err
	}
	if err := l.rooms.AddMember(ctx, room.ID, p.User.ID); err != nil {
		// Session-side join already happened; membership converges on
		// the next join or the disconnect sweep.
		l.log.Error("Room membership not persisted", "room", room.ID, "user", p.User.ID, "err", err)
	}

	l.router.DeliverToRoom(ctx, event.NewUser, room.ID, originSessionID, event.NewUserPayload{
		User:     p.User,
		Chatroom: event.RoomSnapshot{ID: room.ID, Name: room.Name},
	})
	return nil
}

// LeaveRoom handles byebye: drop the room from the session, tell the
// remaining members, and separately remove the user from the room's
// persisted member list. Each step is best-effort.
func (l *Lifecycle) LeaveRoom(ctx context.Context, originSessionID string, p event.ByeByePayload) {
	if err := l.registry.RemoveRoom(ctx, originSessionID, p.ID); err != nil &&
		!errors.Is(err, apperrors.ErrNotFound) {
		l.log.Error("Session room set not updated", "room", p.ID, "session", originSessionID, "err", err)
	}

	l.router.DeliverToRoom(ctx, event.ExitUser, p.ID, originSessionID, p.User)

	if err := l.rooms.RemoveMember(ctx, p.ID, p.User.ID); err != nil &&
		!errors.Is(err, apperrors.ErrNotFound) {
		l.log.Error("Room membership not removed", "room", p.ID, "user", p.User.ID, "err", err)
	}
}

// RoomMessage relays a room message to the room as gotmsg.
func (l *Lifecycle) RoomMessage(ctx context.Context, originSessionID string, p event.RoomMessagePayload) {
	l.router.DeliverToRoom(ctx, event.GotMsg, p.Message.Room.ID, originSessionID, event.GotMsgPayload{
		Room: p.Message.Room,
		Msg:  p.Message,
	})
}

// Disconnect tears the session down: evict the user from every joined
// room (persisted membership plus exitUser broadcast), notify every
// conversation partner the user went offline, then drop the session.
// Failures are isolated per target: one failed room cleanup never
// aborts the rest of the sequence.
func (l *Lifecycle) Disconnect(ctx context.Context, sessionID string) error {
	session, err := l.registry.Find(ctx, sessionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, roomID := range session.RoomIDs() {
		if err := l.rooms.RemoveMember(ctx, roomID, session.UserID); err != nil &&
			!errors.Is(err, apperrors.ErrNotFound) {
			l.log.Error("Room cleanup failed, continuing", "room", roomID, "user", session.UserID, "err", err)
		}
		l.router.DeliverToRoom(ctx, event.ExitUser, roomID, sessionID,
			domain.User{ID: session.UserID})
	}

	conversations, err := l.conversations.FindByParticipant(ctx, session.UserID)
	if err != nil {
		l.log.Error("Offline broadcast skipped", "user", session.UserID, "err", err)
	} else {
		for _, conversation := range conversations {
			partner, ok := conversation.PartnerOf(session.UserID)
			if !ok {
				continue
			}
			l.router.DeliverToUser(ctx, event.Offline, partner, sessionID, session.UserID)
		}
	}

	if err := l.registry.Remove(ctx, sessionID); err != nil {
		return err
	}
	l.log.Info("Session removed", "user", session.UserID, "session", sessionID)
	return nil
}
