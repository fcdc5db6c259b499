package e2e

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/suite"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/runtime/workers"
)

type testPresenceSuite struct {
	BaseRelaySuite
}

func TestPresenceScenarios(t *testing.T) {
	suite.Run(t, &testPresenceSuite{})
}

func (s *testPresenceSuite) TestConversationPresenceRoundTrip() {
	ctx := context.Background()

	s.Step("Seed a conversation between Alice and Bob")
	s.Require().NoError(s.Conversations.Save(ctx, domain.Conversation{
		ID:           "conv-1",
		Participants: []string{"user-alice", "user-bob"},
	}))

	s.Step("Bob connects first, nobody is there to notice")
	bobSink := s.ConnectUser(ctx, "user-bob", "sess-bob")
	s.Require().Empty(bobSink.Received())

	s.Step("Alice connects, Bob hears online")
	s.ConnectUser(ctx, "user-alice", "sess-alice")
	envelopes := bobSink.Received()
	s.Require().Len(envelopes, 1)
	s.Require().Equal(event.Online, envelopes[0].Event)

	var userID string
	s.Require().NoError(sonic.Unmarshal(envelopes[0].Payload, &userID))
	s.Require().Equal("user-alice", userID)

	s.Step("Alice disconnects, Bob hears offline")
	s.Require().NoError(s.Lifecycle.Disconnect(ctx, "sess-alice"))
	s.Require().Equal([]event.Name{event.Online, event.Offline}, bobSink.Names())

	s.Step("Alice is gone from the registry")
	_, err := s.Registry.FindByUser(ctx, "user-alice")
	s.Require().Error(err)
}

func (s *testPresenceSuite) TestSecondConnectionEvictsTheFirst() {
	ctx := context.Background()

	s.Step("Seed a conversation so deliveries have a target")
	s.Require().NoError(s.Conversations.Save(ctx, domain.Conversation{
		ID:           "conv-1",
		Participants: []string{"user-alice", "user-bob"},
	}))
	s.ConnectUser(ctx, "user-bob", "sess-bob")

	s.Step("Alice connects twice, from two devices")
	firstSink := s.ConnectUser(ctx, "user-alice", "sess-alice-1")
	secondSink := s.ConnectUser(ctx, "user-alice", "sess-alice-2")

	s.Step("Only the second session is live")
	session, err := s.Registry.FindByUser(ctx, "user-alice")
	s.Require().NoError(err)
	s.Require().Equal("sess-alice-2", session.ID)

	s.Step("Deliveries reach the second device only")
	s.Router.DeliverToUser(ctx, event.GotMsg, "user-alice", "", "ping")
	s.Require().Empty(firstSink.Received())
	s.Require().Len(secondSink.Received(), 1)

	s.Step("The eviction was counted")
	s.Require().Equal(uint64(1), s.Monitoring.Snapshot().SessionsEvicted)
}

func (s *testPresenceSuite) TestChatroomLifecycle() {
	ctx := context.Background()

	s.Step("Seed an activated chatroom")
	s.Require().NoError(s.Rooms.Save(ctx, domain.Room{
		ID:        "room-1",
		Name:      "General",
		Activated: true,
	}))

	s.Step("Alice and Bob connect and join the room")
	aliceSink := s.ConnectUser(ctx, "user-alice", "sess-alice")
	s.Require().NoError(s.Lifecycle.JoinRoom(ctx, "sess-alice", event.JoinRoomPayload{
		Chatroom: event.RoomSnapshot{ID: "room-1"},
		User:     domain.User{ID: "user-alice", Name: "Alice"},
	}))

	bobSink := s.ConnectUser(ctx, "user-bob", "sess-bob")
	s.Require().NoError(s.Lifecycle.JoinRoom(ctx, "sess-bob", event.JoinRoomPayload{
		Chatroom: event.RoomSnapshot{ID: "room-1"},
		User:     domain.User{ID: "user-bob", Name: "Bob"},
	}))

	s.Step("Alice heard newUser for Bob, Bob heard nothing")
	s.Require().Equal([]event.Name{event.NewUser}, aliceSink.Names())
	s.Require().Empty(bobSink.Names())

	var announce event.NewUserPayload
	s.Require().NoError(sonic.Unmarshal(aliceSink.Received()[0].Payload, &announce))
	s.Require().Equal("user-bob", announce.User.ID)
	s.Require().Equal("General", announce.Chatroom.Name)

	s.Step("Membership is persisted for both")
	room, err := s.Rooms.Find(ctx, "room-1")
	s.Require().NoError(err)
	s.Require().ElementsMatch([]string{"user-alice", "user-bob"}, room.Members)

	s.Step("Bob posts a room message, only Alice receives gotmsg")
	s.Lifecycle.RoomMessage(ctx, "sess-bob", event.RoomMessagePayload{
		Message: event.RoomMsg{
			Room:    event.RoomSnapshot{ID: "room-1"},
			Sender:  domain.User{ID: "user-bob"},
			Content: "hello everyone",
		},
	})
	s.Require().Equal([]event.Name{event.NewUser, event.GotMsg}, aliceSink.Names())
	s.Require().Empty(bobSink.Names())

	s.Step("Alice disconnects, Bob hears exitUser and membership shrinks")
	s.Require().NoError(s.Lifecycle.Disconnect(ctx, "sess-alice"))
	s.Require().Equal([]event.Name{event.ExitUser}, bobSink.Names())

	room, err = s.Rooms.Find(ctx, "room-1")
	s.Require().NoError(err)
	s.Require().Equal([]string{"user-bob"}, room.Members)

	s.Step("Bob says byebye, the room drains")
	s.Lifecycle.LeaveRoom(ctx, "sess-bob", event.ByeByePayload{
		ID:   "room-1",
		User: domain.User{ID: "user-bob", Name: "Bob"},
	})
	room, err = s.Rooms.Find(ctx, "room-1")
	s.Require().NoError(err)
	s.Require().Empty(room.Members)

	s.Step("The janitor sweeps the empty activated room away")
	janitor := workers.NewJanitorWorker(slog.Default(), s.Rooms, time.Minute)
	janitor.Sweep(ctx)
	_, err = s.Rooms.Find(ctx, "room-1")
	s.Require().Error(err)
}

func (s *testPresenceSuite) TestTypingIndicatorsStayInTheChannel() {
	ctx := context.Background()

	s.Step("Alice and Bob connect and join the conversation channel")
	aliceSink := s.ConnectUser(ctx, "user-alice", "sess-alice")
	bobSink := s.ConnectUser(ctx, "user-bob", "sess-bob")
	carolSink := s.ConnectUser(ctx, "user-carol", "sess-carol")

	s.Lifecycle.JoinConversation(ctx, "sess-alice", "conv-1")
	s.Lifecycle.JoinConversation(ctx, "sess-bob", "conv-1")

	s.Step("Alice types, only Bob sees the indicator")
	s.Lifecycle.Typing(ctx, "sess-alice", event.TypingPayload{
		User:         domain.User{ID: "user-alice", Name: "Alice"},
		SelectedChat: event.ChatSnapshot{ID: "conv-1"},
	})
	s.Require().Equal([]event.Name{event.Typing}, bobSink.Names())
	s.Require().Empty(aliceSink.Names())
	s.Require().Empty(carolSink.Names())

	var relay event.TypingRelayPayload
	s.Require().NoError(sonic.Unmarshal(bobSink.Received()[0].Payload, &relay))
	s.Require().Equal("user-alice", relay.UserTyping.User.ID)

	s.Step("Alice stops typing, Bob sees the stop signal")
	s.Lifecycle.StopTyping(ctx, "sess-alice", "conv-1")
	s.Require().Equal([]event.Name{event.Typing, event.StopTyping}, bobSink.Names())

	s.Step("Bob disconnects, the channel membership dies with the session")
	s.Require().NoError(s.Lifecycle.Disconnect(ctx, "sess-bob"))
	s.Require().Empty(s.Registry.SessionsInChannel("conv-1"))
}

func (s *testPresenceSuite) TestMessageRelayAnnotatesPresence() {
	ctx := context.Background()

	s.Step("Alice and Bob are online, Carol is not")
	s.ConnectUser(ctx, "user-alice", "sess-alice")
	bobSink := s.ConnectUser(ctx, "user-bob", "sess-bob")

	chat := event.ChatSnapshot{
		ID: "conv-1",
		Users: []domain.User{
			{ID: "user-alice"}, {ID: "user-bob"}, {ID: "user-carol"},
		},
	}

	s.Step("Alice sends a message into the conversation")
	payload := event.NewMessagePayload{}
	payload.NewMessageReceived = event.Message{
		ID:      "msg-1",
		Sender:  domain.User{ID: "user-alice"},
		Content: "hi there",
		Chat:    chat,
	}
	s.Lifecycle.NewMessage(ctx, "sess-alice", payload)

	s.Step("Bob received it with presence flags filled in")
	envelopes := bobSink.Received()
	s.Require().Len(envelopes, 1)
	s.Require().Equal(event.MessageReceived, envelopes[0].Event)

	var relay event.MessageReceivedPayload
	s.Require().NoError(sonic.Unmarshal(envelopes[0].Payload, &relay))
	s.Require().Equal("hi there", relay.NewMessageReceived.Content)

	online := map[string]bool{}
	for _, user := range relay.Chat.Users {
		online[user.ID] = user.Online
	}
	s.Require().True(online["user-alice"])
	s.Require().True(online["user-bob"])
	s.Require().False(online["user-carol"])

	s.Step("Offline Carol was skipped, not queued")
	s.Require().GreaterOrEqual(s.Monitoring.Snapshot().TargetsSkipped, uint64(1))
}
