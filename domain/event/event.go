// Package event defines the tagged events exchanged over the socket
// transport. Inbound envelopes are decoded into one of the payload
// structs below and routed to the lifecycle manager; outbound events
// reuse the same envelope shape.
package event

import (
	"encoding/json"

	"chat-relay/domain"
)

type Name string

// Client -> server.
const (
	GoOnline           Name = "go-online"
	JoinChat           Name = "joinChat"
	Typing             Name = "typing"
	StopTyping         Name = "stopTyping"
	NewMessage         Name = "newMessage"
	DeleteConversation Name = "deleteConversation"
	JoinRoom           Name = "joinRoom"
	ByeBye             Name = "byebye"
	RoomMessage        Name = "roomMessage"
	Disconnecting      Name = "disconnecting"
)

// Server -> client.
const (
	Online          Name = "online"
	Offline         Name = "offline"
	MessageReceived Name = "messageReceived"
	NewUser         Name = "newUser"
	ExitUser        Name = "exitUser"
	GotMsg          Name = "gotmsg"
)

// Envelope is the wire frame: a tag plus an opaque payload.
type Envelope struct {
	Event   Name            `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type GoOnlinePayload struct {
	User domain.User `json:"user"`
}

type JoinChatPayload struct {
	// Room carries the conversation ID, naming kept from the wire
	// protocol where conversations and rooms share one channel space.
	Room string `json:"room"`
}

type TypingPayload struct {
	User         domain.User  `json:"user"`
	SelectedChat ChatSnapshot `json:"selectedChat"`
}

type StopTypingPayload struct {
	Room string `json:"room"`
}

// ChatSnapshot is the client-side view of a conversation travelling
// inside message events. Users come annotated with presence flags
// before the event is relayed.
type ChatSnapshot struct {
	ID    string        `json:"_id"`
	Users []domain.User `json:"users"`
}

type Message struct {
	ID      string       `json:"_id"`
	Sender  domain.User  `json:"sender"`
	Content string       `json:"content"`
	Chat    ChatSnapshot `json:"chat"`
}

type NewMessagePayload struct {
	NewMessageReceived Message `json:"newMessageReceived"`
}

type MessageReceivedPayload struct {
	NewMessageReceived Message      `json:"newMessageReceived"`
	Chat               ChatSnapshot `json:"chat"`
}

type DeleteConversationPayload struct {
	ChatID   string      `json:"chatId"`
	UserID   string      `json:"userId"`
	UserName string      `json:"userName"`
	Receiver domain.User `json:"receiver,omitempty"`
}

type RoomSnapshot struct {
	ID   string `json:"_id"`
	Name string `json:"roomName,omitempty"`
}

type JoinRoomPayload struct {
	Chatroom RoomSnapshot `json:"chatroom"`
	User     domain.User  `json:"user"`
	Password string       `json:"password,omitempty"`
}

type ByeByePayload struct {
	ID   string      `json:"id"`
	User domain.User `json:"user"`
}

type RoomMsg struct {
	Room    RoomSnapshot `json:"room"`
	Sender  domain.User  `json:"sender,omitempty"`
	Content string       `json:"content,omitempty"`
}

type RoomMessagePayload struct {
	Message RoomMsg `json:"message"`
}

type GotMsgPayload struct {
	Room RoomSnapshot `json:"room"`
	Msg  RoomMsg      `json:"msg"`
}

type NewUserPayload struct {
	User     domain.User  `json:"user"`
	Chatroom RoomSnapshot `json:"chatroom"`
}

type TypingRelayPayload struct {
	UserTyping struct {
		User domain.User  `json:"user"`
		Chat ChatSnapshot `json:"chat"`
	} `json:"userTyping"`
}
