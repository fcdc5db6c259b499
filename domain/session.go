package domain

// Session is one live transport connection bound to exactly one
// authenticated user. At most one Session exists per user at any time;
// a new connection supersedes the previous one.
type Session struct {
	ID     string              `json:"id"`
	UserID string              `json:"user_id"`
	Token  string              `json:"token"`
	Rooms  map[string]struct{} `json:"rooms"`
}

func NewSession(id, userID, token string) *Session {
	return &Session{
		ID:     id,
		UserID: userID,
		Token:  token,
		Rooms:  make(map[string]struct{}),
	}
}

func (s *Session) JoinRoom(roomID string) {
	if s.Rooms == nil {
		s.Rooms = make(map[string]struct{})
	}
	s.Rooms[roomID] = struct{}{}
}

// LeaveRoom is a no-op when the room was never joined.
func (s *Session) LeaveRoom(roomID string) {
	delete(s.Rooms, roomID)
}

func (s *Session) InRoom(roomID string) bool {
	_, ok := s.Rooms[roomID]
	return ok
}

func (s *Session) RoomIDs() []string {
	ids := make([]string, 0, len(s.Rooms))
	for id := range s.Rooms {
		ids = append(ids, id)
	}
	return ids
}
