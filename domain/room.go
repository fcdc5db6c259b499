package domain

// Room is a password-gated group channel with mutable membership.
// Membership is mutated only through lifecycle join/leave operations,
// which persist the change via the room store.
type Room struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Activated    bool     `json:"activated"`
	PasswordHash string   `json:"password_hash,omitempty"`
	Greeting     string   `json:"greeting,omitempty"`
	Admins       []string `json:"admins,omitempty"`
	Banned       []string `json:"banned,omitempty"`
	Members      []string `json:"members"`
}

func (r Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (r Room) IsBanned(userID string) bool {
	for _, b := range r.Banned {
		if b == userID {
			return true
		}
	}
	return false
}
