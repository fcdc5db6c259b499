package domain

// Conversation is a fixed two-party private thread. The core reads the
// participant list to compute fan-out targets; it does not own the
// conversation lifecycle.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	// Deleted holds the IDs of participants that marked the thread
	// deleted. Once both did, the conversation itself is removed.
	Deleted []string `json:"deleted,omitempty"`
}

func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// PartnerOf returns the other participant of a two-party thread.
func (c Conversation) PartnerOf(userID string) (string, bool) {
	for _, p := range c.Participants {
		if p != userID {
			return p, true
		}
	}
	return "", false
}
