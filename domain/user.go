package domain

// User mirrors the account document owned by the external user store.
// Online is transient: it is derived from the session registry when a
// participant list is annotated and is never persisted.
type User struct {
	ID     string `json:"_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Pic    string `json:"pic,omitempty"`
	Token  string `json:"token,omitempty"`
	Online bool   `json:"online"`
}
