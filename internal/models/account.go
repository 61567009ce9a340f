package models

import "time"

type Account struct {
	ID         int64     `json:"id"`
	ExternalID int64     `json:"external_id"` // telegram user id
	Handle     *string   `json:"handle,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// DisplayName returns "@handle" when known, the numeric id otherwise.
func (a *Account) DisplayName() string {
	if a.Handle != nil && *a.Handle != "" {
		return "@" + *a.Handle
	}
	return formatID(a.ExternalID)
}
