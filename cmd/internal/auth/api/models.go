package api

import "time"

type revokeSessionRequest struct {
	ID string `json:"id"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IPAddress *string   `json:"ip_address"`
	UserAgent *string   `json:"user_agent"`
}

type viewResponse struct {
	Session sessionResponse `json:"session"`
	User    userResponse    `json:"user"`
}

type statusResponse struct {
	Status bool `json:"status"`
}
