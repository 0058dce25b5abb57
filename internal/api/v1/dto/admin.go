package dto

import "time"

// BlacklistAddRequest bans an ip, user or email, optionally until expires_at.
type BlacklistAddRequest struct {
	Type      string     `json:"type" validate:"required,oneof=ip user email"`
	Value     string     `json:"value" validate:"required"`
	Reason    string     `json:"reason" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// BlacklistRemoveRequest lifts a ban.
type BlacklistRemoveRequest struct {
	Type  string `json:"type" validate:"required,oneof=ip user email"`
	Value string `json:"value" validate:"required"`
}
