package model

import "time"

type PartyRole string

const (
	PartyRoleFamily   PartyRole = "family"
	PartyRoleEducator PartyRole = "educator"
)

func (r PartyRole) Valid() bool {
	return r == PartyRoleFamily || r == PartyRoleEducator
}

// Actor identifies who performs an action. Authentication happens upstream.
type Actor struct {
	Role PartyRole `json:"role"`
	ID   int64     `json:"id"`
}

// PartyLink ties a family or an educator to a Telegram chat.
type PartyLink struct {
	ID             int64     `json:"id"`
	Role           PartyRole `json:"role"`
	PartyID        int64     `json:"party_id"`
	TelegramChatID int64     `json:"telegram_chat_id"`
	Username       string    `json:"username"`
	LanguageCode   string    `json:"language_code"`
	CreatedAt      time.Time `json:"created_at"`
}
