// internal/types/models.go
package types

import "time"

// Event is the domain object exchanged with the calendar gateway.
// ID and Link are provider-assigned and only present after creation.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Link        string    `json:"link,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// InboundMessage is one text message delivered by the chat transport.
type InboundMessage struct {
	UserID UserID `json:"user_id"`
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// Reply is the outbound response for one processed message. ShowMenu asks
// the transport to attach the action keyboard.
type Reply struct {
	Text     string
	ShowMenu bool
}
