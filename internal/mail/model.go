package mail

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID        uuid.UUID `json:"id"`
	Address   string    `json:"address"`
	Subject   string    `json:"subject"`
	Content   string    `json:"content"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// SendRequest is the client payload. The origin is always the caller.
type SendRequest struct {
	Address string `json:"address"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// Filter selects stored messages. An empty Participant matches everything.
type Filter struct {
	Participant string
	Limit       int
}

func (f Filter) matches(m Message) bool {
	return f.Participant == "" || m.Origin == f.Participant || m.Address == f.Participant
}
