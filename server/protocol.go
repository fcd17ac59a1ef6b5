package server

// Inbound message types.
const (
	TypeMessage = "message"
	TypeSearch  = "search"
	TypeClear   = "clear"
)

// Outbound message types.
const (
	TypeReply    = "reply"
	TypeIngested = "ingested"
	TypeCleared  = "cleared"
	TypeError    = "error"
)

// Inbound is a client frame.
type Inbound struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	User    string `json:"user,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Outbound is a server frame.
type Outbound struct {
	Type      string   `json:"type"`
	Channel   string   `json:"channel,omitempty"`
	Text      string   `json:"text,omitempty"`
	IDs       []string `json:"ids,omitempty"`
	RequestID string   `json:"request_id"`
}
