package models

// RebuildFrame is pushed over the live channel while a rebuild is running.
type RebuildFrame struct {
	Step     string `json:"step"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Progress int    `json:"progress"`
}

// CardUpdateFrame is pushed over the live channel when a single entity has
// been refreshed by targeted invalidation.
type CardUpdateFrame struct {
	Type     string     `json:"type"`
	Kind     Kind       `json:"kind"`
	RemoteID int64      `json:"id"`
	Card     *CardEntry `json:"card"`
}

// NewCardUpdateFrame builds the frame for a refreshed card.
func NewCardUpdateFrame(card *CardEntry) CardUpdateFrame {
	return CardUpdateFrame{
		Type:     "card-update",
		Kind:     card.Kind,
		RemoteID: card.RemoteID,
		Card:     card,
	}
}
