package transcript

import "time"

// Event is a finalized transcript utterance for one participant in one room.
// Events are immutable after creation.
type Event struct {
	RoomID          string    `json:"room_id"`
	ParticipantID   string    `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	Text            string    `json:"text"`
	IsFinal         bool      `json:"is_final"`
	Confidence      float64   `json:"confidence"`
	Timestamp       time.Time `json:"timestamp"`
}
