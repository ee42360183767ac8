// internal/game/events.go
package game

import "github.com/google/uuid"

// EventType tags every server-to-client broadcast.
type EventType string

const (
	EventRoomCreated  EventType = "room_created"
	EventRoomJoined   EventType = "room_joined"
	EventRoomState    EventType = "room_state"
	EventPlayerJoined EventType = "player_joined"
	EventPlayerLeft   EventType = "player_left"
	EventGameStarted  EventType = "game_started"
	EventTimerUpdate  EventType = "timer_update"
	EventVoteStarted  EventType = "vote_started"
	EventVoteUpdate   EventType = "vote_update"
	EventGameEnded    EventType = "game_ended"
	EventChatMessage  EventType = "chat"
	EventError        EventType = "error"
)

// Event is the envelope for every outgoing message. Payload is one of the
// fixed per-type structs below; clients switch on Type.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// PlayerInfo is the public roster view of a player. Roles never appear here;
// they only show up in per-player GameStartedPayloads and the post-round
// reveal.
type PlayerInfo struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	IsHost bool      `json:"isHost"`
}

// RevealedPlayer extends the roster view with the player's role, used only
// once the round has ended.
type RevealedPlayer struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	IsHost bool      `json:"isHost"`
	Role   Role      `json:"role"`
}

// RoomCreatedPayload is sent to the creator only.
type RoomCreatedPayload struct {
	RoomCode     string       `json:"roomCode"`
	You          PlayerInfo   `json:"you"`
	Players      []PlayerInfo `json:"players"`
	SessionToken string       `json:"sessionToken"`
}

// RoomJoinedPayload is sent to the joiner only.
type RoomJoinedPayload struct {
	RoomCode     string       `json:"roomCode"`
	You          PlayerInfo   `json:"you"`
	Players      []PlayerInfo `json:"players"`
	SessionToken string       `json:"sessionToken"`
}

// RoomStatePayload is the personalized full-state snapshot sent on resume.
// Location is empty for the spy and outside an active round.
type RoomStatePayload struct {
	RoomCode         string       `json:"roomCode"`
	Phase            Phase        `json:"phase"`
	You              PlayerInfo   `json:"you"`
	Players          []PlayerInfo `json:"players"`
	Role             Role         `json:"role,omitempty"`
	Location         string       `json:"location,omitempty"`
	SecondsRemaining int          `json:"secondsRemaining"`
	VoteCalled       bool         `json:"voteCalled"`
}

type PlayerJoinedPayload struct {
	Player  PlayerInfo   `json:"player"`
	Players []PlayerInfo `json:"players"`
}

// PlayerLeftPayload carries the post-departure roster. NewHost is set only
// when the departure triggered a host re-election.
type PlayerLeftPayload struct {
	Player  PlayerInfo   `json:"player"`
	Players []PlayerInfo `json:"players"`
	NewHost *PlayerInfo  `json:"newHost,omitempty"`
}

// GameStartedPayload is personalized per player: the spy's Location is empty.
type GameStartedPayload struct {
	Role      Role         `json:"role"`
	Location  string       `json:"location,omitempty"`
	Players   []PlayerInfo `json:"players"`
	Timer     int          `json:"timer"`
	Locations []string     `json:"locations"`
}

type TimerUpdatePayload struct {
	SecondsRemaining int `json:"secondsRemaining"`
}

type VoteStartedPayload struct {
	Players []PlayerInfo `json:"players"`
}

type VoteUpdatePayload struct {
	VotesSubmitted int `json:"votesSubmitted"`
	TotalPlayers   int `json:"totalPlayers"`
}

type GameEndedPayload struct {
	Reason   EndReason        `json:"reason"`
	Winner   Side             `json:"winner"`
	Spy      PlayerInfo       `json:"spy"`
	Location string           `json:"location"`
	Players  []RevealedPlayer `json:"players"`
}

// ChatMessagePayload carries both player chat (kind "player") and server
// announcements (kind "system", zero sender ID).
type ChatMessagePayload struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	Timestamp  int64     `json:"timestamp"`
	Kind       string    `json:"kind"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewErrorEvent wraps a message for the originating connection only.
func NewErrorEvent(msg string) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Message: msg}}
}
