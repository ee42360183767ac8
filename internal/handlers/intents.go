// internal/handlers/intents.go
package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// IntentType tags every client-to-server message.
type IntentType string

const (
	IntentCreateRoom IntentType = "create_room"
	IntentJoinRoom   IntentType = "join_room"
	IntentResume     IntentType = "resume"
	IntentStartGame  IntentType = "start_game"
	IntentCallVote   IntentType = "call_vote"
	IntentSubmitVote IntentType = "submit_vote"
	IntentSpyGuess   IntentType = "spy_guess"
	IntentChat       IntentType = "chat"
	IntentLeaveRoom  IntentType = "leave_room"
)

// ClientIntent is the envelope for incoming messages. The payload schema is
// fixed per type and decoded at the boundary before any state is touched.
type ClientIntent struct {
	Type    IntentType      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type CreateRoomIntent struct {
	Name string `json:"name"`
}

type JoinRoomIntent struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type ResumeIntent struct {
	Token string `json:"token"`
}

type SubmitVoteIntent struct {
	Target uuid.UUID `json:"target"`
}

type SpyGuessIntent struct {
	Location string `json:"location"`
}

type ChatIntent struct {
	Text string `json:"text"`
}

// decodePayload unmarshals an intent payload into its fixed schema.
func decodePayload(intent ClientIntent, dst interface{}) error {
	if len(intent.Payload) == 0 {
		return fmt.Errorf("missing payload for %s", intent.Type)
	}
	if err := json.Unmarshal(intent.Payload, dst); err != nil {
		return fmt.Errorf("malformed payload for %s: %w", intent.Type, err)
	}
	return nil
}
