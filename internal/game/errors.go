// internal/game/errors.go
package game

import "errors"

// Sentinel errors surfaced to the originating connection. None of these are
// fatal to the room; state is unchanged when they are returned.
var (
	ErrRoomNotJoinable    = errors.New("room is not accepting players")
	ErrRoomFull           = errors.New("room is full")
	ErrNameTaken          = errors.New("name already taken in this room")
	ErrInvalidPlayerCount = errors.New("player count must be between 4 and 15")
	ErrAlreadyStarted     = errors.New("round already in progress")
	ErrWrongPhase         = errors.New("action not valid in current phase")
	ErrVoteAlreadyCalled  = errors.New("a vote was already called this round")
	ErrInvalidTarget      = errors.New("vote target is not in this room")
	ErrSelfVote           = errors.New("cannot vote for yourself")
	ErrNotSpy             = errors.New("only the spy may guess the location")
	ErrInvalidLocation    = errors.New("location is not in the catalog")
	ErrAlreadyGuessed     = errors.New("spy has already used their guess")
	ErrChatCooldown       = errors.New("sending messages too quickly")
	ErrUnknownPlayer      = errors.New("player is not in this room")
)
