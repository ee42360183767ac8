// internal/game/game.go
package game

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jswain/spyfall-service/internal/catalog"
	"github.com/jswain/spyfall-service/internal/sanitize"
)

// Phase is the room's current stage. Transitions within a round are
// monotonic: lobby, playing, voting, ended, with voting optional. A finished
// room starts its next round from ended directly.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
	PhaseVoting  Phase = "voting"
	PhaseEnded   Phase = "ended"
)

// Role is a player's hidden per-round assignment.
type Role string

const (
	RoleNone   Role = ""
	RoleSpy    Role = "spy"
	RoleNonSpy Role = "non_spy"
)

// EndReason explains how a round resolved.
type EndReason string

const (
	ReasonTimeout         EndReason = "timeout"
	ReasonVoteTie         EndReason = "vote_tie"
	ReasonSpyCaught       EndReason = "spy_caught"
	ReasonInnocentAccused EndReason = "innocent_accused"
	ReasonSpyGuessed      EndReason = "spy_guessed"
	ReasonSpyWrongGuess   EndReason = "spy_wrong_guess"
)

// Side names the winning faction of a round.
type Side string

const (
	SideSpy      Side = "spy"
	SideNonSpies Side = "non_spies"
)

const (
	MinPlayers   = 4
	MaxPlayers   = 15
	RoundSeconds = 480
	ChatCooldown = 3 * time.Second

	// ReconnectGrace is how long a seat is held for a player who dropped
	// mid-round before they are removed for good.
	ReconnectGrace = 60 * time.Second
)

// Player is owned exclusively by its Game; all access goes through the
// game's mutex.
type Player struct {
	ID         uuid.UUID
	Name       string
	IsHost     bool
	Role       Role
	HasVoted   bool
	VotedFor   uuid.UUID
	HasGuessed bool
	Connected  bool

	joinSeq    int
	lastChat   time.Time
	graceTimer *time.Timer
}

// Game holds the entire state of one room in memory.
type Game struct {
	Code      string
	CreatedAt time.Time

	Mu      sync.Mutex
	Phase   Phase
	Players map[uuid.UUID]*Player
	HostID  uuid.UUID

	Location         string
	SpyID            uuid.UUID
	SecondsRemaining int
	VoteCalled       bool

	// RoundSeconds and TickInterval default to a 480 second round at one
	// tick per second; tests shorten both.
	RoundSeconds int
	TickInterval time.Duration
	Grace        time.Duration

	joinSeq     int
	spyName     string
	timerCancel context.CancelFunc

	// BroadcastToPlayerFn delivers an event to a single player's
	// connection. If nil, events are dropped.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev Event)

	// OnEmpty is called after the last player has been removed, with no
	// locks held. Typically wired to the registry's destroy.
	OnEmpty func(code string)

	// OnPlayerRemoved is called for every player removal so the registry
	// can keep its identity index in step with room membership.
	OnPlayerRemoved func(playerID uuid.UUID)
}

// NewGame builds an empty room in the lobby phase.
func NewGame(code string) *Game {
	return &Game{
		Code:         code,
		CreatedAt:    time.Now(),
		Phase:        PhaseLobby,
		Players:      make(map[uuid.UUID]*Player),
		RoundSeconds: RoundSeconds,
		TickInterval: time.Second,
		Grace:        ReconnectGrace,
	}
}

// sendToUnsafe delivers ev to one player. Assumes lock is held.
func (g *Game) sendToUnsafe(playerID uuid.UUID, ev Event) {
	if g.BroadcastToPlayerFn != nil {
		g.BroadcastToPlayerFn(playerID, ev)
	}
}

// broadcastUnsafe delivers ev to every player in the room. Assumes lock is held.
func (g *Game) broadcastUnsafe(ev Event) {
	for id := range g.Players {
		g.sendToUnsafe(id, ev)
	}
}

// orderedPlayersUnsafe returns players sorted by insertion order. Assumes
// lock is held.
func (g *Game) orderedPlayersUnsafe() []*Player {
	ordered := make([]*Player, 0, len(g.Players))
	for _, p := range g.Players {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].joinSeq < ordered[j].joinSeq })
	return ordered
}

func playerInfo(p *Player) PlayerInfo {
	return PlayerInfo{ID: p.ID, Name: p.Name, IsHost: p.IsHost}
}

// rosterUnsafe builds the public roster view. Assumes lock is held.
func (g *Game) rosterUnsafe() []PlayerInfo {
	ordered := g.orderedPlayersUnsafe()
	roster := make([]PlayerInfo, len(ordered))
	for i, p := range ordered {
		roster[i] = playerInfo(p)
	}
	return roster
}

// Roster returns the public roster view.
func (g *Game) Roster() []PlayerInfo {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.rosterUnsafe()
}

// PlayerIDs returns the identities of every current member.
func (g *Game) PlayerIDs() []uuid.UUID {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	ids := make([]uuid.UUID, 0, len(g.Players))
	for id := range g.Players {
		ids = append(ids, id)
	}
	return ids
}

// AddPlayer registers a new player under an already-sanitized name. The
// first player becomes host. Joining is only possible in the lobby phase.
func (g *Game) AddPlayer(name string) (*Player, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.Phase != PhaseLobby {
		return nil, ErrRoomNotJoinable
	}
	if len(g.Players) >= MaxPlayers {
		return nil, ErrRoomFull
	}
	for _, p := range g.Players {
		if p.Name == name {
			return nil, ErrNameTaken
		}
	}

	p := &Player{
		ID:        uuid.New(),
		Name:      name,
		Connected: true,
		joinSeq:   g.joinSeq,
	}
	g.joinSeq++
	if len(g.Players) == 0 {
		p.IsHost = true
		g.HostID = p.ID
	}
	g.Players[p.ID] = p

	g.broadcastUnsafe(Event{Type: EventPlayerJoined, Payload: PlayerJoinedPayload{
		Player:  playerInfo(p),
		Players: g.rosterUnsafe(),
	}})
	return p, nil
}

// removeUnsafe deletes a player, re-electing the host if needed. Returns
// true when the room became empty. Assumes lock is held.
func (g *Game) removeUnsafe(id uuid.UUID) bool {
	p, ok := g.Players[id]
	if !ok {
		return false
	}
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
	delete(g.Players, id)
	if g.OnPlayerRemoved != nil {
		g.OnPlayerRemoved(id)
	}

	if len(g.Players) == 0 {
		g.stopTimerUnsafe()
		return true
	}

	var newHost *PlayerInfo
	if p.IsHost {
		// Deterministic re-election: lowest insertion order wins.
		promoted := g.orderedPlayersUnsafe()[0]
		promoted.IsHost = true
		g.HostID = promoted.ID
		info := playerInfo(promoted)
		newHost = &info
	}

	g.broadcastUnsafe(Event{Type: EventPlayerLeft, Payload: PlayerLeftPayload{
		Player:  playerInfo(p),
		Players: g.rosterUnsafe(),
		NewHost: newHost,
	}})

	// A departure during voting can complete the tally.
	if g.Phase == PhaseVoting {
		g.maybeResolveVotesUnsafe()
	}
	return false
}

// RemovePlayer removes a player immediately, destroying the room via
// OnEmpty if it was the last member.
func (g *Game) RemovePlayer(id uuid.UUID) {
	g.Mu.Lock()
	empty := g.removeUnsafe(id)
	onEmpty := g.OnEmpty
	code := g.Code
	g.Mu.Unlock()

	if empty && onEmpty != nil {
		onEmpty(code)
	}
}

// HandleDisconnect reacts to a dropped connection. In the lobby the player
// is removed outright; mid-round their seat is held for the grace window so
// a resumed session can reclaim it.
func (g *Game) HandleDisconnect(id uuid.UUID) {
	g.Mu.Lock()
	p, ok := g.Players[id]
	if !ok {
		g.Mu.Unlock()
		return
	}

	if g.Phase == PhaseLobby {
		empty := g.removeUnsafe(id)
		onEmpty := g.OnEmpty
		code := g.Code
		g.Mu.Unlock()
		if empty && onEmpty != nil {
			onEmpty(code)
		}
		return
	}

	p.Connected = false
	if p.graceTimer != nil {
		p.graceTimer.Stop()
	}
	p.graceTimer = time.AfterFunc(g.Grace, func() {
		g.expireDisconnected(id)
	})
	g.Mu.Unlock()
}

// expireDisconnected removes a player whose grace window lapsed without a
// resume.
func (g *Game) expireDisconnected(id uuid.UUID) {
	g.Mu.Lock()
	p, ok := g.Players[id]
	if !ok || p.Connected {
		g.Mu.Unlock()
		return
	}
	g.Mu.Unlock()
	g.RemovePlayer(id)
}

// Reattach marks a player as connected again and cancels any pending grace
// removal. Returns false if the identity is no longer a member.
func (g *Game) Reattach(id uuid.UUID) (*Player, bool) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	p, ok := g.Players[id]
	if !ok {
		return nil, false
	}
	p.Connected = true
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
	return p, true
}

// Snapshot builds the personalized full-state event for one player.
func (g *Game) Snapshot(playerID uuid.UUID) (Event, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	p, ok := g.Players[playerID]
	if !ok {
		return Event{}, ErrUnknownPlayer
	}

	payload := RoomStatePayload{
		RoomCode:         g.Code,
		Phase:            g.Phase,
		You:              playerInfo(p),
		Players:          g.rosterUnsafe(),
		SecondsRemaining: g.SecondsRemaining,
		VoteCalled:       g.VoteCalled,
	}
	if g.Phase == PhasePlaying || g.Phase == PhaseVoting {
		payload.Role = p.Role
		if p.Role != RoleSpy {
			payload.Location = g.Location
		}
	}
	return Event{Type: EventRoomState, Payload: payload}, nil
}

// Start begins a new round: validates the roster size, assigns exactly one
// spy, picks a secret location and launches the countdown. Legal from the
// lobby or from a finished round; a live round rejects it.
func (g *Game) Start() error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.Phase == PhasePlaying || g.Phase == PhaseVoting {
		return ErrAlreadyStarted
	}
	n := len(g.Players)
	if n < MinPlayers || n > MaxPlayers {
		return ErrInvalidPlayerCount
	}

	// Flip the phase before any other mutation so a concurrent start
	// observes ErrAlreadyStarted instead of interleaving.
	g.Phase = PhasePlaying
	g.VoteCalled = false
	g.SecondsRemaining = g.RoundSeconds

	ordered := g.orderedPlayersUnsafe()
	for _, p := range ordered {
		p.Role = RoleNonSpy
		p.HasVoted = false
		p.VotedFor = uuid.Nil
		p.HasGuessed = false
	}
	spy := ordered[rand.Intn(n)]
	spy.Role = RoleSpy
	g.SpyID = spy.ID
	g.spyName = spy.Name
	g.Location = catalog.PickRandom().Name

	roster := g.rosterUnsafe()
	names := catalog.Names()
	for _, p := range ordered {
		payload := GameStartedPayload{
			Role:      p.Role,
			Players:   roster,
			Timer:     g.SecondsRemaining,
			Locations: names,
		}
		if p.Role != RoleSpy {
			payload.Location = g.Location
		}
		g.sendToUnsafe(p.ID, Event{Type: EventGameStarted, Payload: payload})
	}
	g.systemChatUnsafe("The round has started. Ask your questions carefully.")

	g.startTimerUnsafe()
	return nil
}

// startTimerUnsafe launches the countdown goroutine. Assumes lock is held
// and no timer is running.
func (g *Game) startTimerUnsafe() {
	ctx, cancel := context.WithCancel(context.Background())
	g.timerCancel = cancel
	go g.runTimer(ctx)
}

// stopTimerUnsafe cancels the countdown if one is active. Safe to call
// redundantly. Assumes lock is held.
func (g *Game) stopTimerUnsafe() {
	if g.timerCancel != nil {
		g.timerCancel()
		g.timerCancel = nil
	}
}

// runTimer decrements the shared countdown once per tick and broadcasts the
// remaining time. Reaching zero while still playing ends the round.
func (g *Game) runTimer(ctx context.Context) {
	ticker := time.NewTicker(g.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Mu.Lock()
			if g.Phase != PhasePlaying {
				g.Mu.Unlock()
				return
			}
			g.SecondsRemaining--
			if g.SecondsRemaining <= 0 {
				g.endUnsafe(ReasonTimeout, SideSpy)
				g.Mu.Unlock()
				return
			}
			g.broadcastUnsafe(Event{Type: EventTimerUpdate, Payload: TimerUpdatePayload{
				SecondsRemaining: g.SecondsRemaining,
			}})
			g.Mu.Unlock()
		}
	}
}

// CallVote halts the countdown and opens the accusation vote. Any player
// may call it, once per round.
func (g *Game) CallVote(callerID uuid.UUID) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if _, ok := g.Players[callerID]; !ok {
		return ErrUnknownPlayer
	}
	if g.Phase != PhasePlaying {
		return ErrWrongPhase
	}
	if g.VoteCalled {
		return ErrVoteAlreadyCalled
	}

	g.VoteCalled = true
	g.stopTimerUnsafe()
	g.Phase = PhaseVoting

	g.broadcastUnsafe(Event{Type: EventVoteStarted, Payload: VoteStartedPayload{
		Players: g.rosterUnsafe(),
	}})
	return nil
}

// SubmitVote records one accusation. A second vote from the same player is
// silently ignored. Once every member has voted the round resolves.
func (g *Game) SubmitVote(voterID, accusedID uuid.UUID) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	voter, ok := g.Players[voterID]
	if !ok {
		return ErrUnknownPlayer
	}
	if g.Phase != PhaseVoting {
		return ErrWrongPhase
	}
	if _, ok := g.Players[accusedID]; !ok {
		return ErrInvalidTarget
	}
	if accusedID == voterID {
		return ErrSelfVote
	}
	if voter.HasVoted {
		return nil
	}

	voter.HasVoted = true
	voter.VotedFor = accusedID

	g.broadcastUnsafe(Event{Type: EventVoteUpdate, Payload: VoteUpdatePayload{
		VotesSubmitted: g.voteCountUnsafe(),
		TotalPlayers:   len(g.Players),
	}})
	g.maybeResolveVotesUnsafe()
	return nil
}

// voteCountUnsafe counts submitted votes. Assumes lock is held.
func (g *Game) voteCountUnsafe() int {
	count := 0
	for _, p := range g.Players {
		if p.HasVoted {
			count++
		}
	}
	return count
}

// maybeResolveVotesUnsafe resolves the tally once everyone has voted. Any
// tie for the maximum lets the spy walk. Assumes lock is held.
func (g *Game) maybeResolveVotesUnsafe() {
	if g.Phase != PhaseVoting || len(g.Players) == 0 {
		return
	}
	if g.voteCountUnsafe() < len(g.Players) {
		return
	}

	counts := make(map[uuid.UUID]int)
	for _, p := range g.Players {
		if p.HasVoted {
			counts[p.VotedFor]++
		}
	}
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	var top []uuid.UUID
	for id, c := range counts {
		if c == max {
			top = append(top, id)
		}
	}

	switch {
	case len(top) != 1:
		g.endUnsafe(ReasonVoteTie, SideSpy)
	case top[0] == g.SpyID:
		g.endUnsafe(ReasonSpyCaught, SideNonSpies)
	default:
		g.endUnsafe(ReasonInnocentAccused, SideSpy)
	}
}

// SpyGuess lets the spy stake the round on naming the secret location. The
// guess is one-shot; an off-catalog string is rejected without consuming it.
func (g *Game) SpyGuess(guesserID uuid.UUID, location string) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	p, ok := g.Players[guesserID]
	if !ok {
		return ErrUnknownPlayer
	}
	if p.HasGuessed {
		return ErrAlreadyGuessed
	}
	if g.Phase != PhasePlaying {
		return ErrWrongPhase
	}
	if p.Role != RoleSpy {
		return ErrNotSpy
	}
	guess := strings.TrimSpace(location)
	if !catalog.Contains(guess) {
		return ErrInvalidLocation
	}

	p.HasGuessed = true
	if guess == g.Location {
		g.endUnsafe(ReasonSpyGuessed, SideSpy)
	} else {
		g.endUnsafe(ReasonSpyWrongGuess, SideNonSpies)
	}
	return nil
}

// Chat broadcasts a player message to the room. Chat is round-scoped and
// rate-limited per sender; an empty-after-sanitize message is dropped
// silently.
func (g *Game) Chat(senderID uuid.UUID, text string) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	p, ok := g.Players[senderID]
	if !ok {
		return ErrUnknownPlayer
	}
	if g.Phase != PhasePlaying {
		return ErrWrongPhase
	}
	msg := sanitize.ChatText(text)
	if msg == "" {
		return nil
	}
	now := time.Now()
	if now.Sub(p.lastChat) < ChatCooldown {
		return ErrChatCooldown
	}
	p.lastChat = now

	g.broadcastUnsafe(Event{Type: EventChatMessage, Payload: ChatMessagePayload{
		ID:         uuid.New(),
		SenderID:   p.ID,
		SenderName: p.Name,
		Text:       msg,
		Timestamp:  now.UnixMilli(),
		Kind:       "player",
	}})
	return nil
}

// systemChatUnsafe injects a server announcement into the room chat.
// Assumes lock is held.
func (g *Game) systemChatUnsafe(text string) {
	g.broadcastUnsafe(Event{Type: EventChatMessage, Payload: ChatMessagePayload{
		ID:         uuid.New(),
		SenderID:   uuid.Nil,
		SenderName: "system",
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
		Kind:       "system",
	}})
}

// endUnsafe finishes the round: cancels the countdown, reveals the spy and
// location, and broadcasts the result. Assumes lock is held.
func (g *Game) endUnsafe(reason EndReason, winner Side) {
	g.stopTimerUnsafe()
	g.Phase = PhaseEnded

	spyInfo := PlayerInfo{ID: g.SpyID, Name: g.spyName}
	if spy, ok := g.Players[g.SpyID]; ok {
		spyInfo = playerInfo(spy)
	}

	ordered := g.orderedPlayersUnsafe()
	revealed := make([]RevealedPlayer, len(ordered))
	for i, p := range ordered {
		revealed[i] = RevealedPlayer{ID: p.ID, Name: p.Name, IsHost: p.IsHost, Role: p.Role}
	}

	g.broadcastUnsafe(Event{Type: EventGameEnded, Payload: GameEndedPayload{
		Reason:   reason,
		Winner:   winner,
		Spy:      spyInfo,
		Location: g.Location,
		Players:  revealed,
	}})
}

// Shutdown releases the room's timer resources. Called when the registry
// destroys the room.
func (g *Game) Shutdown() {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.stopTimerUnsafe()
	for _, p := range g.Players {
		if p.graceTimer != nil {
			p.graceTimer.Stop()
			p.graceTimer = nil
		}
	}
}
