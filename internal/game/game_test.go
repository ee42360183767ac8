// internal/game/game_test.go
package game

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jswain/spyfall-service/internal/catalog"
)

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu           sync.Mutex
	playerEvents map[uuid.UUID][]Event
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		playerEvents: make(map[uuid.UUID][]Event),
	}
}

func (mb *mockBroadcaster) broadcastToPlayerFn(playerID uuid.UUID, ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[playerID] = append(mb.playerEvents[playerID], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents = make(map[uuid.UUID][]Event)
}

// eventsOfType returns every event of the given type delivered to playerID.
func (mb *mockBroadcaster) eventsOfType(playerID uuid.UUID, t EventType) []Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []Event
	for _, ev := range mb.playerEvents[playerID] {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (mb *mockBroadcaster) lastOfType(playerID uuid.UUID, t EventType) *Event {
	evs := mb.eventsOfType(playerID, t)
	if len(evs) == 0 {
		return nil
	}
	return &evs[len(evs)-1]
}

// setupTestGame initializes a room with players and a mock broadcaster. The
// tick interval is effectively infinite so the countdown never interferes;
// timer tests shorten it before calling Start.
func setupTestGame(t *testing.T, numPlayers int) (*Game, []*Player, *mockBroadcaster) {
	t.Helper()
	g := NewGame("TEST")
	mb := newMockBroadcaster()
	g.BroadcastToPlayerFn = mb.broadcastToPlayerFn
	g.TickInterval = time.Hour
	g.Grace = 50 * time.Millisecond

	players := make([]*Player, numPlayers)
	for i := 0; i < numPlayers; i++ {
		p, err := g.AddPlayer(fmt.Sprintf("Player%02d", i))
		require.NoError(t, err)
		players[i] = p
	}
	t.Cleanup(g.Shutdown)
	return g, players, mb
}

// splitRoles partitions the roster into the spy and everyone else.
func splitRoles(players []*Player) (*Player, []*Player) {
	var spy *Player
	var rest []*Player
	for _, p := range players {
		if p.Role == RoleSpy {
			spy = p
		} else {
			rest = append(rest, p)
		}
	}
	return spy, rest
}

func lockedPhase(g *Game) Phase {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.Phase
}

func TestStartAssignsExactlyOneSpy(t *testing.T) {
	for _, n := range []int{MinPlayers, 9, MaxPlayers} {
		t.Run(fmt.Sprintf("%d_players", n), func(t *testing.T) {
			g, players, mb := setupTestGame(t, n)
			require.NoError(t, g.Start())

			spies := 0
			for _, p := range players {
				if p.Role == RoleSpy {
					spies++
				}
			}
			assert.Equal(t, 1, spies)
			assert.Equal(t, PhasePlaying, g.Phase)
			assert.True(t, catalog.Contains(g.Location))

			spy, nonSpies := splitRoles(players)
			require.NotNil(t, spy)
			assert.Equal(t, spy.ID, g.SpyID)

			// Spy learns their role but never the location.
			ev := mb.lastOfType(spy.ID, EventGameStarted)
			require.NotNil(t, ev)
			payload := ev.Payload.(GameStartedPayload)
			assert.Equal(t, RoleSpy, payload.Role)
			assert.Empty(t, payload.Location)
			assert.Len(t, payload.Locations, len(catalog.Names()))

			for _, p := range nonSpies {
				ev := mb.lastOfType(p.ID, EventGameStarted)
				require.NotNil(t, ev)
				payload := ev.Payload.(GameStartedPayload)
				assert.Equal(t, RoleNonSpy, payload.Role)
				assert.Equal(t, g.Location, payload.Location)
			}
		})
	}
}

func TestStartRejectsBadRosterSize(t *testing.T) {
	g, _, _ := setupTestGame(t, MinPlayers-1)
	err := g.Start()
	assert.ErrorIs(t, err, ErrInvalidPlayerCount)
	assert.Equal(t, PhaseLobby, g.Phase)
	assert.Equal(t, uuid.Nil, g.SpyID)
}

func TestStartRejectsLiveRound(t *testing.T) {
	g, players, _ := setupTestGame(t, 4)
	require.NoError(t, g.Start())
	assert.ErrorIs(t, g.Start(), ErrAlreadyStarted)

	require.NoError(t, g.CallVote(players[0].ID))
	assert.ErrorIs(t, g.Start(), ErrAlreadyStarted)

	// A finished round can be restarted directly.
	spy, nonSpies := splitRoles(players)
	require.NoError(t, g.SubmitVote(spy.ID, nonSpies[0].ID))
	for _, p := range nonSpies {
		require.NoError(t, g.SubmitVote(p.ID, spy.ID))
	}
	require.Equal(t, PhaseEnded, g.Phase)
	assert.NoError(t, g.Start())
}

func TestAddPlayerRules(t *testing.T) {
	g, _, _ := setupTestGame(t, 4)

	_, err := g.AddPlayer("Player00")
	assert.ErrorIs(t, err, ErrNameTaken)

	// Case-sensitive: a different casing is a different name.
	_, err = g.AddPlayer("player00")
	assert.NoError(t, err)

	for i := 5; i < MaxPlayers; i++ {
		_, err := g.AddPlayer(fmt.Sprintf("Extra%02d", i))
		require.NoError(t, err)
	}
	_, err = g.AddPlayer("Overflow")
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestJoinRejectedMidRound(t *testing.T) {
	g, _, _ := setupTestGame(t, 4)
	require.NoError(t, g.Start())
	_, err := g.AddPlayer("Latecomer")
	assert.ErrorIs(t, err, ErrRoomNotJoinable)
}

func TestCallVoteStopsCountdown(t *testing.T) {
	g, players, mb := setupTestGame(t, 4)
	g.RoundSeconds = 600
	g.TickInterval = 10 * time.Millisecond
	require.NoError(t, g.Start())

	require.NoError(t, g.CallVote(players[1].ID))
	assert.Equal(t, PhaseVoting, lockedPhase(g))

	ev := mb.lastOfType(players[0].ID, EventVoteStarted)
	require.NotNil(t, ev)

	g.Mu.Lock()
	frozen := g.SecondsRemaining
	g.Mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	g.Mu.Lock()
	assert.Equal(t, frozen, g.SecondsRemaining)
	g.Mu.Unlock()

	assert.ErrorIs(t, g.CallVote(players[2].ID), ErrWrongPhase)
}

func TestCallVoteOncePerRound(t *testing.T) {
	g, players, _ := setupTestGame(t, 4)
	assert.ErrorIs(t, g.CallVote(players[0].ID), ErrWrongPhase)
	require.NoError(t, g.Start())
	require.NoError(t, g.CallVote(players[0].ID))
	assert.ErrorIs(t, g.CallVote(players[0].ID), ErrWrongPhase)
}

func TestVoteValidation(t *testing.T) {
	g, players, mb := setupTestGame(t, 4)
	require.NoError(t, g.Start())

	assert.ErrorIs(t, g.SubmitVote(players[0].ID, players[1].ID), ErrWrongPhase)
	require.NoError(t, g.CallVote(players[0].ID))

	assert.ErrorIs(t, g.SubmitVote(players[0].ID, players[0].ID), ErrSelfVote)
	assert.ErrorIs(t, g.SubmitVote(players[0].ID, uuid.New()), ErrInvalidTarget)
	assert.ErrorIs(t, g.SubmitVote(uuid.New(), players[0].ID), ErrUnknownPlayer)

	mb.clear()
	require.NoError(t, g.SubmitVote(players[0].ID, players[1].ID))
	ev := mb.lastOfType(players[0].ID, EventVoteUpdate)
	require.NotNil(t, ev)
	assert.Equal(t, 1, ev.Payload.(VoteUpdatePayload).VotesSubmitted)

	// A second vote is ignored without error and does not double-count.
	require.NoError(t, g.SubmitVote(players[0].ID, players[2].ID))
	assert.Equal(t, players[1].ID, players[0].VotedFor)
	assert.Len(t, mb.eventsOfType(players[0].ID, EventVoteUpdate), 1)
}

func TestVoteSpyCaught(t *testing.T) {
	g, players, mb := setupTestGame(t, 4)
	require.NoError(t, g.Start())
	spy, nonSpies := splitRoles(players)
	require.NoError(t, g.CallVote(nonSpies[0].ID))

	require.NoError(t, g.SubmitVote(spy.ID, nonSpies[0].ID))
	for _, p := range nonSpies {
		require.NoError(t, g.SubmitVote(p.ID, spy.ID))
	}

	assert.Equal(t, PhaseEnded, g.Phase)
	ev := mb.lastOfType(spy.ID, EventGameEnded)
	require.NotNil(t, ev)
	payload := ev.Payload.(GameEndedPayload)
	assert.Equal(t, ReasonSpyCaught, payload.Reason)
	assert.Equal(t, SideNonSpies, payload.Winner)
	assert.Equal(t, spy.ID, payload.Spy.ID)
	assert.Equal(t, g.Location, payload.Location)

	// The reveal carries every role.
	spies := 0
	for _, rp := range payload.Players {
		if rp.Role == RoleSpy {
			spies++
		}
	}
	assert.Equal(t, 1, spies)
}

func TestVoteInnocentAccused(t *testing.T) {
	g, players, mb := setupTestGame(t, 4)
	require.NoError(t, g.Start())
	spy, nonSpies := splitRoles(players)
	accused := nonSpies[0]
	require.NoError(t, g.CallVote(spy.ID))

	require.NoError(t, g.SubmitVote(accused.ID, spy.ID))
	require.NoError(t, g.SubmitVote(spy.ID, accused.ID))
	for _, p := range nonSpies[1:] {
		require.NoError(t, g.SubmitVote(p.ID, accused.ID))
	}

	ev := mb.lastOfType(spy.ID, EventGameEnded)
	require.NotNil(t, ev)
	payload := ev.Payload.(GameEndedPayload)
	assert.Equal(t, ReasonInnocentAccused, payload.Reason)
	assert.Equal(t, SideSpy, payload.Winner)
}

func TestVoteTieLetsSpyWalk(t *testing.T) {
	g, players, mb := setupTestGame(t, 7)
	require.NoError(t, g.Start())
	require.NoError(t, g.CallVote(players[0].ID))

	// 3 votes for players[0], 3 for players[1], 1 for players[2].
	require.NoError(t, g.SubmitVote(players[3].ID, players[0].ID))
	require.NoError(t, g.SubmitVote(players[4].ID, players[0].ID))
	require.NoError(t, g.SubmitVote(players[5].ID, players[0].ID))
	require.NoError(t, g.SubmitVote(players[6].ID, players[1].ID))
	require.NoError(t, g.SubmitVote(players[0].ID, players[1].ID))
	require.NoError(t, g.SubmitVote(players[2].ID, players[1].ID))

	assert.Equal(t, PhaseVoting, g.Phase, "tally must wait for the final vote")
	require.NoError(t, g.SubmitVote(players[1].ID, players[2].ID))

	ev := mb.lastOfType(players[0].ID, EventGameEnded)
	require.NotNil(t, ev)
	payload := ev.Payload.(GameEndedPayload)
	assert.Equal(t, ReasonVoteTie, payload.Reason)
	assert.Equal(t, SideSpy, payload.Winner)
}

func TestVoterLeavingCompletesTally(t *testing.T) {
	g, players, _ := setupTestGame(t, 4)
	require.NoError(t, g.Start())
	spy, nonSpies := splitRoles(players)
	require.NoError(t, g.CallVote(nonSpies[0].ID))

	require.NoError(t, g.SubmitVote(nonSpies[0].ID, spy.ID))
	require.NoError(t, g.SubmitVote(nonSpies[1].ID, spy.ID))
	require.NoError(t, g.SubmitVote(spy.ID, nonSpies[0].ID))

	// The only holdout departs, so the tally resolves with 3 of 3 votes in.
	g.RemovePlayer(nonSpies[2].ID)
	assert.Equal(t, PhaseEnded, g.Phase)
}

func TestSpyGuess(t *testing.T) {
	g, players, mb := setupTestGame(t, 4)
	require.NoError(t, g.Start())
	spy, nonSpies := splitRoles(players)

	assert.ErrorIs(t, g.SpyGuess(nonSpies[0].ID, g.Location), ErrNotSpy)

	// An off-catalog guess is rejected without consuming the attempt.
	assert.ErrorIs(t, g.SpyGuess(spy.ID, "Atlantis"), ErrInvalidLocation)
	assert.False(t, spy.HasGuessed)

	require.NoError(t, g.SpyGuess(spy.ID, "  "+g.Location+"  "))
	assert.Equal(t, PhaseEnded, g.Phase)

	ev := mb.lastOfType(spy.ID, EventGameEnded)
	require.NotNil(t, ev)
	payload := ev.Payload.(GameEndedPayload)
	assert.Equal(t, ReasonSpyGuessed, payload.Reason)
	assert.Equal(t, SideSpy, payload.Winner)

	assert.ErrorIs(t, g.SpyGuess(spy.ID, g.Location), ErrAlreadyGuessed)
}

func TestSpyWrongGuess(t *testing.T) {
	g, players, mb := setupTestGame(t, 4)
	require.NoError(t, g.Start())
	spy, _ := splitRoles(players)

	var wrong string
	for _, name := range catalog.Names() {
		if name != g.Location {
			wrong = name
			break
		}
	}
	require.NotEmpty(t, wrong)

	require.NoError(t, g.SpyGuess(spy.ID, wrong))
	ev := mb.lastOfType(spy.ID, EventGameEnded)
	require.NotNil(t, ev)
	payload := ev.Payload.(GameEndedPayload)
	assert.Equal(t, ReasonSpyWrongGuess, payload.Reason)
	assert.Equal(t, SideNonSpies, payload.Winner)
}

func TestTimeoutEndsRound(t *testing.T) {
	g, players, mb := setupTestGame(t, 4)
	g.RoundSeconds = 3
	g.TickInterval = 10 * time.Millisecond
	require.NoError(t, g.Start())

	require.Eventually(t, func() bool {
		return lockedPhase(g) == PhaseEnded
	}, time.Second, 5*time.Millisecond)

	ev := mb.lastOfType(players[0].ID, EventGameEnded)
	require.NotNil(t, ev)
	payload := ev.Payload.(GameEndedPayload)
	assert.Equal(t, ReasonTimeout, payload.Reason)
	assert.Equal(t, SideSpy, payload.Winner)

	// Ticks decrement and broadcast on the way down.
	updates := mb.eventsOfType(players[0].ID, EventTimerUpdate)
	require.NotEmpty(t, updates)
	assert.Equal(t, 2, updates[0].Payload.(TimerUpdatePayload).SecondsRemaining)

	// No further updates once the round is over.
	count := len(updates)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, mb.eventsOfType(players[0].ID, EventTimerUpdate), count)
}

func TestHostReelection(t *testing.T) {
	g, players, mb := setupTestGame(t, 4)
	host := players[0]
	require.True(t, host.IsHost)

	g.RemovePlayer(host.ID)

	assert.Equal(t, players[1].ID, g.HostID, "earliest remaining joiner is promoted")
	assert.True(t, players[1].IsHost)

	ev := mb.lastOfType(players[2].ID, EventPlayerLeft)
	require.NotNil(t, ev)
	payload := ev.Payload.(PlayerLeftPayload)
	require.NotNil(t, payload.NewHost)
	assert.Equal(t, players[1].ID, payload.NewHost.ID)
	assert.Len(t, payload.Players, 3)
}

func TestNonHostDepartureKeepsHost(t *testing.T) {
	g, players, mb := setupTestGame(t, 4)
	g.RemovePlayer(players[2].ID)
	assert.Equal(t, players[0].ID, g.HostID)

	ev := mb.lastOfType(players[0].ID, EventPlayerLeft)
	require.NotNil(t, ev)
	assert.Nil(t, ev.Payload.(PlayerLeftPayload).NewHost)
}

func TestLastDepartureFiresOnEmpty(t *testing.T) {
	g := NewGame("TEST")
	var emptied string
	g.OnEmpty = func(code string) { emptied = code }

	p, err := g.AddPlayer("Solo")
	require.NoError(t, err)
	g.RemovePlayer(p.ID)

	assert.Equal(t, "TEST", emptied)
	assert.Empty(t, g.Players)
}

func TestDisconnectInLobbyRemovesImmediately(t *testing.T) {
	g, players, _ := setupTestGame(t, 4)
	g.HandleDisconnect(players[3].ID)
	_, stillThere := g.Players[players[3].ID]
	assert.False(t, stillThere)
}

func TestDisconnectMidRoundHoldsSeat(t *testing.T) {
	g, players, _ := setupTestGame(t, 4)
	require.NoError(t, g.Start())

	g.HandleDisconnect(players[3].ID)
	g.Mu.Lock()
	_, stillThere := g.Players[players[3].ID]
	g.Mu.Unlock()
	assert.True(t, stillThere, "seat is held through the grace window")

	// Without a resume the grace window lapses and the seat is freed.
	require.Eventually(t, func() bool {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		_, ok := g.Players[players[3].ID]
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestReattachCancelsGraceRemoval(t *testing.T) {
	g, players, _ := setupTestGame(t, 4)
	require.NoError(t, g.Start())

	g.HandleDisconnect(players[3].ID)
	p, ok := g.Reattach(players[3].ID)
	require.True(t, ok)
	assert.True(t, p.Connected)

	time.Sleep(100 * time.Millisecond)
	g.Mu.Lock()
	_, stillThere := g.Players[players[3].ID]
	g.Mu.Unlock()
	assert.True(t, stillThere)
}

func TestSnapshotPersonalization(t *testing.T) {
	g, players, _ := setupTestGame(t, 4)

	ev, err := g.Snapshot(players[0].ID)
	require.NoError(t, err)
	payload := ev.Payload.(RoomStatePayload)
	assert.Equal(t, PhaseLobby, payload.Phase)
	assert.Equal(t, RoleNone, payload.Role)
	assert.Empty(t, payload.Location)

	require.NoError(t, g.Start())
	spy, nonSpies := splitRoles(players)

	ev, err = g.Snapshot(spy.ID)
	require.NoError(t, err)
	payload = ev.Payload.(RoomStatePayload)
	assert.Equal(t, RoleSpy, payload.Role)
	assert.Empty(t, payload.Location)

	ev, err = g.Snapshot(nonSpies[0].ID)
	require.NoError(t, err)
	payload = ev.Payload.(RoomStatePayload)
	assert.Equal(t, RoleNonSpy, payload.Role)
	assert.Equal(t, g.Location, payload.Location)

	_, err = g.Snapshot(uuid.New())
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestChat(t *testing.T) {
	g, players, mb := setupTestGame(t, 4)

	assert.ErrorIs(t, g.Chat(players[0].ID, "anyone home?"), ErrWrongPhase)
	require.NoError(t, g.Start())
	mb.clear()

	require.NoError(t, g.Chat(players[0].ID, "so... where do you all work?"))
	ev := mb.lastOfType(players[1].ID, EventChatMessage)
	require.NotNil(t, ev)
	payload := ev.Payload.(ChatMessagePayload)
	assert.Equal(t, players[0].ID, payload.SenderID)
	assert.Equal(t, "player", payload.Kind)
	assert.Equal(t, "so... where do you all work?", payload.Text)

	assert.ErrorIs(t, g.Chat(players[0].ID, "quick follow-up"), ErrChatCooldown)

	// Empty-after-sanitize messages drop without error or cooldown charge.
	mb.clear()
	require.NoError(t, g.Chat(players[1].ID, "   <>&   "))
	assert.Nil(t, mb.lastOfType(players[0].ID, EventChatMessage))

	assert.ErrorIs(t, g.Chat(uuid.New(), "hello"), ErrUnknownPlayer)
}

func TestSystemChatOnStart(t *testing.T) {
	g, players, mb := setupTestGame(t, 4)
	require.NoError(t, g.Start())

	evs := mb.eventsOfType(players[0].ID, EventChatMessage)
	require.NotEmpty(t, evs)
	payload := evs[0].Payload.(ChatMessagePayload)
	assert.Equal(t, "system", payload.Kind)
	assert.Equal(t, uuid.Nil, payload.SenderID)
}
