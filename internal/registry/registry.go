// internal/registry/registry.go
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jswain/spyfall-service/internal/game"
	"github.com/jswain/spyfall-service/internal/sanitize"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrTooManyConnections = errors.New("too many connections from this address")
)

const (
	// SweepInterval is how often idle rooms are collected.
	SweepInterval = 30 * time.Minute
	// MaxRoomAge is the oldest a room may grow before the sweeper tears it
	// down regardless of occupancy.
	MaxRoomAge = 2 * time.Hour
)

// Registry owns the process-wide room table and the identity index used to
// dispatch intents in O(1). Rooms guard their own state; the registry lock
// only covers the two maps, and no game method is ever called while it is
// held.
type Registry struct {
	mu        sync.Mutex
	rooms     map[string]*game.Game
	players   map[uuid.UUID]string // identity -> room code
	broadcast func(playerID uuid.UUID, ev game.Event)
	log       *logrus.Logger
}

// New returns an empty registry. The broadcast function is attached to
// every room it creates; nil is allowed for tests.
func New(logger *logrus.Logger, broadcast func(playerID uuid.UUID, ev game.Event)) *Registry {
	return &Registry{
		rooms:     make(map[string]*game.Game),
		players:   make(map[uuid.UUID]string),
		broadcast: broadcast,
		log:       logger,
	}
}

// wire attaches the registry's lifecycle callbacks to a room.
func (r *Registry) wire(g *game.Game) {
	g.BroadcastToPlayerFn = r.broadcast
	g.OnEmpty = func(code string) {
		r.Destroy(code)
	}
	g.OnPlayerRemoved = func(playerID uuid.UUID) {
		r.mu.Lock()
		delete(r.players, playerID)
		r.mu.Unlock()
	}
}

// CreateRoom sanitizes the creator's name, allocates a unique room code and
// registers the creator as host.
func (r *Registry) CreateRoom(rawName string) (*game.Game, *game.Player, error) {
	name, err := sanitize.Name(rawName)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	code := randomCode()
	for {
		if _, taken := r.rooms[code]; !taken {
			break
		}
		code = randomCode()
	}
	g := game.NewGame(code)
	r.wire(g)
	r.rooms[code] = g
	r.mu.Unlock()

	p, err := g.AddPlayer(name)
	if err != nil {
		r.Destroy(code)
		return nil, nil, err
	}

	r.mu.Lock()
	r.players[p.ID] = code
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"room": code, "host": p.Name}).Info("room created")
	return g, p, nil
}

// JoinRoom normalizes the code, resolves the room and registers the player.
func (r *Registry) JoinRoom(rawCode, rawName string) (*game.Game, *game.Player, error) {
	code, err := sanitize.RoomCode(rawCode)
	if err != nil {
		return nil, nil, err
	}
	name, err := sanitize.Name(rawName)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	g, ok := r.rooms[code]
	r.mu.Unlock()
	if !ok {
		return nil, nil, ErrRoomNotFound
	}

	p, err := g.AddPlayer(name)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	r.players[p.ID] = code
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"room": code, "player": p.Name}).Info("player joined")
	return g, p, nil
}

// Resolve maps a connection identity to its room.
func (r *Registry) Resolve(identity uuid.UUID) (*game.Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.players[identity]
	if !ok {
		return nil, false
	}
	g, ok := r.rooms[code]
	return g, ok
}

// GetRoom looks up a room by its already-normalized code.
func (r *Registry) GetRoom(code string) (*game.Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.rooms[code]
	return g, ok
}

// LeaveRoom removes a player immediately. Host re-election and empty-room
// teardown happen inside the game.
func (r *Registry) LeaveRoom(identity uuid.UUID) {
	if g, ok := r.Resolve(identity); ok {
		g.RemovePlayer(identity)
	}
}

// HandleDisconnect forwards a dropped connection to the player's room.
func (r *Registry) HandleDisconnect(identity uuid.UUID) {
	if g, ok := r.Resolve(identity); ok {
		g.HandleDisconnect(identity)
	}
}

// Destroy tears a room down, releasing its timers and clearing the identity
// index for any remaining members. Safe to call for a code that is already
// gone.
func (r *Registry) Destroy(code string) {
	r.mu.Lock()
	g, ok := r.rooms[code]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.rooms, code)
	r.mu.Unlock()

	for _, id := range g.PlayerIDs() {
		r.mu.Lock()
		delete(r.players, id)
		r.mu.Unlock()
	}
	g.Shutdown()
	r.log.WithField("room", code).Info("room destroyed")
}

// RoomCount reports the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Sweep destroys every room that is empty or older than maxAge, returning
// how many were collected.
func (r *Registry) Sweep(maxAge time.Duration) int {
	r.mu.Lock()
	codes := make([]string, 0, len(r.rooms))
	for code := range r.rooms {
		codes = append(codes, code)
	}
	r.mu.Unlock()

	swept := 0
	for _, code := range codes {
		g, ok := r.GetRoom(code)
		if !ok {
			continue
		}
		if len(g.PlayerIDs()) == 0 || time.Since(g.CreatedAt) > maxAge {
			r.Destroy(code)
			swept++
		}
	}
	return swept
}

// StartSweeper runs the idle sweep on a fixed interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(maxAge); n > 0 {
					r.log.WithField("rooms", n).Info("idle sweep collected rooms")
				}
			}
		}
	}()
}
