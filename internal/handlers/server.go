// internal/handlers/server.go
package handlers

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jswain/spyfall-service/internal/game"
	"github.com/jswain/spyfall-service/internal/registry"
)

// Server is the session gateway: it owns the live WebSocket connections and
// routes room broadcasts to them. Room and player state live in the
// registry; the gateway only maps identities to sockets.
type Server struct {
	Registry *registry.Registry
	Limiter  *registry.AddressLimiter
	Logger   *logrus.Logger

	mu    sync.RWMutex
	conns map[uuid.UUID]*wsConn
}

// NewServer wires a gateway, its registry and the per-address connection
// limiter together.
func NewServer(logger *logrus.Logger) *Server {
	s := &Server{
		Logger:  logger,
		Limiter: registry.NewAddressLimiter(registry.DefaultConnectionCeiling),
		conns:   make(map[uuid.UUID]*wsConn),
	}
	s.Registry = registry.New(logger, s.sendToPlayer)
	return s
}

// RegisterRoutes attaches the gateway's endpoints to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.HandleWS)
	mux.HandleFunc("/room/", s.handleRoomQR)
}

// sendToPlayer delivers an event to one player's connection, dropping it if
// the player has no live socket. Non-blocking; safe to call from inside a
// room's lock.
func (s *Server) sendToPlayer(playerID uuid.UUID, ev game.Event) {
	s.mu.RLock()
	conn := s.conns[playerID]
	s.mu.RUnlock()
	if conn != nil {
		conn.send(ev)
	}
}

// bind associates an identity with a connection, superseding any stale one.
func (s *Server) bind(playerID uuid.UUID, conn *wsConn) {
	s.mu.Lock()
	old := s.conns[playerID]
	s.conns[playerID] = conn
	s.mu.Unlock()

	if old != nil && old != conn {
		old.close()
	}
}

// unbind detaches an identity, but only if it still points at conn. A
// resumed session may have rebound the identity already.
func (s *Server) unbind(playerID uuid.UUID, conn *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns[playerID] != conn {
		return false
	}
	delete(s.conns, playerID)
	return true
}
