// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/jswain/spyfall-service/internal/auth"
	"github.com/jswain/spyfall-service/internal/game"
	"github.com/jswain/spyfall-service/internal/registry"
)

// wsConn is a single client connection. The identity is bound by the first
// successful create, join or resume and only touched from the read pump.
type wsConn struct {
	identity uuid.UUID
	out      chan game.Event
	cancel   context.CancelFunc
}

// send pushes an event onto the connection's out channel non-blockingly.
// A full or abandoned channel drops the event; the write pump owns delivery.
func (c *wsConn) send(ev game.Event) {
	select {
	case c.out <- ev:
	default:
	}
}

// close stops both pumps via the connection's context.
func (c *wsConn) close() {
	c.cancel()
}

// HandleWS upgrades the connection and runs the intent loop until the
// client goes away.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	if !s.Limiter.Acquire(host) {
		s.Logger.WithField("remote", remoteAddr).Warn("connection limit exceeded")
		http.Error(w, registry.ErrTooManyConnections.Error(), http.StatusTooManyRequests)
		return
	}
	defer s.Limiter.Release(host)

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"spyfall"},
		OriginPatterns: []string{"*"}, // Adjust in production
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != "spyfall" {
		c.Close(BadSubprotocolError, "client must speak the spyfall subprotocol")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	conn := &wsConn{
		out:    make(chan game.Event, 16),
		cancel: cancel,
	}

	s.Logger.Infof("client connected from %s", remoteAddr)

	go s.writePump(ctx, c, conn)
	s.readPump(ctx, c, conn)

	// The read pump has exited: treat it as a disconnect unless a newer
	// connection already took over this identity.
	if conn.identity != uuid.Nil {
		if s.unbind(conn.identity, conn) {
			s.Registry.HandleDisconnect(conn.identity)
		}
	}
	s.Logger.Infof("client disconnected from %s", remoteAddr)
}

// readPump decodes intents off the socket and dispatches them one at a
// time, so a connection's actions are handled strictly in order.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, conn *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return
			}
			if !strings.Contains(err.Error(), "context canceled") {
				s.Logger.Warnf("read error: %v (CloseStatus: %d)", err, closeStatus)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var intent ClientIntent
		if err := json.Unmarshal(msg, &intent); err != nil {
			conn.send(game.NewErrorEvent("invalid JSON format"))
			continue
		}
		s.dispatch(conn, intent)
	}
}

// requireRoom resolves the room for a bound connection, reporting the
// failure to the client itself.
func (s *Server) requireRoom(conn *wsConn) (*game.Game, bool) {
	if conn.identity == uuid.Nil {
		conn.send(game.NewErrorEvent("not in a room"))
		return nil, false
	}
	g, ok := s.Registry.Resolve(conn.identity)
	if !ok {
		conn.send(game.NewErrorEvent("room no longer exists"))
		return nil, false
	}
	return g, true
}

// fail reports an operation error back to the originating connection only.
func (s *Server) fail(conn *wsConn, err error) {
	conn.send(game.NewErrorEvent(err.Error()))
}

// dispatch interprets a single client intent.
func (s *Server) dispatch(conn *wsConn, intent ClientIntent) {
	switch intent.Type {
	case IntentCreateRoom:
		if conn.identity != uuid.Nil {
			conn.send(game.NewErrorEvent("already in a room"))
			return
		}
		var p CreateRoomIntent
		if err := decodePayload(intent, &p); err != nil {
			s.fail(conn, err)
			return
		}
		g, player, err := s.Registry.CreateRoom(p.Name)
		if err != nil {
			s.fail(conn, err)
			return
		}
		token, err := auth.CreateSessionToken(player.ID)
		if err != nil {
			s.Logger.Warnf("session token for %s: %v", player.ID, err)
		}
		conn.identity = player.ID
		s.bind(player.ID, conn)
		conn.send(game.Event{Type: game.EventRoomCreated, Payload: game.RoomCreatedPayload{
			RoomCode:     g.Code,
			You:          game.PlayerInfo{ID: player.ID, Name: player.Name, IsHost: player.IsHost},
			Players:      g.Roster(),
			SessionToken: token,
		}})

	case IntentJoinRoom:
		if conn.identity != uuid.Nil {
			conn.send(game.NewErrorEvent("already in a room"))
			return
		}
		var p JoinRoomIntent
		if err := decodePayload(intent, &p); err != nil {
			s.fail(conn, err)
			return
		}
		g, player, err := s.Registry.JoinRoom(p.Code, p.Name)
		if err != nil {
			s.fail(conn, err)
			return
		}
		token, err := auth.CreateSessionToken(player.ID)
		if err != nil {
			s.Logger.Warnf("session token for %s: %v", player.ID, err)
		}
		conn.identity = player.ID
		s.bind(player.ID, conn)
		conn.send(game.Event{Type: game.EventRoomJoined, Payload: game.RoomJoinedPayload{
			RoomCode:     g.Code,
			You:          game.PlayerInfo{ID: player.ID, Name: player.Name, IsHost: player.IsHost},
			Players:      g.Roster(),
			SessionToken: token,
		}})

	case IntentResume:
		if conn.identity != uuid.Nil {
			conn.send(game.NewErrorEvent("already in a room"))
			return
		}
		var p ResumeIntent
		if err := decodePayload(intent, &p); err != nil {
			s.fail(conn, err)
			return
		}
		id, err := auth.VerifySessionToken(p.Token)
		if err != nil {
			conn.send(game.NewErrorEvent("invalid session token"))
			return
		}
		g, ok := s.Registry.Resolve(id)
		if !ok {
			conn.send(game.NewErrorEvent("session no longer valid"))
			return
		}
		if _, ok := g.Reattach(id); !ok {
			conn.send(game.NewErrorEvent("session no longer valid"))
			return
		}
		conn.identity = id
		s.bind(id, conn)
		if snap, err := g.Snapshot(id); err == nil {
			conn.send(snap)
		}

	case IntentStartGame:
		if g, ok := s.requireRoom(conn); ok {
			if err := g.Start(); err != nil {
				s.fail(conn, err)
			}
		}

	case IntentCallVote:
		if g, ok := s.requireRoom(conn); ok {
			if err := g.CallVote(conn.identity); err != nil {
				s.fail(conn, err)
			}
		}

	case IntentSubmitVote:
		var p SubmitVoteIntent
		if err := decodePayload(intent, &p); err != nil {
			s.fail(conn, err)
			return
		}
		if g, ok := s.requireRoom(conn); ok {
			if err := g.SubmitVote(conn.identity, p.Target); err != nil {
				s.fail(conn, err)
			}
		}

	case IntentSpyGuess:
		var p SpyGuessIntent
		if err := decodePayload(intent, &p); err != nil {
			s.fail(conn, err)
			return
		}
		if g, ok := s.requireRoom(conn); ok {
			if err := g.SpyGuess(conn.identity, p.Location); err != nil {
				s.fail(conn, err)
			}
		}

	case IntentChat:
		var p ChatIntent
		if err := decodePayload(intent, &p); err != nil {
			s.fail(conn, err)
			return
		}
		if g, ok := s.requireRoom(conn); ok {
			if err := g.Chat(conn.identity, p.Text); err != nil {
				s.fail(conn, err)
			}
		}

	case IntentLeaveRoom:
		if conn.identity == uuid.Nil {
			return
		}
		id := conn.identity
		conn.identity = uuid.Nil
		s.unbind(id, conn)
		s.Registry.LeaveRoom(id)

	default:
		conn.send(game.NewErrorEvent("unknown intent type"))
	}
}

// writePump serializes outgoing events onto the socket and keeps the
// connection alive with periodic pings.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, conn *wsConn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-conn.out:
			data, err := json.Marshal(ev)
			if err != nil {
				s.Logger.Warnf("failed to marshal outgoing event: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.Logger.Warnf("failed to write to websocket: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				s.Logger.Warnf("ping failed, assuming disconnect: %v", err)
				return
			}
		}
	}
}
