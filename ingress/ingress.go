// Package ingress accepts client connections, drives the pairing handshake,
// authenticates encrypted audio frames, and feeds decrypted audio to the
// bridge.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mozhi/agent/bridge"
	"github.com/mozhi/agent/internal/util"
	"github.com/mozhi/agent/pairing"
)

// Frames carry up to ~4 MiB of base64 audio; anything larger is a protocol
// violation.
const defaultMaxMessageSize = 1 << 22

const writeTimeout = 10 * time.Second

// Server owns the websocket endpoint and the per-connection protocol state
// machine. Each accepted connection runs in its own goroutine; a connection
// is Unbound until a pair handshake or token validation attaches a session.
type Server struct {
	pairing  *pairing.Manager
	bridge   *bridge.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
	maxSize  int64
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the structured logger. Defaults to a JSON logger on stderr.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMaxMessageSize overrides the per-message size limit.
func WithMaxMessageSize(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// NewServer wires the pairing manager and bridge registry into a server.
func NewServer(pm *pairing.Manager, reg *bridge.Registry, opts ...ServerOption) *Server {
	s := &Server{
		pairing: pm,
		bridge:  reg,
		maxSize: defaultMaxMessageSize,
		upgrader: websocket.Upgrader{
			// Clients are mobile apps, not browsers; origin checks do not apply.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	s.logger = s.logger.With("component", "ingress")
	return s
}

// Router mounts the websocket endpoint and a health probe.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(s.maxSize)
	s.serveConn(r.Context(), conn)
}

// serveConn is the per-connection message loop. Protocol and token errors
// are replied to and the loop continues; a decryption failure closes the
// connection with no structured explanation.
func (s *Server) serveConn(ctx context.Context, conn *websocket.Conn) {
	logger := s.logger.With("remote_addr", conn.RemoteAddr().String())
	defer conn.Close()

	var session *pairing.Session
	defer func() {
		if session == nil {
			return
		}
		if err := s.bridge.Release(ctx, session.Token); err != nil {
			logger.Error("flush on close failed", "error", err)
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("connection closed unexpectedly", "error", err)
			}
			return
		}

		var msg envelope
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn("invalid payload", "error", err)
			s.sendError(conn, errInvalidJSON)
			continue
		}

		switch msg.Type {
		case kindPair:
			// Re-pairing replaces the bound session; flush what the old one
			// buffered so no audio is orphaned.
			if next := s.handlePair(conn, logger, msg); next != nil {
				if session != nil && session.Token != next.Token {
					if err := s.bridge.Release(ctx, session.Token); err != nil {
						logger.Error("flush on re-pair failed", "error", err)
					}
				}
				session = next
			}

		case kindAudio:
			if session == nil {
				bound, ok := s.pairing.ValidateToken(msg.Token)
				if !ok {
					s.sendError(conn, errInvalidToken)
					continue
				}
				session = bound
			}
			if fatal := s.handleAudio(ctx, conn, logger, msg, session); fatal {
				return
			}

		case kindFlush:
			if session == nil {
				s.sendError(conn, errInvalidToken)
				continue
			}
			if err := s.bridge.For(session.Token).Flush(ctx); err != nil {
				logger.Error("flush failed", "error", err)
			}

		default:
			logger.Warn("unrecognized message type ignored", "type", msg.Type)
		}
	}
}

func (s *Server) handlePair(conn *websocket.Conn, logger *slog.Logger, msg envelope) *pairing.Session {
	var req pairRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil || !req.valid() {
		s.sendError(conn, errInvalidPayload)
		return nil
	}

	session, err := s.pairing.CreateSession(req.DeviceID, req.DeviceName, req.ClientPublicKey)
	if err != nil {
		if errors.Is(err, pairing.ErrInvalidPublicKey) {
			s.sendError(conn, errInvalidPayload)
			return nil
		}
		logger.Error("pairing failed", "error", err)
		s.sendError(conn, errInvalidPayload)
		return nil
	}

	ack := ackEvent{
		Type: kindAck,
		Payload: pairAck{
			DesktopPublicKey: s.pairing.PublicKeyB64(),
			SessionToken:     session.Token,
			ExpiresAtUTC:     session.ExpiresAt.Format(time.RFC3339),
		},
	}
	if err := s.send(conn, ack); err != nil {
		logger.Warn("pair_ack send failed", "error", err)
	}
	logger.Info("pairing completed", "device_id", req.DeviceID, "device_name", req.DeviceName)
	return session
}

// handleAudio decrypts one frame and forwards it. The returned flag is true
// only for an authentication failure, which terminates the connection.
func (s *Server) handleAudio(ctx context.Context, conn *websocket.Conn, logger *slog.Logger, msg envelope, session *pairing.Session) bool {
	var frame audioFrame
	if err := json.Unmarshal(msg.Payload, &frame); err != nil {
		s.sendError(conn, errInvalidPayload)
		return false
	}
	nonce, err := util.B64Decode(frame.Nonce)
	if err != nil {
		s.sendError(conn, errInvalidPayload)
		return false
	}
	ciphertext, err := util.B64Decode(frame.Ciphertext)
	if err != nil {
		s.sendError(conn, errInvalidPayload)
		return false
	}

	plaintext, err := pairing.Decrypt(session.Key, nonce, ciphertext)
	if err != nil {
		// A failed tag means a wrong key or tampering. The client gets a
		// closed connection, not an explanation.
		logger.Warn("frame authentication failed, closing connection",
			"device_id", session.DeviceID, "error", err)
		return true
	}

	if err := s.bridge.For(session.Token).HandleAudio(ctx, plaintext); err != nil {
		// Collaborator failures consume the chunk but keep the connection.
		logger.Error("pipeline failed", "device_id", session.DeviceID, "error", err)
	}
	return false
}

func (s *Server) send(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (s *Server) sendError(conn *websocket.Conn, message string) {
	if err := s.send(conn, errorEvent{Type: kindError, Message: message}); err != nil {
		s.logger.Warn("error reply send failed", "error", err)
	}
}
