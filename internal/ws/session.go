package ws

import (
	"context"
	"encoding/json"
	"log"

	"realtime-service/internal/delivery"
	"realtime-service/internal/identity"
	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/presence"
	"realtime-service/internal/receipts"
	"realtime-service/internal/registry"
	"realtime-service/internal/telemetry"
	"realtime-service/internal/typing"
)

// Session drives one connection's inbound event loop. All errors raised
// here are scoped to this connection; nothing is broadcast to peers and no
// peer state is mutated on failure.
type Session struct {
	conn     *Conn
	info     ConnInfo
	registry *registry.Registry
	presence *presence.Tracker
	typing   *typing.Debouncer
	pipeline *delivery.Pipeline
	receipts *receipts.Reconciler
	verifier identity.Verifier
	audit    *telemetry.AuditEmitter

	registered bool
}

// NewSession binds the collaborators for one connection.
func NewSession(conn *Conn, info ConnInfo, reg *registry.Registry, tracker *presence.Tracker, debouncer *typing.Debouncer, pipeline *delivery.Pipeline, reconciler *receipts.Reconciler, verifier identity.Verifier, audit *telemetry.AuditEmitter) *Session {
	return &Session{
		conn:     conn,
		info:     info,
		registry: reg,
		presence: tracker,
		typing:   debouncer,
		pipeline: pipeline,
		receipts: reconciler,
		verifier: verifier,
		audit:    audit,
	}
}

// Run consumes inbound frames until the socket closes. It must be the only
// reader of the connection: serial dispatch here is what guarantees
// per-(sender,recipient) event ordering.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown()

	for {
		data, err := s.conn.Read()
		if err != nil {
			return
		}
		if len(data) == 0 {
			continue
		}

		var event models.ClientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			s.sendError(models.ErrInvalidRequest, "malformed event")
			continue
		}

		observability.IncWSEvent("inbound", event.Type)
		s.dispatch(ctx, event)

		if state := s.conn.State(); state == StateFailed || state == StateClosed {
			return
		}
	}
}

func (s *Session) dispatch(ctx context.Context, event models.ClientEvent) {
	if event.Type == models.EventAuthenticate {
		s.handleAuthenticate(ctx, event)
		return
	}

	if s.conn.State() != StateActive {
		s.sendError(models.ErrInvalidRequest, "connection is not active")
		return
	}

	switch event.Type {
	case models.EventSendMessage:
		s.handleSendMessage(ctx, event)
	case models.EventStartTyping:
		s.handleTyping(event, true)
	case models.EventStopTyping:
		s.handleTyping(event, false)
	case models.EventMarkRead:
		s.handleMarkRead(ctx, event)
	default:
		s.sendError(models.ErrInvalidRequest, "unknown event type")
	}
}

func (s *Session) handleAuthenticate(ctx context.Context, event models.ClientEvent) {
	if s.conn.State() != StateConnecting {
		s.sendError(models.ErrInvalidRequest, "already authenticated")
		return
	}

	userID, err := s.verifier.Verify(ctx, event.Token)
	if err != nil {
		s.audit.Emit(ctx, "warn", "websocket authentication failed", s.info.RequestID, 0)
		s.sendError(models.ErrAuthenticationFailed, "invalid credential")
		s.conn.Fail()
		return
	}

	if err := s.conn.Authenticate(userID); err != nil {
		s.sendError(models.ErrInvalidRequest, "already authenticated")
		return
	}
	if err := s.conn.Activate(); err != nil {
		log.Printf("ws: activate connection %s: %v", s.conn.ID(), err)
		s.conn.Fail()
		return
	}

	// Registration fires the presence transition, so the connection must
	// already be able to receive fan-out.
	s.registry.Register(s.conn)
	s.registered = true

	snapshot := s.presence.Snapshot(ctx, userID)
	_ = s.conn.Deliver(models.ServerEvent{Type: models.EventOnlineUsers, Users: snapshot})
}

func (s *Session) handleSendMessage(ctx context.Context, event models.ClientEvent) {
	_, err := s.pipeline.Send(ctx, s.conn.UserID(), delivery.SendRequest{
		RecipientID: event.RecipientID,
		Content:     event.Content,
		MessageType: event.MessageType,
		Attachments: event.Attachments,
		ReplyToID:   event.ReplyToID,
	})
	if err != nil {
		s.replyError(err)
	}
	// The sender's own message_sent confirmation arrives through fan-out,
	// covering every one of their open tabs identically.
}

func (s *Session) handleTyping(event models.ClientEvent, start bool) {
	userID := s.conn.UserID()
	if event.RecipientID <= 0 || event.RecipientID == userID {
		s.sendError(models.ErrInvalidRequest, "invalid recipient")
		return
	}
	if start {
		s.typing.Signal(userID, event.RecipientID)
	} else {
		s.typing.Stop(userID, event.RecipientID)
	}
}

func (s *Session) handleMarkRead(ctx context.Context, event models.ClientEvent) {
	if event.MessageID <= 0 {
		s.sendError(models.ErrInvalidRequest, "invalid message id")
		return
	}
	if _, err := s.receipts.MarkRead(ctx, s.conn.UserID(), event.MessageID); err != nil {
		s.replyError(err)
	}
}

// replyError maps a taxonomy error onto the wire without leaking internal
// detail, and logs anything outside the taxonomy.
func (s *Session) replyError(err error) {
	code := models.ErrorCode(err)
	if code == models.CodeInternal {
		log.Printf("ws: session %s: %v", s.conn.ID(), err)
	}
	_ = s.conn.Deliver(models.ServerEvent{
		Type:  models.EventError,
		Error: &models.ErrorDetail{Code: code, Message: publicMessage(code)},
	})
}

func (s *Session) sendError(err error, message string) {
	_ = s.conn.Deliver(models.ServerEvent{
		Type:  models.EventError,
		Error: &models.ErrorDetail{Code: models.ErrorCode(err), Message: message},
	})
}

func (s *Session) teardown() {
	if s.registered {
		s.registry.Unregister(s.conn.ID())
	}
	s.conn.Close()
}

func publicMessage(code string) string {
	switch code {
	case models.CodeAuthenticationFailed:
		return "invalid credential"
	case models.CodeInvalidRequest:
		return "invalid request"
	case models.CodeUnauthorized:
		return "not allowed"
	case models.CodeDeliveryFailed:
		return "message could not be delivered"
	case models.CodeNotFound:
		return "not found"
	}
	return "internal error"
}
