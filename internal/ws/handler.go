package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"realtime-service/internal/delivery"
	"realtime-service/internal/identity"
	"realtime-service/internal/observability"
	"realtime-service/internal/presence"
	"realtime-service/internal/receipts"
	"realtime-service/internal/registry"
	"realtime-service/internal/telemetry"
	"realtime-service/internal/typing"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades websocket connections and runs a session per socket.
type Handler struct {
	registry *registry.Registry
	presence *presence.Tracker
	typing   *typing.Debouncer
	pipeline *delivery.Pipeline
	receipts *receipts.Reconciler
	verifier identity.Verifier
	audit    *telemetry.AuditEmitter

	authGrace     time.Duration
	reconnectHint time.Duration
}

// NewHandler constructs the websocket entry point.
func NewHandler(reg *registry.Registry, tracker *presence.Tracker, debouncer *typing.Debouncer, pipeline *delivery.Pipeline, reconciler *receipts.Reconciler, verifier identity.Verifier, audit *telemetry.AuditEmitter, authGrace, reconnectHint time.Duration) *Handler {
	return &Handler{
		registry:      reg,
		presence:      tracker,
		typing:        debouncer,
		pipeline:      pipeline,
		receipts:      reconciler,
		verifier:      verifier,
		audit:         audit,
		authGrace:     authGrace,
		reconnectHint: reconnectHint,
	}
}

// Handle upgrades the request. Identity is established afterwards by the
// client's authenticate event; the connection only has the grace period to
// do so.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("realtime-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := NewConn(sock, h.authGrace, h.reconnectHint)
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      conn.ID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive()
	observability.IncWSEvent("lifecycle", "ws_connect")
	h.publishLifecycle(ctx, "ws_connect", conn, info, "")

	session := NewSession(conn, info, h.registry, h.presence, h.typing, h.pipeline, h.receipts, h.verifier, h.audit)

	go func() {
		// The upgrade span ends with the handshake; the session outlives it.
		runCtx := context.WithoutCancel(ctx)
		session.Run(runCtx)

		observability.DecWSActive()
		observability.IncWSEvent("lifecycle", "ws_disconnect")
		h.publishLifecycle(runCtx, "ws_disconnect", conn, info, conn.State().String())
	}()
}

func (h *Handler) publishLifecycle(ctx context.Context, name string, conn *Conn, info ConnInfo, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.connections", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   conn.UserID(),
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
