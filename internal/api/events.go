package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mipworks/algo-control-plane/internal/connections"
	"github.com/mipworks/algo-control-plane/internal/metrics"
	"github.com/mipworks/algo-control-plane/internal/push"
)

const sessionBuffer = 16

// EventHub holds the live server-sent-event sessions and implements
// push.Transport: the result pusher posts payloads here by connection ref.
type EventHub struct {
	mu       sync.RWMutex
	sessions map[string]chan []byte
}

// NewEventHub constructs an empty EventHub.
func NewEventHub() *EventHub {
	return &EventHub{sessions: make(map[string]chan []byte)}
}

// Post delivers the payload to the session's channel. A missing session is
// push.ErrGone so the pusher cleans up the registry row; a full channel is
// a transient failure and the message is redelivered.
func (h *EventHub) Post(ctx context.Context, connectionRef string, payload []byte) error {
	h.mu.RLock()
	ch, ok := h.sessions[connectionRef]
	h.mu.RUnlock()
	if !ok {
		return push.ErrGone
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("post canceled: %w", ctx.Err())
	case ch <- payload:
		return nil
	default:
		return fmt.Errorf("session %q buffer full", connectionRef)
	}
}

func (h *EventHub) register(connectionRef string) chan []byte {
	ch := make(chan []byte, sessionBuffer)
	h.mu.Lock()
	h.sessions[connectionRef] = ch
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unregister(connectionRef string) {
	h.mu.Lock()
	delete(h.sessions, connectionRef)
	h.mu.Unlock()
}

// Len reports the number of live sessions.
func (h *EventHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

const heartbeatInterval = 30 * time.Second

// events serves the result stream. Each request becomes a connection: it
// gets a fresh ref, is registered in the connection store keyed by the
// caller's client_id, and receives results as SSE data events until the
// client goes away.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	connectionRef := uuid.NewString()
	err := s.conns.Put(r.Context(), connections.Connection{
		ClientID:      clientID,
		ConnectionRef: connectionRef,
		ConnectedAt:   time.Now().UTC(),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	ch := s.hub.register(connectionRef)
	metrics.IncConnections()
	defer func() {
		s.hub.unregister(connectionRef)
		metrics.DecConnections()
		// Only removes the row if this connection still owns it; a
		// reconnect that already replaced it is left alone.
		if err := s.conns.DeleteByConnection(context.Background(), connectionRef); err != nil {
			s.logger.Warn("remove connection row",
				zap.String("connection_ref", connectionRef), zap.Error(err))
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: connected\ndata: {\"connection_ref\":%q}\n\n", connectionRef)
	flusher.Flush()

	s.logger.Info("event stream opened",
		zap.String("client_id", clientID),
		zap.String("connection_ref", connectionRef))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("event stream closed",
				zap.String("client_id", clientID),
				zap.String("connection_ref", connectionRef))
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case payload := <-ch:
			fmt.Fprintf(w, "event: result\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
