package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tmaxmax/go-sse"

	"github.com/tsantana84/codex-http/internal/config"
	"github.com/tsantana84/codex-http/internal/coordinator"
)

// handleEvents streams a session's events as server-sent events until the
// client disconnects, the session terminates, or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	broker := s.sessions.Events()
	if broker == nil {
		writeError(w, http.StatusNotFound, "Event streaming is disabled")
		return
	}
	if _, ok := s.sessions.GetSession(r.Context(), sessionID); !ok {
		writeError(w, http.StatusNotFound, config.ErrMsgSessionNotFound)
		return
	}

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sub := broker.Subscribe(sessionID)
	defer broker.Unsubscribe(sub)

	// the session may have been removed between lookup and subscribe
	if _, ok := s.sessions.GetSession(r.Context(), sessionID); !ok {
		_ = sendEvent(sess, coordinator.Event{Type: coordinator.EventTerminated, SessionID: sessionID, Timestamp: s.now()})
		_ = sess.Flush()
		return
	}

	ready := &sse.Message{}
	ready.AppendComment("ready")
	if err := sess.Send(ready); err != nil {
		return
	}
	_ = sess.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case event, open := <-sub.Events:
			if !open {
				return
			}
			if err := sendEvent(sess, event); err != nil {
				s.logger.DebugContext(r.Context(), "event stream write failed",
					"session_id", sessionID,
					"error", err)
				return
			}
			_ = sess.Flush()
		}
	}
}

func sendEvent(sess *sse.Session, event coordinator.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &sse.Message{Type: sse.Type(event.Type)}
	msg.AppendData(string(payload))
	return sess.Send(msg)
}
