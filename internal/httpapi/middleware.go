package httpapi

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"

	"github.com/tsantana84/codex-http/internal/config"
	"github.com/tsantana84/codex-http/internal/coordinator"
)

const (
	requestIDHeader = "X-Request-ID"
	// SessionIDHeader carries the session affinity hint
	SessionIDHeader = "X-Session-ID"
	sessionIDQuery  = "sessionId"
	maxRequestIDLen = 128
)

var (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsHeaders = "Origin, X-Requested-With, Content-Type, Accept, Authorization, " + SessionIDHeader
)

// requestIDMiddleware assigns a request ID and stores it as the audit trace id
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = ulid.Make().String()
		}
		w.Header().Set(requestIDHeader, reqID)
		ctx := coordinator.WithTraceID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recovererMiddleware turns handler panics into a 500 JSON response
func (s *Server) recovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.ErrorContext(r.Context(), "panic recovered",
				"panic", rec,
				"request_id", coordinator.TraceIDFrom(r.Context()),
				"stack", string(debug.Stack()))
			writeError(w, http.StatusInternalServerError, config.ErrMsgInternal)
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
			"request_id", coordinator.TraceIDFrom(r.Context()))
	})
}

// corsMiddleware allows any origin; preflight requests end here
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Access-Control-Allow-Headers", corsHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// affinityMiddleware stamps activity on the session named by the affinity
// header or query parameter. Unknown ids are ignored.
func (s *Server) affinityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(SessionIDHeader)
		if sessionID == "" {
			sessionID = r.URL.Query().Get(sessionIDQuery)
		}
		if sessionID != "" {
			s.sessions.Touch(r.Context(), sessionID)
		}
		next.ServeHTTP(w, r)
	})
}

// touchSessionMiddleware stamps activity on the session in the route path
func (s *Server) touchSessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sessions.Touch(r.Context(), chi.URLParam(r, "sessionID"))
		next.ServeHTTP(w, r)
	})
}
