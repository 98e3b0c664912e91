// Package rest exposes the experiment service over HTTP JSON: anonymous
// tracking, editor-facing stats and evaluation, lifecycle transitions, and
// client tracking configuration.
package rest

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/abtestkit/abtestkit/internal/platform/errors"
	"github.com/abtestkit/abtestkit/internal/platform/requestctx"
	"github.com/abtestkit/abtestkit/internal/services/abtest/gateway"
	"github.com/abtestkit/abtestkit/internal/services/abtest/lifecycle"
	"github.com/abtestkit/abtestkit/internal/services/abtest/session"
	"github.com/abtestkit/abtestkit/internal/services/abtest/storage"
)

// Server carries the dependencies behind the HTTP surface.
type Server struct {
	gateway    *gateway.Gateway
	decider    lifecycle.Decider
	controller *lifecycle.Controller
	store      storage.Store
	session    session.Config
	secret     []byte
	siteHost   string
	now        func() time.Time
}

// Config wires a Server.
type Config struct {
	Gateway    *gateway.Gateway
	Decider    lifecycle.Decider
	Controller *lifecycle.Controller
	Store      storage.Store
	Session    session.Config
	// Secret signs client tracking configuration.
	Secret []byte
	// SiteHost is the host treated as same-origin for client config reads.
	SiteHost string
	Now      func() time.Time
}

// NewServer returns a Server for the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if cfg.Decider == nil {
		return nil, fmt.Errorf("decider is required")
	}
	if cfg.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{
		gateway:    cfg.Gateway,
		decider:    cfg.Decider,
		controller: cfg.Controller,
		store:      cfg.Store,
		session:    cfg.Session,
		secret:     cfg.Secret,
		siteHost:   cfg.SiteHost,
		now:        cfg.Now,
	}, nil
}

// Routes wires all handlers into a mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/track", s.handleTrack)
	mux.HandleFunc("GET /v1/stats", s.requireEditor(s.handleStats))
	mux.HandleFunc("GET /v1/evaluate", s.requireEditor(s.handleEvaluate))
	mux.HandleFunc("POST /v1/reset", s.requireEditor(s.handleReset))
	mux.HandleFunc("POST /v1/lifecycle/enable", s.requireEditor(s.handleEnable))
	mux.HandleFunc("POST /v1/lifecycle/start", s.requireEditor(s.handleStart))
	mux.HandleFunc("POST /v1/lifecycle/check", s.requireEditor(s.handleCheck))
	mux.HandleFunc("POST /v1/lifecycle/apply", s.requireEditor(s.handleApply))
	mux.HandleFunc("POST /v1/lifecycle/unlock", s.requireEditor(s.handleUnlock))
	mux.HandleFunc("POST /v1/milestones", s.requireEditor(s.handleMarkMilestone))
	mux.HandleFunc("GET /v1/milestones", s.requireEditor(s.handleListMilestones))
	mux.HandleFunc("GET /v1/client-config", s.handleClientConfig)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// requireEditor guards authoring endpoints with an editor session token and
// stores the editor identity in the request context.
func (s *Server) requireEditor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := session.Validate(bearerToken(r), s.session)
		if err != nil {
			writeError(w, apperrors.New(apperrors.CodeEditorUnauthorized, "unauthorized"))
			return
		}
		ctx := requestctx.WithEditorID(r.Context(), claims.EditorID)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return r.Header.Get("X-Session-Token")
}

// hostOf extracts the host from an Origin or Referer header value.
func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return strings.Trim(host, "[]")
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.Wrap(apperrors.CodePayloadInvalid, "invalid JSON body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError renders the uniform failure envelope. Internal detail stays in
// the logs; unauthorized responses never say which credential failed.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
