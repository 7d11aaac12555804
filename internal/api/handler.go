// Package api is the agent's local HTTP surface: the browser extension
// posts host signals here, and the CLI manages the daemon through it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/focusd/internal/matcher"
	"github.com/kalambet/focusd/internal/realtime"
	"github.com/kalambet/focusd/internal/remote"
	"github.com/kalambet/focusd/internal/store"
	"github.com/kalambet/focusd/internal/tracker"
)

const maxRequestBodySize = 1 << 20 // 1MB

// CredentialKey is the agent-state key holding the remote bearer token.
const CredentialKey = "auth.credential"

// SessionTracker is the tracker surface the API needs.
type SessionTracker interface {
	Submit(ev tracker.Event)
	Snapshot() tracker.Snapshot
}

// Authenticator performs the remote login and holds the active credential.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (string, error)
	SetCredential(token string)
}

// SyncControl toggles and triggers record delivery.
type SyncControl interface {
	SetAuthenticated(ok bool)
	Authenticated() bool
	FlushQueue(ctx context.Context) error
}

// RealtimeControl exposes the live channel's state and reset trigger.
type RealtimeControl interface {
	Status() realtime.Status
	Reset()
}

// VideoMatcher runs the chapter assignment.
type VideoMatcher interface {
	Match(ctx context.Context, video matcher.Video) (matcher.Result, error)
}

// BlockTable is the blocking policy surface.
type BlockTable interface {
	Apply(domain string) error
	Remove(domain string) error
	List() ([]string, error)
}

// Deps holds everything the local API serves from.
type Deps struct {
	Tracker   SessionTracker
	Store     *store.Store
	Syncer    SyncControl
	Remote    Authenticator
	Realtime  RealtimeControl
	Matcher   VideoMatcher
	Blocklist BlockTable
	Token     string
}

// NewHandler builds the local API router. /health is open; everything else
// requires the local bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/signals", handleSignals(deps))
		r.Get("/status", handleStatus(deps))
		r.Get("/sessions", handleSessions(deps))
		r.Get("/queue", handleQueue(deps))
		r.Post("/login", handleLogin(deps))
		r.Post("/logout", handleLogout(deps))
		r.Post("/match", handleMatch(deps))
		r.Get("/blocklist", handleListBlocked(deps))
		r.Post("/blocklist", handleBlock(deps))
		r.Delete("/blocklist/{domain}", handleUnblock(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// SignalRequest is one host signal from the browser extension.
type SignalRequest struct {
	Type        string `json:"type"` // resource_changed, window_focus, idle, resource_closed
	ResourceKey string `json:"resource_key,omitempty"`
	Title       string `json:"title,omitempty"`
	Focused     bool   `json:"focused,omitempty"`
	State       string `json:"state,omitempty"` // active, idle, locked
}

func handleSignals(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SignalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		now := time.Now()
		var ev tracker.Event
		switch req.Type {
		case "resource_changed":
			if req.ResourceKey == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "resource_key is required")
				return
			}
			ev = tracker.ResourceChanged(now, req.ResourceKey, req.Title)
		case "window_focus":
			ev = tracker.WindowFocusChanged(now, req.Focused)
		case "idle":
			state := tracker.IdleState(req.State)
			switch state {
			case tracker.IdleActive, tracker.IdleIdle, tracker.IdleLocked:
			default:
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown idle state %q", req.State)
				return
			}
			ev = tracker.UserIdleChanged(now, state)
		case "resource_closed":
			if req.ResourceKey == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "resource_key is required")
				return
			}
			ev = tracker.ResourceClosed(now, req.ResourceKey)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown signal type %q", req.Type)
			return
		}

		deps.Tracker.Submit(ev)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}
}

// StatusResponse is the daemon's composite status.
type StatusResponse struct {
	Session       tracker.Snapshot `json:"session"`
	Realtime      realtime.Status  `json:"realtime"`
	QueueDepth    int              `json:"queue_depth"`
	Authenticated bool             `json:"authenticated"`
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		depth, err := deps.Store.QueueDepth()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading queue depth: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StatusResponse{
			Session:       deps.Tracker.Snapshot(),
			Realtime:      deps.Realtime.Status(),
			QueueDepth:    depth,
			Authenticated: deps.Syncer.Authenticated(),
		})
	}
}

func handleSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		sessions, err := deps.Store.RecentSessions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing sessions: %v", err)
			return
		}
		if sessions == nil {
			sessions = []store.RecentSession{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessions)
	}
}

// QueueEntry is the inspection view of one queued record. The payload stays
// opaque; inspection never mutates the queue.
type QueueEntry struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func handleQueue(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queued, err := deps.Store.PeekAll()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading queue: %v", err)
			return
		}

		entries := make([]QueueEntry, len(queued))
		for i, q := range queued {
			entries[i] = QueueEntry{ID: q.ID, Kind: q.Kind, EnqueuedAt: q.EnqueuedAt}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"depth":   len(entries),
			"records": entries,
		})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func handleLogin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Email == "" || req.Password == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "email and password are required")
			return
		}

		token, err := deps.Remote.Authenticate(r.Context(), req.Email, req.Password)
		if errors.Is(err, remote.ErrUnauthorized) {
			httpError(w, http.StatusUnauthorized, "authentication_error", "login rejected")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "login failed: %v", err)
			return
		}

		if err := deps.Store.SetState(CredentialKey, token); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "persisting credential: %v", err)
			return
		}

		// A fresh credential re-enables sends, supersedes any realtime
		// backoff, and drains whatever queued up while logged out.
		deps.Syncer.SetAuthenticated(true)
		deps.Realtime.Reset()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			_ = deps.Syncer.FlushQueue(ctx)
		}()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "logged_in"})
	}
}

func handleLogout(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.RemoveState(CredentialKey); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "removing credential: %v", err)
			return
		}
		deps.Remote.SetCredential("")
		deps.Syncer.SetAuthenticated(false)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "logged_out"})
	}
}

// MatchRequest asks the matcher to assign a video to a chapter.
type MatchRequest struct {
	ResourceKey string `json:"resource_key"`
	Title       string `json:"title,omitempty"`
	Channel     string `json:"channel,omitempty"`
	DurationSec int    `json:"duration_seconds,omitempty"`
	Description string `json:"description,omitempty"`
}

func handleMatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req MatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ResourceKey == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "resource_key is required")
			return
		}

		res, err := deps.Matcher.Match(r.Context(), matcher.Video{
			ResourceKey: req.ResourceKey,
			Title:       req.Title,
			Channel:     req.Channel,
			DurationSec: req.DurationSec,
			Description: req.Description,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "match failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}

func handleListBlocked(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		domains, err := deps.Blocklist.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing blocklist: %v", err)
			return
		}
		if domains == nil {
			domains = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]string{"domains": domains})
	}
}

func handleBlock(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Domain string `json:"domain"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := deps.Blocklist.Apply(req.Domain); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "blocking %q: %v", req.Domain, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "blocked"})
	}
}

func handleUnblock(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		domain := chi.URLParam(r, "domain")
		if err := deps.Blocklist.Remove(domain); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "unblocking %q: %v", domain, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "unblocked"})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
