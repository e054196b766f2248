package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/axtra/traincall/internal/config"
	"github.com/axtra/traincall/internal/credential"
	"github.com/axtra/traincall/internal/observability"
	"github.com/axtra/traincall/internal/persona"
	"github.com/axtra/traincall/internal/protocol"
	"github.com/axtra/traincall/internal/transcript"
)

type Server struct {
	cfg      config.Config
	issuer   *credential.Issuer
	store    transcript.Store
	metrics  *observability.Metrics
	feed     *hub
	upgrader websocket.Upgrader
}

func New(cfg config.Config, issuer *credential.Issuer, store transcript.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		issuer:  issuer,
		store:   store,
		metrics: metrics,
		feed:    newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections unless explicitly opened
				// up. Non-browser clients omit Origin and are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/voice/credential", s.handleIssueCredential)
	r.Get("/v1/voice/personas", s.handleListPersonas)
	r.Get("/v1/transcripts/ws", s.handleTranscriptWS)
	r.Get("/v1/transcripts/{room}", s.handleGetTranscript)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":                "ready",
		"credential_configured": s.issuer.Configured(),
		"store_mode":            s.storeMode(),
		"feed_subscribers":      s.feed.size(),
	})
}

type credentialRequest struct {
	ScenarioID string `json:"scenario_id"`
	UserID     string `json:"user_id"`
}

type credentialResponse struct {
	credential.Grant
	PersonaID       string `json:"persona_id"`
	PersonaFallback bool   `json:"persona_fallback"`
}

func (s *Server) handleIssueCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ScenarioID) == "" {
		respondError(w, http.StatusBadRequest, "missing_scenario_id", "scenario_id is required")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	if !s.issuer.Configured() {
		respondError(w, http.StatusServiceUnavailable, "not_configured", "credential signing not configured")
		return
	}

	roomName := credential.RoomName(req.ScenarioID, req.UserID)
	grant, err := s.issuer.Issue(roomName, req.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "issue_failed", err.Error())
		return
	}

	p, fellBack := persona.Resolve(roomName)
	resp := credentialResponse{Grant: grant, PersonaFallback: fellBack}
	if p != nil {
		resp.PersonaID = p.ID
	}

	s.metrics.CredentialsIssued.WithLabelValues(req.ScenarioID).Inc()
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"default":  persona.DefaultPersonaID,
		"personas": persona.All(),
	})
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(chi.URLParam(r, "room"))
	if room == "" {
		respondError(w, http.StatusBadRequest, "missing_room", "room name is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.store.SessionEntries(r.Context(), room, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"room_name": room,
		"entries":   entries,
	})
}

func (s *Server) handleTranscriptWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	subID, outbound := s.feed.subscribe()
	defer s.feed.unsubscribe(subID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A cancel (writer failure or client gone) must also unblock the read
	// loop, which is parked in ReadMessage until the deadline otherwise.
	stopOnCancel := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopOnCancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.feed.send(subID, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}
		s.handleFeedMessage(ctx, subID, parsed)
	}

	cancel()
	<-writerDone
}

func (s *Server) handleFeedMessage(ctx context.Context, from int, msg any) {
	switch m := msg.(type) {
	case protocol.ClientHello:
		// Registration only; entries carry their room on every frame.
	case protocol.ClientTranscript:
		record := transcript.EntryRecord{
			RoomName:  m.RoomName,
			Seq:       m.Seq,
			Role:      m.Role,
			Text:      m.Text,
			Emotion:   m.Emotion,
			CreatedAt: time.UnixMilli(m.TSMs).UTC(),
		}
		if err := s.store.SaveEntry(ctx, record); err != nil {
			log.Printf("transcript archive failed room=%s seq=%d: %v", m.RoomName, m.Seq, err)
		}
		s.metrics.TranscriptEntries.WithLabelValues(m.Role).Inc()
		s.feed.broadcast(from, protocol.TranscriptEntry{
			Type:     protocol.TypeTranscriptEntry,
			RoomName: m.RoomName,
			Seq:      m.Seq,
			Role:     m.Role,
			Text:     m.Text,
			Emotion:  m.Emotion,
			TSMs:     m.TSMs,
		})
	case protocol.ClientBye:
		if err := s.store.EndSession(ctx, transcript.SessionSummary{
			RoomName:    m.RoomName,
			DurationSec: m.DurationSec,
		}); err != nil {
			log.Printf("session summary failed room=%s: %v", m.RoomName, err)
		}
		s.feed.broadcast(from, protocol.SessionEnded{
			Type:        protocol.TypeSessionEnded,
			RoomName:    m.RoomName,
			DurationSec: m.DurationSec,
		})
	}
}

func (s *Server) storeMode() string {
	if strings.TrimSpace(s.cfg.DatabaseURL) == "" {
		return "in-memory"
	}
	return "postgres"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
