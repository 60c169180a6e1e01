package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mossline/storepilot/internal/action"
	"github.com/mossline/storepilot/internal/chat"
	"github.com/mossline/storepilot/internal/provider"
	"github.com/mossline/storepilot/internal/store"
	"github.com/mossline/storepilot/internal/tracker"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine       *chat.Engine
	store        *store.Store
	docs         action.DocsGenerator
	model        string
	historyLimit int
	systemPrompt string
	logger       *zap.Logger
}

// NewHandler creates a new API handler. store and docs may be nil when
// the server runs without persistence or a generator backend; routes
// backed by a missing dependency return 503.
func NewHandler(engine *chat.Engine, st *store.Store, docs action.DocsGenerator, model string, historyLimit int, logger *zap.Logger) *Handler {
	return &Handler{
		engine:       engine,
		store:        st,
		docs:         docs,
		model:        model,
		historyLimit: historyLimit,
		systemPrompt: defaultSystemPrompt,
		logger:       logger,
	}
}

const defaultSystemPrompt = `You are a business automation assistant. You help users launch and run
online stores: setting up storefronts, configuring payments, seeding
inventory, managing products, and generating legal documents. Use the
available tools to act on the user's behalf and report what you did.`

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/chat", h.chatStream)

		r.Get("/integrations", h.listIntegrations)
		r.Post("/integrations", h.saveIntegration)

		r.Post("/docs/generate", h.generateDocs)
		r.Get("/reports", h.listReports)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "storepilot"})
}

// chatRequest accepts either a bare message string or a full messages
// array carrying the turn; when both are absent the request is invalid.
// caller_id is optional, but persistence is only keyed when it is set.
type chatRequest struct {
	CallerID string             `json:"caller_id,omitempty"`
	Channel  string             `json:"channel,omitempty"`
	Message  string             `json:"message,omitempty"`
	Messages []provider.Message `json:"messages,omitempty"`
}

// sseSink forwards turn events to the client as server-sent events.
// Chat engine events arrive on one goroutine, so no locking is needed.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) send(payload map[string]interface{}) {
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	s.w.Write([]byte("data: "))
	s.w.Write(b)
	s.w.Write([]byte("\n\n"))
	s.flusher.Flush()
}

func (s *sseSink) TextDelta(text string) {
	s.send(map[string]interface{}{"type": "text-delta", "text": text})
}

func (s *sseSink) ActionStarted(id, name string) {
	s.send(map[string]interface{}{"type": "tool-call", "id": id, "name": name})
}

func (s *sseSink) ActionResolved(id string, out action.Outcome) {
	payload := map[string]interface{}{
		"type":    "tool-result",
		"id":      id,
		"success": out.Success,
		"message": out.Message,
	}
	if out.Data != nil {
		payload["data"] = out.Data
	}
	if !out.Success {
		payload["error_kind"] = string(out.ErrorKind)
	}
	s.send(payload)
}

func (s *sseSink) Finished(reason string) {
	s.send(map[string]interface{}{"type": "finish", "reason": reason})
}

func (s *sseSink) Failed(err error) {
	s.send(map[string]interface{}{"type": "error", "message": err.Error()})
}

func (h *Handler) chatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Message == "" && !hasUserMessage(req.Messages) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message or a messages array with a user entry is required"})
		return
	}
	if req.Channel == "" {
		req.Channel = "web"
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	ctx := r.Context()
	messages := req.Messages

	var conversationID string
	if h.store != nil && req.CallerID != "" {
		var err error
		conversationID, err = h.store.FindOrCreateConversation(ctx, req.CallerID, req.Channel)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if len(messages) == 0 {
			messages, err = h.store.GetMessages(ctx, conversationID, h.historyLimit)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
		}
	}

	if len(messages) == 0 || messages[0].Role != "system" {
		messages = append([]provider.Message{{Role: "system", Content: h.systemPrompt}}, messages...)
	}
	if req.Message != "" {
		messages = append(messages, provider.Message{Role: "user", Content: req.Message})
	}
	// Everything from the fresh user turn onward is new this request;
	// the index survives into the engine's appended message log.
	newFrom := lastUserIndex(messages)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sink := &sseSink{w: w, flusher: flusher}
	tr := tracker.New(true)

	res, err := h.engine.Run(ctx, &provider.ChatRequest{
		Model:    h.model,
		Messages: messages,
	}, action.Caller{ID: req.CallerID}, tr, sink)
	if err != nil {
		// The sink already delivered the error event; nothing more to
		// send on a committed stream.
		h.logger.Warn("chat run failed", zap.Error(err))
		return
	}

	if conversationID != "" {
		h.persistTurn(ctx, conversationID, res.Messages[newFrom:], res.Content)
	}
}

// lastUserIndex locates the fresh user turn by position, so an earlier
// history message with identical content is never re-persisted.
func lastUserIndex(msgs []provider.Message) int {
	for i := len(msgs) - 1; i > 0; i-- {
		if msgs[i].Role == "user" {
			return i
		}
	}
	return 0
}

func hasUserMessage(msgs []provider.Message) bool {
	for _, m := range msgs {
		if m.Role == "user" && m.Content != "" {
			return true
		}
	}
	return false
}

// persistTurn appends the turn's new messages (the fresh user entry and
// everything produced after it) to the conversation log, then the final
// assistant text, which the engine reports separately.
func (h *Handler) persistTurn(ctx context.Context, conversationID string, produced []provider.Message, finalText string) {
	for _, m := range produced {
		if err := h.store.AppendMessage(ctx, conversationID, m); err != nil {
			h.logger.Warn("persist message failed", zap.Error(err))
			return
		}
	}
	if finalText != "" {
		final := provider.Message{Role: "assistant", Content: finalText}
		if err := h.store.AppendMessage(ctx, conversationID, final); err != nil {
			h.logger.Warn("persist assistant message failed", zap.Error(err))
		}
	}
}

type integrationRequest struct {
	UserID      string `json:"user_id"`
	Type        string `json:"integration_type"`
	ExternalID  string `json:"external_id"`
	AccessToken string `json:"access_token"`
}

func (h *Handler) saveIntegration(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
		return
	}
	var req integrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.UserID == "" || req.Type == "" || req.ExternalID == "" || req.AccessToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id, integration_type, external_id and access_token are required"})
		return
	}

	row := &store.IntegrationRow{
		UserID:      req.UserID,
		Type:        req.Type,
		ExternalID:  req.ExternalID,
		AccessToken: req.AccessToken,
	}
	if err := h.store.UpsertIntegration(r.Context(), row); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "connected"})
}

func (h *Handler) listIntegrations(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	rows, err := h.store.ListIntegrations(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []*store.IntegrationRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

type generateDocsRequest struct {
	Idea     string `json:"idea"`
	CallerID string `json:"caller_id,omitempty"`
}

func (h *Handler) generateDocs(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "document generation not configured"})
		return
	}
	var req generateDocsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Idea == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "idea is required"})
		return
	}

	docs, err := h.docs.Generate(r.Context(), req.Idea)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	if h.store != nil && req.CallerID != "" {
		if saveErr := h.store.SaveDocuments(r.Context(), req.CallerID, docs); saveErr != nil {
			h.logger.Warn("document archive failed", zap.Error(saveErr))
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	docs, err := h.store.ListDocuments(r.Context(), userID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if docs == nil {
		docs = []*store.DocumentRow{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
