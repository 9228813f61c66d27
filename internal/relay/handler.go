package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/convoclient/internal/logger"
	"github.com/convoclient/internal/model"
	"github.com/convoclient/internal/protocol"
)

const maxPageSize = 100

// Handler — HTTP-обработчики журнала сообщений.
type Handler struct {
	store          MessageStore
	hub            *Hub
	allowedOrigins string
}

// NewHandler создаёт обработчики. allowedOrigins — как в CORS (через запятую или "*").
func NewHandler(store MessageStore, hub *Hub, allowedOrigins string) *Handler {
	return &Handler{store: store, hub: hub, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

// Routes монтирует маршруты relay на роутер.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/conversations/{conversationId}/messages", h.GetMessages)
	r.Post("/api/conversations/{conversationId}/messages", h.PublishMessage)
	r.Get("/api/messages/{messageId}/reactions", h.GetReactions)
	r.Get("/ws", h.ServeWS)
}

// GetMessages — страница журнала по курсору: before → по убыванию времени
// отправки, after → по возрастанию, без курсора → последние сообщения.
// Короткая страница — единственный сигнал исчерпания.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	limit := queryInt(r, "limit", protocol.DefaultFetchLimit)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be positive")
		return
	}
	before := queryInt64(r, "before")
	after := queryInt64(r, "after")
	if before > 0 && after > 0 {
		writeError(w, http.StatusBadRequest, "before and after are mutually exclusive")
		return
	}

	var (
		msgs []protocol.RawMessage
		err  error
	)
	if after > 0 {
		msgs, err = h.store.ListAfter(r.Context(), conversationID, after, limit)
	} else {
		msgs, err = h.store.ListBefore(r.Context(), conversationID, before, limit)
	}
	if err != nil {
		logger.Errorf("relay get messages conv=%s: %v", conversationID, err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type publishRequest struct {
	SenderID    string          `json:"sender_id"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body,omitempty"`
	Fallback    string          `json:"fallback,omitempty"`
}

// PublishMessage присваивает сообщению постоянный id и серверную метку
// времени, пишет в журнал и вещает подписчикам. Ответ — каноническая
// проводная запись, по ней клиент реконсилирует временный id.
func (h *Handler) PublishMessage(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("relay.PublishMessage", time.Now())()
	conversationID := chi.URLParam(r, "conversationId")

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SenderID == "" || req.ContentType == "" {
		writeError(w, http.StatusBadRequest, "sender_id and content_type required")
		return
	}

	msg := protocol.RawMessage{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       req.SenderID,
		SentAtNanos:    time.Now().UTC().UnixNano(),
		ContentType:    req.ContentType,
		Body:           req.Body,
		Fallback:       req.Fallback,
	}
	if err := h.store.Append(r.Context(), msg); err != nil {
		logger.Errorf("relay publish conv=%s: %v", conversationID, err)
		writeError(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	h.applyReactionProjection(r.Context(), msg)

	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("relay publish marshal: %v", err)
	} else {
		h.hub.Broadcast(protocol.StreamEvent{Type: protocol.EventMessage, Payload: payload})
	}

	writeJSON(w, http.StatusCreated, msg)
}

// applyReactionProjection поддерживает серверную проекцию реакций.
// Кривая реакция просто не попадает в проекцию — публикации это не мешает.
func (h *Handler) applyReactionProjection(ctx context.Context, msg protocol.RawMessage) {
	if model.MessageType(msg.ContentType) != model.TypeReaction {
		return
	}
	var rc model.ReactionContent
	if err := json.Unmarshal(msg.Body, &rc); err != nil || rc.Reference == "" {
		return
	}
	var err error
	switch rc.Action {
	case model.ReactionAdded:
		err = h.store.AddReaction(ctx, rc.Reference, msg.SenderID, rc.Content)
	case model.ReactionRemoved:
		err = h.store.RemoveReaction(ctx, rc.Reference, msg.SenderID, rc.Content)
	}
	if err != nil {
		logger.Errorf("relay reaction projection msg=%s: %v", rc.Reference, err)
	}
}

// GetReactions возвращает серверную проекцию реакций сообщения.
func (h *Handler) GetReactions(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")
	reacts, err := h.store.GetReactions(r.Context(), messageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get reactions")
		return
	}
	writeJSON(w, http.StatusOK, reacts)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS апгрейдит соединение и регистрирует подписчика в хабе.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(h.hub, conn)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func queryInt64(r *http.Request, key string) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
