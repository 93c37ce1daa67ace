package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"propchat-backend/internal/chat"
	"propchat-backend/internal/database"
	"propchat-backend/internal/llm"
	"propchat-backend/pkg/api"
)

type ChatService struct {
	db       *gorm.DB
	relay    *chat.Relay
	recorder *chat.Recorder
}

func NewChatService(db *gorm.DB, client *llm.Client, tools *chat.Registry) *ChatService {
	return &ChatService{
		db:       db,
		relay:    chat.NewRelay(client, tools),
		recorder: chat.NewRecorder(db),
	}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Post("/stream", s.StreamChat)
		r.Get("/conversations/{session_id}/history", RestHandler(s.GetHistory))
		r.Post("/conversations/{session_id}/feedback", RestHandler(s.SubmitFeedback))
	})
}

// StreamChat runs one chat turn and forwards the assistant reply as
// server-sent events. Error shape depends on timing: before any event is
// written the response is a plain JSON error with a real status code; once
// streaming has started the connection is closed with the terminal sentinel
// and the failure is only logged.
func (s *ChatService) StreamChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "unable to parse request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("response writer does not support flushing")
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	userText := req.Messages[len(req.Messages)-1].Content

	// History is recorded best-effort: a database hiccup must not take the
	// chat down with it.
	conv, err := s.recorder.Ensure(r.Context(), req.SessionID, req.UserID, userText)
	if err != nil {
		slog.Error("could not ensure conversation", "session_id", req.SessionID, "error", err)
	} else if err := s.recorder.SaveUser(r.Context(), conv.ID, userText); err != nil {
		slog.Error("could not save user message", "session_id", req.SessionID, "error", err)
	}

	history := make([]llm.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	started := false
	emit := func(content string) error {
		if !started {
			startStream(w)
			started = true
		}
		payload, err := json.Marshal(api.StreamEvent{Content: content})
		if err != nil {
			return fmt.Errorf("serializing stream event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return fmt.Errorf("writing stream event: %w", err)
		}
		flusher.Flush()
		return nil
	}

	reply, err := s.relay.Run(r.Context(), history, emit)
	if err != nil && !started {
		writeUpstreamError(w, err)
		return
	}
	if err != nil {
		slog.Error("chat stream interrupted", "session_id", req.SessionID, "error", err)
	}

	if !started {
		startStream(w)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()

	// Persist whatever the client actually received, even if the request
	// context is already cancelled because the client went away.
	if conv.ID != uuid.Nil && reply != "" {
		ctx := context.WithoutCancel(r.Context())
		if err := s.recorder.SaveAssistant(ctx, conv.ID, reply); err != nil {
			slog.Error("could not save assistant message", "session_id", req.SessionID, "error", err)
		}
	}
}

func startStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: message}) //nolint:errcheck
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		writeError(w, http.StatusServiceUnavailable, "assistant is not configured")
	case errors.Is(err, llm.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "assistant is receiving too many requests, please retry shortly")
	case errors.Is(err, llm.ErrPaymentRequired):
		writeError(w, http.StatusPaymentRequired, "assistant quota exhausted")
	default:
		slog.Error("upstream chat request failed", "error", err)
		writeError(w, http.StatusBadGateway, "assistant is temporarily unavailable")
	}
}

func (s *ChatService) GetHistory(r *http.Request) (any, error) {
	sessionID, err := URLParam(r, "session_id")
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.HistoryQuery](r)
	if err != nil {
		return nil, err
	}

	var conv database.Conversation
	if err := s.db.Where("session_id = ?", sessionID).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "conversation '%s' not found", sessionID)
		}
		return nil, CodedError(http.StatusInternalServerError, fmt.Errorf("error getting conversation: %w", err))
	}

	query := s.db.Where("conversation_id = ?", conv.ID).Order("created_at ASC")
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}

	var messages []database.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, CodedError(http.StatusInternalServerError, fmt.Errorf("error getting messages: %w", err))
	}

	items := make([]api.HistoryItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, api.HistoryItem{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return api.HistoryResponse{SessionID: sessionID, Messages: items}, nil
}

func (s *ChatService) SubmitFeedback(r *http.Request) (any, error) {
	sessionID, err := URLParam(r, "session_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.FeedbackRequest](r)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"resolved": req.Resolved,
		"feedback": sql.NullString{String: req.Feedback, Valid: req.Feedback != ""},
	}
	if req.SatisfactionRating != nil {
		updates["satisfaction_rating"] = sql.NullInt32{Int32: *req.SatisfactionRating, Valid: true}
	}

	result := s.db.Model(&database.Conversation{}).Where("session_id = ?", sessionID).Updates(updates)
	if result.Error != nil {
		return nil, CodedError(http.StatusInternalServerError, fmt.Errorf("error updating conversation: %w", result.Error))
	}
	if result.RowsAffected == 0 {
		return nil, CodedErrorf(http.StatusNotFound, "conversation '%s' not found", sessionID)
	}

	return nil, nil
}
