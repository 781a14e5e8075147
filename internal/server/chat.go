package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/solenne/hearth/internal/tracing"
	"github.com/solenne/hearth/pkg/prompt"
	"github.com/solenne/hearth/pkg/quotes"
	"github.com/solenne/hearth/pkg/relay"
	"github.com/solenne/hearth/pkg/upstream"
)

// maxBodyBytes bounds POST /chat payloads.
const maxBodyBytes = 1 << 20

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	SessionID    string         `json:"sessionId"`
	Messages     []wireMessage  `json:"messages"`
	Quotes       []quotes.Quote `json:"quotes"`
	Persona      string         `json:"persona"`
	ChildName    string         `json:"childName"`
	CustomPrompt string         `json:"customPrompt"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID, _ := gonanoid.New()
	ctx := tracing.WithRequestID(r.Context(), requestID)
	logger := tracing.LoggerFromContext(ctx, s.logger)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read request body")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}

	if err := validateChatPayload(body); err != nil {
		logger.Debug().Err(err).Msg("Rejected malformed chat payload")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var payload chatPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	messages := make([]upstream.Message, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		messages = append(messages, upstream.Message{Role: m.Role, Content: m.Content})
	}

	persona := prompt.Persona(payload.Persona)
	if persona == "" {
		persona = prompt.DefaultPersona
	}

	reply, err := s.relay.Handle(ctx, relay.Request{
		SessionID:    payload.SessionID,
		Messages:     messages,
		Quotes:       payload.Quotes,
		Persona:      persona,
		ChildName:    payload.ChildName,
		CustomPrompt: payload.CustomPrompt,
		ClientAddr:   clientIP(r),
	})

	duration := time.Since(start).Milliseconds()

	switch {
	case err == nil:
		logger.Info().
			Str("session_id", payload.SessionID).
			Int64("duration", duration).
			Msg("Chat request completed")
		writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
	case errors.Is(err, relay.ErrRateLimited):
		logger.Warn().
			Str("session_id", payload.SessionID).
			Msg("Chat request rate limited")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many messages, please slow down"})
	case errors.Is(err, relay.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		logger.Error().
			Err(err).
			Str("session_id", payload.SessionID).
			Int64("duration", duration).
			Msg("Chat request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to generate response"})
	}
}

type historyResponse struct {
	SessionID string               `json:"sessionId"`
	Messages  []chatHistoryMessage `json:"messages"`
}

type chatHistoryMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session id is required"})
		return
	}

	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "chat history is not enabled"})
		return
	}

	stored, err := s.history.History(r.Context(), sessionID, s.cfg.HistoryLimit)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to read chat history")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read chat history"})
		return
	}
	if len(stored) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no history for session"})
		return
	}

	messages := make([]chatHistoryMessage, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, chatHistoryMessage{
			Role:      m.Role,
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Messages: messages})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
