package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/hikaru/kioku/internal/tracing"
	"github.com/hikaru/kioku/pkg/memory"
)

type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	owner := tracing.GetOwnerID(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.chatService.Respond(r.Context(), owner, req.ConversationID, req.Message)
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Msg("Chat request failed")
		writeError(w, http.StatusInternalServerError, "failed to generate reply")
		return
	}

	for _, record := range reply.Memories {
		s.broadcaster.Publish(owner, "memory.created", record)
	}

	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	owner := tracing.GetOwnerID(r.Context())

	conversations, err := s.chatStore.ListConversations(r.Context(), owner)
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Msg("Failed to list conversations")
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	owner := tracing.GetOwnerID(r.Context())
	conversationID := r.PathValue("id")

	conv, err := s.chatStore.GetConversation(r.Context(), owner, conversationID)
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Msg("Failed to load conversation")
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	messages, err := s.chatStore.ListMessages(r.Context(), owner, conversationID)
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Msg("Failed to list messages")
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	owner := tracing.GetOwnerID(r.Context())

	removed, err := s.chatStore.DeleteConversation(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Msg("Failed to delete conversation")
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	owner := tracing.GetOwnerID(r.Context())

	var tier *memory.Tier
	switch typeParam := r.URL.Query().Get("type"); typeParam {
	case "", "all":
	default:
		parsed, err := memory.ParseTier(typeParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tier = &parsed
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit <= 0 || offset < 0 {
		writeError(w, http.StatusBadRequest, "limit must be positive and offset non-negative")
		return
	}

	records, total, err := s.engine.List(r.Context(), owner, tier, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Msg("Failed to list memories")
		writeError(w, http.StatusInternalServerError, "failed to list memories")
		return
	}

	if records == nil {
		records = []*memory.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memories": records,
		"total":    total,
	})
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	owner := tracing.GetOwnerID(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := s.engine.Search(r.Context(), owner, req.Query, req.Limit)
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Msg("Memory search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	owner := tracing.GetOwnerID(r.Context())
	id := r.PathValue("id")

	removed, err := s.engine.Delete(r.Context(), owner, id)
	if err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Msg("Failed to delete memory")
		writeError(w, http.StatusInternalServerError, "failed to delete memory")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}

	s.broadcaster.Publish(owner, "memory.deleted", map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordAccess(w http.ResponseWriter, r *http.Request) {
	owner := tracing.GetOwnerID(r.Context())
	id := r.PathValue("id")

	// record_access itself is owner-less, so authorize the id here.
	record, err := s.engine.Get(r.Context(), owner, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record access")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}

	if err := s.engine.RecordAccess(r.Context(), id); err != nil {
		s.logger.Error().Err(err).Str("owner", owner).Msg("Failed to record access")
		writeError(w, http.StatusInternalServerError, "failed to record access")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkToken(bearerToken(r)) {
		writeError(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	owner := strings.TrimSpace(r.Header.Get(ownerHeader))
	if owner == "" {
		owner = strings.TrimSpace(r.URL.Query().Get("owner"))
	}
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing owner")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	id, err := s.broadcaster.Register(owner, conn)
	if err != nil {
		conn.Close()
		return
	}

	// Reader loop only detects disconnects; clients do not send commands.
	go func() {
		defer s.broadcaster.Unregister(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
