package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/haasonsaas/devicelink/internal/relay"
)

type listMessagesResponse struct {
	OK      bool            `json:"ok"`
	GuildID string          `json:"guildId"`
	Items   []relay.Message `json:"items"`
}

type sendMessageRequest struct {
	DriverName string `json:"driverName"`
	Text       string `json:"text"`
	Source     string `json:"source"`
}

type sendMessageResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, tagBadRequest)
			return
		}
		limit = n
	}

	guildID := s.resolveGuild(r)
	items, err := s.messages.List(r.Context(), guildID, query.Get("driverName"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listMessagesResponse{
		OK:      true,
		GuildID: guildID,
		Items:   items,
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, tagBadRequest)
		return
	}
	id, err := s.messages.Append(r.Context(), s.resolveGuild(r), req.Text, req.Source, req.DriverName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sendMessageResponse{OK: true, ID: id})
}
