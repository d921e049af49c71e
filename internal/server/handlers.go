// internal/server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/markb/workhub/internal/log"
	"github.com/markb/workhub/internal/realtime"
	"github.com/markb/workhub/internal/store"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, errCode, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("server: write response", "error", err.Error())
	}
}

type HistoryResponse struct {
	Channel  string          `json:"channel"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
	Messages []store.Message `json:"messages"`
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_offset", err.Error())
		return
	}

	msgs, err := s.realtime.History(r.Context(), channel, limit, offset)
	switch {
	case errors.Is(err, realtime.ErrEmptyChannelName):
		s.writeError(w, http.StatusBadRequest, realtime.ErrorCode(err), err.Error())
		return
	case err != nil:
		log.Error("server: history query failed", "channel", channel, "error", err.Error())
		s.writeError(w, http.StatusInternalServerError, "history_unavailable", "Could not read channel history")
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}

	s.writeJSON(w, http.StatusOK, HistoryResponse{
		Channel:  channel,
		Limit:    s.realtime.PageLimit(limit),
		Offset:   offset,
		Messages: msgs,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.realtime.Stats())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "lines")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_lines", err.Error())
		return
	}
	if n == 0 {
		n = 100
	}
	lines, ok := log.Recent(n)
	if !ok {
		s.writeError(w, http.StatusNotFound, "log_buffer_disabled", "In-memory log buffer is disabled")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}
