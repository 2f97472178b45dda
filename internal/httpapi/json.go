package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/haasonsaas/devicelink/internal/linking"
	"github.com/haasonsaas/devicelink/internal/relay"
)

// Error tags outside the handshake.
const (
	tagBadRequest    = "BadRequest"
	tagEmptyMessage  = "EmptyMessage"
	tagInternal      = "Internal"
	tagNotFound      = "NotFound"
	tagAlreadyLinked = "AlreadyLinked"
)

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if err := enc.Encode(payload); err != nil {
		return
	}
}

func writeError(w http.ResponseWriter, status int, tag string) {
	writeJSON(w, status, errorResponse{OK: false, Error: tag})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return err
	}
	return nil
}

// statusFor maps domain errors to an HTTP status and error tag.
func statusFor(err error) (int, string) {
	switch tag := linking.Tag(err); tag {
	case linking.TagInvalidCode, linking.TagMissingGuildID:
		return http.StatusBadRequest, tag
	case linking.TagUnknownCode:
		return http.StatusNotFound, tag
	case linking.TagExpiredCode:
		return http.StatusGone, tag
	case linking.TagNotLinkedYet:
		return http.StatusConflict, tag
	}
	switch {
	case errors.Is(err, relay.ErrEmptyMessage):
		return http.StatusBadRequest, tagEmptyMessage
	case errors.Is(err, relay.ErrMissingGuildID):
		return http.StatusBadRequest, linking.TagMissingGuildID
	}
	return http.StatusInternalServerError, tagInternal
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, tag := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, tag)
}
