package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"orcamento/internal/core"
	applog "orcamento/internal/log"
	"orcamento/internal/services"
)

// HeaderUserID carries the authenticated user, set by the upstream gateway.
const HeaderUserID = "X-User-ID"

var errMissingUser = errors.New("missing or invalid " + HeaderUserID)

type errorResponse struct {
	Error string `json:"error"`
}

type saveResponse struct {
	Saved   bool                     `json:"saved"`
	Partial bool                     `json:"partial"`
	Result  services.ReconcileResult `json:"resultado"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.PingContext(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	view, err := s.loader.LoadView(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("load config: %w", err))
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tree, err := decodeTree(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.saver.Reconcile(r.Context(), userID, tree)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("save config: %w", err))
		return
	}
	writeJSON(w, r, http.StatusOK, saveResponse{
		Saved:   true,
		Partial: tree.Partial,
		Result:  result,
	})
}

// userFromRequest trusts the gateway header; it only checks the shape.
func userFromRequest(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errMissingUser
	}
	return id, nil
}

// decodeError marks a payload the client has to fix.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "invalid configuration payload: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func decodeTree(body io.Reader) (core.Tree, error) {
	var tree core.Tree
	dec := json.NewDecoder(body)
	if err := dec.Decode(&tree); err != nil {
		return core.Tree{}, &decodeError{err: err}
	}
	if dec.More() {
		return core.Tree{}, &decodeError{err: errors.New("unexpected data after the configuration object")}
	}
	return tree, nil
}

// writeError maps err to a status. Server-side failures are logged and
// answered with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status   int
		message  string
		tooLarge *http.MaxBytesError
		decode   *decodeError
	)
	switch {
	case errors.Is(err, errMissingUser), errors.Is(err, services.ErrInvalidUser):
		status, message = http.StatusUnauthorized, errMissingUser.Error()
	case errors.As(err, &tooLarge):
		status, message = http.StatusRequestEntityTooLarge, fmt.Sprintf("payload exceeds %d bytes", tooLarge.Limit)
	case errors.As(err, &decode):
		status, message = http.StatusBadRequest, decode.Error()
	default:
		status, message = http.StatusInternalServerError, "internal error"
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.NewFields().
				WithHTTPRequest(r.Method, r.URL.Path).
				WithError(err).
				ToSlice()...)
	}
	writeJSON(w, r, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to write response", applog.FieldError, err)
	}
}
