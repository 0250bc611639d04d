// Package handlers adapts HTTP requests onto the marketplace services.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/middleware"
	"github.com/tasknest/backend/internal/policy"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as the error envelope. Internal errors are logged
// and their detail withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		if log == nil {
			log = slog.Default()
		}
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, apperr.HTTPStatus(err), errorResponse{Error: apperr.Message(err), Code: string(kind)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidArgument("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(apperr.KindTooLarge, "request body is too large", err)
		}
		return apperr.Wrap(apperr.KindInvalidArgument, "invalid JSON body", err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidArgument("invalid id")
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.InvalidArgument(key + " must be an integer")
	}
	return n, nil
}

func principal(r *http.Request) policy.Principal {
	return middleware.PrincipalFromCtx(r.Context())
}

// self checks that the caller is email. An empty email refers to the caller.
func self(r *http.Request, email string) (string, error) {
	p := principal(r)
	if email == "" {
		email = p.Identity
	}
	if err := policy.Authorize(p, policy.Self(email)); err != nil {
		return "", err
	}
	return email, nil
}
