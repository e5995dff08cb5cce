// Package api is the HTTP surface of the decision engine. Errors follow
// RFC 7807 (Problem Details for HTTP APIs).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Varshaa-Selva/Languard-ai/pkg/engine"
	"github.com/Varshaa-Selva/Languard-ai/pkg/intake"
	"github.com/Varshaa-Selva/Languard-ai/pkg/lifecycle"
	"github.com/Varshaa-Selva/Languard-ai/pkg/regulation"
	"github.com/Varshaa-Selva/Languard-ai/pkg/sensing"
)

const problemTypeBase = "https://landguard.local/errors/"

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes a problem response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:    fmt.Sprintf("%s%d", problemTypeBase, status),
		Title:   title,
		Status:  status,
		Detail:  detail,
		TraceID: w.Header().Get(headerRequestID),
	})
}

// WriteErrorR is WriteError with the request path as instance.
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:     fmt.Sprintf("%s%d", problemTypeBase, status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get(headerRequestID),
	})
}

func writeProblem(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "bearer token required"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="landguard"`)
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "principal lacks the required role"
	}
	WriteError(w, http.StatusForbidden, "Forbidden", detail)
}

func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

func WriteConflict(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusConflict, "Conflict", detail)
}

func WriteUnprocessable(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusUnprocessableEntity, "Unprocessable Entity", detail)
}

// WriteTooManyRequests sets Retry-After in seconds.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "request rate over the configured limit")
}

// WriteInternal logs err and writes a generic 500. err is never sent to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err, "request_id", w.Header().Get(headerRequestID))
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "the request could not be completed")
}

// WriteDomainError maps engine and component errors onto problem responses.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, engine.ErrScanUnavailable):
		WriteError(w, http.StatusBadGateway, "Bad Gateway", "sensing collaborator unavailable")
	case errors.Is(err, regulation.ErrUnknownZone):
		WriteUnprocessable(w, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, engine.ErrDuplicateApplication):
		WriteConflict(w, err.Error())
	case errors.Is(err, engine.ErrPaymentFailed):
		WriteError(w, http.StatusPaymentRequired, "Payment Required", err.Error())
	case errors.Is(err, intake.ErrInvalidRecord), errors.Is(err, sensing.ErrInvalidReport):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, engine.ErrNoScanSource):
		WriteError(w, http.StatusServiceUnavailable, "Service Unavailable", err.Error())
	default:
		WriteInternal(w, err)
	}
}
