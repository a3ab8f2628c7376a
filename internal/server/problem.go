package server

import (
	"encoding/json"
	"net/http"
)

// Problem types for RFC 7807 Problem Details responses.
const (
	ProblemTypeNotFound    = "urn:tvbridge:problem:not-found"
	ProblemTypeBadRequest  = "urn:tvbridge:problem:bad-request"
	ProblemTypeInternal    = "urn:tvbridge:problem:internal-error"
	ProblemTypeRateLimited = "urn:tvbridge:problem:rate-limited"
	ProblemTypeConflict    = "urn:tvbridge:problem:conflict"
	ProblemTypeUnavailable = "urn:tvbridge:problem:device-unavailable"
	ProblemTypeCommand     = "urn:tvbridge:problem:command-failed"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// WriteProblem writes an RFC 7807 Problem Details JSON response.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func problem(w http.ResponseWriter, typ, title string, status int, detail, instance string) {
	WriteProblem(w, Problem{Type: typ, Title: title, Status: status, Detail: detail, Instance: instance})
}

// NotFound writes a 404 problem response.
func NotFound(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeNotFound, "Not Found", http.StatusNotFound, detail, instance)
}

// BadRequest writes a 400 problem response.
func BadRequest(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeBadRequest, "Bad Request", http.StatusBadRequest, detail, instance)
}

// InternalError writes a 500 problem response.
func InternalError(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeInternal, "Internal Server Error", http.StatusInternalServerError, detail, instance)
}

// RateLimited writes a 429 problem response.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeRateLimited, "Too Many Requests", http.StatusTooManyRequests, detail, instance)
}

// Conflict writes a 409 problem response.
func Conflict(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeConflict, "Conflict", http.StatusConflict, detail, instance)
}

// Unavailable writes a 503 problem response for an unreachable device.
func Unavailable(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeUnavailable, "Device Unavailable", http.StatusServiceUnavailable, detail, instance)
}

// CommandFailed writes a 502 problem response for a command the device
// did not carry out.
func CommandFailed(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeCommand, "Command Failed", http.StatusBadGateway, detail, instance)
}
