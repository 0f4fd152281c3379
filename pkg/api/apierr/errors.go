// Package apierr provides a standardised error response format for the
// npsrisk HTTP API.
//
// Every error response returned by the API uses the same JSON envelope:
//
//	{
//	  "ok":       false,
//	  "error":    "human-readable description",
//	  "code":     "MACHINE_READABLE_CODE",
//	  "status":   400
//	}
//
// Clients branch on "code" and show "error" to humans. Error bodies are
// always JSON, whatever encoding the request negotiated.
package apierr

import (
	"encoding/json"
	"net/http"
)

// ---------------------------------------------------------------------------
// Error codes: stable, machine-readable identifiers.
//
// These codes form part of the public API contract. Removing or renaming a
// code is a breaking change; adding new codes is always safe.
// ---------------------------------------------------------------------------

const (
	// General
	CodeBadRequest           = "BAD_REQUEST"
	CodeInvalidJSON          = "INVALID_JSON"
	CodeInvalidContent       = "INVALID_CONTENT"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	CodeNotFound             = "NOT_FOUND"
	CodeInternalError        = "INTERNAL_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeCancelled            = "REQUEST_CANCELLED"

	// Batch domain
	CodeRowsRequired   = "ROWS_REQUIRED"
	CodeBatchTooLarge  = "BATCH_TOO_LARGE"
	CodeInvalidCSV     = "INVALID_CSV"
	CodeColumnNotFound = "COLUMN_NOT_FOUND"
	CodeColumnExists   = "COLUMN_EXISTS"
)

// ---------------------------------------------------------------------------
// Response type
// ---------------------------------------------------------------------------

// Response is the standard error envelope returned to API clients.
type Response struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Code   string `json:"code"`
	Status int    `json:"status"`
}

// ---------------------------------------------------------------------------
// Writer helpers
// ---------------------------------------------------------------------------

// Write serialises an error Response and writes it to w with the appropriate
// HTTP status code. Content-Type is always set to application/json.
func Write(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		OK:     false,
		Error:  message,
		Code:   code,
		Status: status,
	})
}

// ---------------------------------------------------------------------------
// Convenience shortcuts for the most common error patterns.
// ---------------------------------------------------------------------------

// BadRequest writes a 400 response with the given code and message.
func BadRequest(w http.ResponseWriter, code, msg string) {
	Write(w, http.StatusBadRequest, code, msg)
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, code, msg string) {
	Write(w, http.StatusNotFound, code, msg)
}

// MethodNotAllowed writes a 405 response.
func MethodNotAllowed(w http.ResponseWriter) {
	Write(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}

// Unauthorized writes a 401 response.
func Unauthorized(w http.ResponseWriter, msg string) {
	Write(w, http.StatusUnauthorized, CodeUnauthorized, msg)
}

// TooManyRequests writes a 429 response.
func TooManyRequests(w http.ResponseWriter, msg string) {
	if msg == "" {
		msg = "too many requests"
	}
	Write(w, http.StatusTooManyRequests, CodeRateLimited, msg)
}

// Internal writes a 500 response.
func Internal(w http.ResponseWriter, msg string) {
	Write(w, http.StatusInternalServerError, CodeInternalError, msg)
}

// InvalidJSON writes a 400 response for malformed request bodies.
func InvalidJSON(w http.ResponseWriter) {
	BadRequest(w, CodeInvalidJSON, "invalid request body")
}

// PayloadTooLarge writes a 413 response when body/content exceeds configured bounds.
func PayloadTooLarge(w http.ResponseWriter, msg string) {
	if msg == "" {
		msg = "payload too large"
	}
	Write(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, msg)
}

// UnsupportedMediaType writes a 415 response.
func UnsupportedMediaType(w http.ResponseWriter, mediaType string) {
	Write(w, http.StatusUnsupportedMediaType, CodeUnsupportedMediaType, "unsupported content type: "+mediaType)
}

// Unprocessable writes a 422 response for well-formed datasets the batch
// runner cannot use.
func Unprocessable(w http.ResponseWriter, code, msg string) {
	Write(w, http.StatusUnprocessableEntity, code, msg)
}

// RowsRequired writes a 400 response when a batch has no rows.
func RowsRequired(w http.ResponseWriter) {
	BadRequest(w, CodeRowsRequired, "rows must not be empty")
}
