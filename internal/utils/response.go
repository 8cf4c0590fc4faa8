package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-reservations/internal/errs"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Detail    interface{} `json:"detail,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// WriteJSON writes a success envelope.
func WriteJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse(message, data))
}

// WriteError maps the error's kind to a status code and writes the
// error envelope. Unclassified errors come out as a bare 500 so
// internals never leak.
func WriteError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	resp := APIResponse{
		Success:   false,
		Message:   http.StatusText(status),
		Timestamp: time.Now(),
	}
	var e *errs.Error
	if errors.As(err, &e) {
		resp.Error = e.Message
		if e.Detail != nil {
			resp.Detail = e.Detail
		}
	} else {
		resp.Error = "internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
