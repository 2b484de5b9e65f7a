package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dokzlo13/wxstatusd/internal/actions"
	"github.com/dokzlo13/wxstatusd/internal/command"
	"github.com/dokzlo13/wxstatusd/internal/device"
	"github.com/dokzlo13/wxstatusd/internal/settings"
)

// Error is the JSON body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeInternal       = "internal_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeDomainError maps package sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrUnknownDevice), errors.Is(err, actions.ErrUnknownAction):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, device.ErrBadFilter),
		errors.Is(err, device.ErrBadGroupName),
		errors.Is(err, device.ErrInvalidColor),
		errors.Is(err, command.ErrInvalidLed),
		errors.Is(err, settings.ErrInvalidBlinkFrequency):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, command.ErrQueueFull), errors.Is(err, command.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
