package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/camden-git/mediagallery/services"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message,omitempty"`
	Data    any              `json:"data,omitempty"`
	Errors  []APIErrorDetail `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Error encoding JSON response: %v", err)
		}
	}
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, APIResponse{Success: true, Message: message, Data: data})
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	writeJSON(w, httpStatus, APIResponse{
		Success: false,
		Message: detail,
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	})
}

// writeServiceError maps service sentinels onto status codes. Anything else
// is logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		WriteAPIError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, services.ErrForbidden):
		WriteAPIError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, services.ErrNotFound):
		WriteAPIError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, services.ErrConflict):
		WriteAPIError(w, http.StatusConflict, "conflict", err.Error())
	default:
		log.Printf("handlers: %s %s failed: %v", r.Method, r.URL.Path, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
