package response

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"cardbored-api/pkg/apierror"
)

// JSON sends data as a JSON response with the given status code.
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[Response] Failed to encode response: %v", err)
	}
}

// Raw sends pre-encoded JSON.
func Raw(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(body)
}

// Error sends an error response. Errors that are not *apierror.Error become a
// generic 500 without internal details.
func Error(w http.ResponseWriter, err error) {
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		log.Printf("[Response] Internal error: %v", err)
		apiErr = apierror.InternalError("")
	}
	Raw(w, apiErr.StatusCode, apiErr.ToJSON())
}

// OK sends a 200 OK response.
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}
