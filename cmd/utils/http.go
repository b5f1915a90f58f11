package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fitlink-app/fitlink-server/cmd/models"
)

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error to its HTTP status; anything unrecognized is
// a 500 so storage errors never leak their message to the client.
func WriteError(w http.ResponseWriter, err error) {
	var derr *models.DomainError
	if errors.As(err, &derr) {
		http.Error(w, derr.Message, derr.HTTPStatus())
		return
	}
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
