package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"hideout/internal/db"
	"hideout/internal/game"
)

func readJSON(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeLifecycleError maps lifecycle failures onto HTTP statuses: guard
// violations are conflicts, missing games 404, the rest 500.
func writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrGameNotFound):
		writeError(w, http.StatusNotFound, "game not found")
	case errors.Is(err, game.ErrWrongStatus):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(r *http.Request, name string) (uint, bool) {
	value, err := strconv.ParseUint(r.PathValue(name), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(value), true
}
