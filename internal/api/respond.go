package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/soaringjerry/tasktrail/internal/services"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	se, ok := services.AsServiceError(err)
	if !ok {
		log.Printf("api: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	switch se.Code {
	case services.ErrorInvalid:
		writeError(w, http.StatusBadRequest, se.Message)
	case services.ErrorUnauthorized:
		writeError(w, http.StatusUnauthorized, se.Message)
	case services.ErrorForbidden:
		writeError(w, http.StatusForbidden, se.Message)
	case services.ErrorNotFound:
		writeError(w, http.StatusNotFound, se.Message)
	case services.ErrorConflict:
		writeError(w, http.StatusConflict, se.Message)
	case services.ErrorBadGateway:
		log.Printf("api: upstream failure: %s: %s", se.Message, se.Details)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": se.Message, "details": se.Details})
	default:
		writeError(w, http.StatusInternalServerError, se.Message)
	}
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
