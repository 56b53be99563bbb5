package server

import (
	"net/http"
)

// internalErrorBody is the only thing a client learns about a failed
// dispatch.
var internalErrorBody = []byte(`{"errors":[{"message":"internal server error"}]}`)

type errorBody struct {
	Errors []errorMessage `json:"errors"`
}

type errorMessage struct {
	Message string `json:"message"`
}

func marshal(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func writeError(w http.ResponseWriter, status int, msg string, pretty bool) {
	body, err := marshal(errorBody{Errors: []errorMessage{{Message: msg}}}, pretty)
	if err != nil {
		status, body = http.StatusInternalServerError, internalErrorBody
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
