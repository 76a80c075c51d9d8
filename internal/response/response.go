package response

import (
	"encoding/json"
	"net/http"
)

// Envelope is the JSON body of every successful API response.
type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is the JSON body of every failed API response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a successful API response with the given data.
func JSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Envelope{Data: data})
}

// Err writes a JSON error response with the given message and HTTP status code.
func Err(w http.ResponseWriter, msg string, code int) {
	ErrCode(w, msg, "", code)
}

// ErrCode writes a JSON error response carrying a machine-readable code.
func ErrCode(w http.ResponseWriter, msg, errCode string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorBody{Error: msg, Code: errCode})
}
