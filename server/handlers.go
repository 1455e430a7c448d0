package server

import (
	"encoding/json"
	"net/http"
)

// Endpoint messages.
const (
	PublicMessage        = "Hello from a public endpoint! You don't need to be authenticated to see this."
	PrivateMessage       = "Hello from a private endpoint! You need to be authenticated to see this."
	PrivateScopedMessage = "Hello from a private endpoint! You need to be authenticated and have a scope of read:messages to see this."
)

// Message is the JSON body of every endpoint.
type Message struct {
	Message string `json:"message"`
}

// MessageHandler responds 200 with msg.
func MessageHandler(msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Message{Message: msg})
	}
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, Message{Message: "Not found"})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, Message{Message: "Method not allowed"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
