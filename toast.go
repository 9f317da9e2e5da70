package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
)

// Toast is a short notification shown to one player.
type Toast struct {
	Type    string `json:"type"` // always "toast"
	ID      string `json:"id"`
	Level   string `json:"level"` // "error", "warning", "success", "info"
	Message string `json:"message"`
}

var toastCounter atomic.Int64

func renderToast(level, message string) []byte {
	toast := Toast{
		Type:    "toast",
		ID:      strconv.FormatInt(toastCounter.Add(1), 10),
		Level:   level,
		Message: message,
	}
	data, err := json.Marshal(toast)
	if err != nil {
		log.Printf("Failed to render toast: %v", err)
		return nil
	}
	return data
}

// sendErrorToast sends an error toast to a specific player via WebSocket
func (h *Hub) sendErrorToast(playerID, message string) {
	if data := renderToast("error", message); data != nil {
		h.sendToPlayer(playerID, data)
	}
}

func (h *Hub) sendToast(playerID, level, message string) {
	if data := renderToast(level, message); data != nil {
		h.sendToPlayer(playerID, data)
	}
}

// writeToast answers an HTTP request with a toast body.
func writeToast(w http.ResponseWriter, status int, level, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(renderToast(level, message))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logError("writeJSON", err)
	}
}

func (h *Hub) sendGroupToast(groupID, level, message string) {
	if data := renderToast(level, message); data != nil {
		h.sendToGroup(groupID, data)
	}
}
