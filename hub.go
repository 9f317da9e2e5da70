package main

import (
	"context"
	"log"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeWait = 5 * time.Second

// WSMessage represents a message from the client
type WSMessage struct {
	Action string `json:"action"`
	Role   string `json:"role,omitempty"`
	Delta  int    `json:"delta,omitempty"`
	Field  string `json:"field,omitempty"`
	Target string `json:"target,omitempty"`
	Second string `json:"second,omitempty"`
	Guess  string `json:"guess,omitempty"`
	Skip   bool   `json:"skip,omitempty"`
	Answer int    `json:"answer,omitempty"`
}

// Client represents a websocket connection with player info
type Client struct {
	conn     *websocket.Conn
	playerID string
	name     string
	groupID  string
	limiter  *rate.Limiter
	writeMu  sync.Mutex // gorilla/websocket allows one concurrent writer
}

func (c *Client) write(message []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// Hub tracks connections and fans messages out to groups and players.
type Hub struct {
	clients    map[*websocket.Conn]*Client
	register   chan *Client
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	// onJoin runs for every registered client; onLeave runs when a player's
	// last connection to a group closes.
	onJoin  func(*Client)
	onLeave func(*Client)
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn, 64),
	}
}

func (h *Hub) sendToPlayer(playerID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.playerID != playerID {
			continue
		}
		LogWSMessage("OUT", client.name, string(message))
		if err := client.write(message); err != nil {
			log.Printf("WebSocket write error to player %s: %v", playerID, err)
		}
	}
}

// sendToGroup writes message to every connection in the group. A failed
// connection is closed; its read loop then unregisters it.
func (h *Hub) sendToGroup(groupID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	LogWSMessage("OUT", "group "+groupID, string(message))
	for conn, client := range h.clients {
		if client.groupID != groupID {
			continue
		}
		if err := client.write(message); err != nil {
			log.Printf("WebSocket write error to player %s: %v", client.playerID, err)
			conn.Close()
		}
	}
}

// connectedPlayers lists the distinct players connected to a group, sorted
// by name.
func (h *Hub) connectedPlayers(groupID string) []playerView {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]bool)
	var players []playerView
	for _, c := range h.clients {
		if c.groupID == groupID && !seen[c.playerID] {
			seen[c.playerID] = true
			players = append(players, playerView{ID: c.playerID, Name: c.name})
		}
	}
	slices.SortFunc(players, func(a, b playerView) int { return strings.Compare(a.Name, b.Name) })
	return players
}

func (h *Hub) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected (player %s: %s, group %s). Total: %d", client.playerID, client.name, client.groupID, total)
			if h.onJoin != nil {
				h.onJoin(client)
			}

		case conn := <-h.unregister:
			var left *Client
			h.mu.Lock()
			client, ok := h.clients[conn]
			if ok {
				delete(h.clients, conn)
				conn.Close()
				left = client
				for _, c := range h.clients {
					if c.playerID == client.playerID && c.groupID == client.groupID {
						left = nil
						break
					}
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected. Total: %d", total)
			// onLeave may broadcast, which needs the lock released.
			if left != nil && h.onLeave != nil {
				DebugLog("hub.unregister", "Player '%s' has no more connections to %s", left.name, left.groupID)
				h.onLeave(left)
			}
		}
	}
}

func (app *App) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	player, err := app.playerFromRequest(r)
	if err != nil {
		DebugLog("handleWebSocket", "Rejected WebSocket connection - not logged in")
		http.Error(w, "Not logged in", http.StatusUnauthorized)
		return
	}

	groupID := r.URL.Query().Get("group")
	if groupID == "" {
		groupID = "main"
	}

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error for player %s (%s): %v", player.ID, player.Name, err)
		return
	}

	client := &Client{
		conn:     conn,
		playerID: player.ID,
		name:     player.Name,
		groupID:  groupID,
		limiter:  rate.NewLimiter(rate.Limit(app.cfg.SubmitRate), app.cfg.SubmitBurst),
	}
	select {
	case app.hub.register <- client:
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go func() {
		defer func() {
			app.hub.unregister <- conn
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if !client.limiter.Allow() {
				app.hub.sendToast(client.playerID, "warning", "Slow down")
				continue
			}
			app.handleWSMessage(client, message)
		}
	}()
}
