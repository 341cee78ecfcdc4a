package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/riot-match-ingestor/internal/domain"
)

// Message types
const (
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeStatus       = "status"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypeError        = "error"
)

// Message represents a WebSocket message. Run events use the event type as
// Type; Player is set on match_ingested.
type Message struct {
	Type      string      `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	Player    string      `json:"player,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts run progress.
// Clients receive every run_started and run_completed event, and
// match_ingested events for the players they subscribed to, or all of them
// when they have no subscription.
type Hub struct {
	// Subscribed clients by player Riot ID
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Number of player subscriptions per client
	subscriptions map[*Client]int

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	mu sync.RWMutex

	runs   RunStatus
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	player string
}

// NewHub creates a new Hub. runs may be nil, in which case status and pong
// messages carry no run state.
func NewHub(runs RunStatus, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:       make(map[string]map[*Client]bool),
		allClients:    make(map[*Client]bool),
		subscriptions: make(map[*Client]int),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan *Message, 256),
		subscribe:     make(chan *subscriptionRequest, 64),
		unsubscribe:   make(chan *subscriptionRequest, 64),
		runs:          runs,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				delete(h.subscriptions, client)
				for player, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, player)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.player]; !ok {
				h.clients[req.player] = make(map[*Client]bool)
			}
			if !h.clients[req.player][req.client] {
				h.clients[req.player][req.client] = true
				h.subscriptions[req.client]++
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "player", req.player)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.player]; ok && clients[req.client] {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.player)
				}
				if h.subscriptions[req.client]--; h.subscriptions[req.client] <= 0 {
					delete(h.subscriptions, req.client)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "player", req.player)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// recipients returns the clients a message is delivered to. Callers hold mu.
func (h *Hub) recipients(message *Message) []*Client {
	var out []*Client
	for client := range h.allClients {
		if message.Player == "" || h.subscriptions[client] == 0 || h.clients[message.Player][client] {
			out = append(out, client)
		}
	}
	return out
}

// broadcastMessage sends a message to every interested client
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for _, client := range h.recipients(message) {
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// Publish queues a run event for broadcast. It never blocks the run; when
// the queue is full the event is dropped.
func (h *Hub) Publish(ctx context.Context, event domain.RunEvent) error {
	message := &Message{
		Type:      string(event.Type),
		RunID:     event.RunID,
		Timestamp: event.Timestamp,
	}
	switch {
	case event.Match != nil:
		message.Player = event.Match.Player
		message.Data = event.Match
	case event.Stats != nil:
		message.Data = event.Stats
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", event.Type)
	}
	return nil
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe limits a client's match events to the given players
func (h *Hub) Subscribe(client *Client, player string) {
	h.subscribe <- &subscriptionRequest{client: client, player: player}
}

// Unsubscribe removes a player subscription
func (h *Hub) Unsubscribe(client *Client, player string) {
	h.unsubscribe <- &subscriptionRequest{client: client, player: player}
}

// GetSubscriberCount returns the number of subscribers for a player
func (h *Hub) GetSubscriberCount(player string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[player])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
