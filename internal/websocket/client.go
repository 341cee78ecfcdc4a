package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/riot-match-ingestor/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Inbound frames are small control requests only
	maxRequestSize = 512

	// Greeting lookups must not hold up the upgrade
	statusTimeout = 2 * time.Second

	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 4096,
	// The feed is read-only; any origin may watch it
	CheckOrigin: func(*http.Request) bool { return true },
}

// RunStatus reports the state of ingestion runs to feed clients
type RunStatus interface {
	CurrentRun() (string, bool)
	LastRun(ctx context.Context) (domain.RunStatistics, error)
}

// FeedStatus is the payload of status and pong messages
type FeedStatus struct {
	Active  bool                  `json:"active"`
	LastRun *domain.RunStatistics `json:"last_run,omitempty"`
}

// Request is a control frame sent by a feed client. Player is a Riot ID in
// Name#Tag form.
type Request struct {
	Type   string `json:"type"`
	Player string `json:"player,omitempty"`
}

// Client is one connection to the run progress feed
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With("client_id", id),
	}
}

// listen handles control requests until the connection closes
func (c *Client) listen() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxRequestSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("feed connection lost", "error", err)
			}
			return
		}

		var req Request
		if err := json.NewDecoder(r).Decode(&req); err != nil {
			c.reply(&Message{Type: MessageTypeError, Data: map[string]string{"error": "invalid request"}})
			continue
		}
		c.handle(req)
	}
}

func (c *Client) handle(req Request) {
	switch req.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		player, err := domain.ParseTrackedPlayer(req.Player)
		if err != nil {
			c.reply(&Message{Type: MessageTypeError, Data: map[string]string{"error": "player must be a Riot ID like Name#Tag"}})
			return
		}
		if req.Type == MessageTypeSubscribe {
			c.hub.Subscribe(c, player.String())
			c.reply(&Message{Type: MessageTypeSubscribed, Player: player.String()})
		} else {
			c.hub.Unsubscribe(c, player.String())
			c.reply(&Message{Type: MessageTypeUnsubscribed, Player: player.String()})
		}

	case MessageTypePing:
		c.reply(c.hub.status(context.Background(), MessageTypePong, false))

	default:
		c.logger.Debug("ignoring feed request", "type", req.Type)
	}
}

// deliver writes queued messages, one frame each, and keeps the connection
// alive with pings
func (c *Client) deliver() {
	keepalive := time.NewTicker(pingPeriod)
	defer func() {
		keepalive.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-keepalive.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// reply queues a message for this client only. It is dropped when the
// client is not keeping up.
func (c *Client) reply(msg *Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to encode feed message", "type", msg.Type, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client buffer full, dropping reply", "type", msg.Type)
	}
}

// status builds a status or pong message from the run state. withLast adds
// the statistics of the last finished run.
func (h *Hub) status(ctx context.Context, msgType string, withLast bool) *Message {
	msg := &Message{Type: msgType, Timestamp: time.Now().UTC()}
	if h.runs == nil {
		return msg
	}

	var st FeedStatus
	if runID, ok := h.runs.CurrentRun(); ok {
		msg.RunID = runID
		st.Active = true
	}
	if withLast {
		ctx, cancel := context.WithTimeout(ctx, statusTimeout)
		defer cancel()
		last, err := h.runs.LastRun(ctx)
		switch {
		case err == nil:
			st.LastRun = &last
		case !errors.Is(err, domain.ErrNoRunRecorded):
			h.logger.Warn("failed to load last run for feed", "error", err)
		}
	}
	msg.Data = st
	return msg
}

// ServeWs upgrades a request to a feed connection. The client is greeted
// with a status message before any run event.
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(hub, conn, logger)
	client.reply(hub.status(r.Context(), MessageTypeStatus, true))
	hub.Register(client)

	go client.deliver()
	go client.listen()
}
