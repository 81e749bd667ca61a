package chatws

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/services"
)

type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

type sender interface {
	DeliverMessage(
		ctx context.Context,
		actorID int64,
		conversationID int64,
		content string,
	) (*services.ChatDelivery, error)
}

// Message is the wire format for both chat traffic and offer lifecycle
// events ("message", "offer_status", "error").
type Message struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	RecipientID    string `json:"recipient_id,omitempty"`
	Content        string `json:"content,omitempty"`
	OfferID        string `json:"offer_id,omitempty"`
	OfferStatus    string `json:"offer_status,omitempty"`
	Timestamp      string `json:"timestamp"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				close(client.send)
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// NotifyOfferStatus pushes an offer lifecycle event to every listed party.
// Fire-and-forget: a full broadcast queue drops the event rather than stall
// the settlement path.
func (h *Hub) NotifyOfferStatus(offerID int64, status string, participantIDs ...int64) {
	if len(participantIDs) == 0 {
		return
	}

	message := &Message{
		Type:        "offer_status",
		OfferID:     strconv.FormatInt(offerID, 10),
		OfferStatus: status,
		Timestamp:   formatTimestamp(time.Now().UTC()),
	}
	message.SenderID = strconv.FormatInt(participantIDs[0], 10)
	if len(participantIDs) > 1 {
		message.RecipientID = strconv.FormatInt(participantIDs[1], 10)
	}

	select {
	case h.broadcast <- message:
	default:
		log.Printf("chat hub queue full, dropping offer %d status event", offerID)
	}
}

func (h *Hub) deliver(message *Message) {
	encoded, err := json.Marshal(message)
	if err != nil {
		log.Printf("chat hub encode message: %v", err)
		return
	}

	h.sendToUser(message.SenderID, encoded)
	if message.RecipientID != "" && message.RecipientID != message.SenderID {
		h.sendToUser(message.RecipientID, encoded)
	}
}

func (h *Hub) sendToUser(userID string, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- payload:
		default:
			delete(set, client)
			close(client.send)
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

func (c *Client) ReadPump(service sender) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	actorID, err := strconv.ParseInt(c.userID, 10, 64)
	if err != nil {
		writeError(c, "invalid user")
		return
	}

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type           string `json:"type"`
			ConversationID string `json:"conversation_id"`
			Content        string `json:"content"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil {
			writeError(c, "invalid message payload")
			continue
		}
		if incoming.Type != "message" {
			writeError(c, "unsupported message type")
			continue
		}

		conversationID, err := strconv.ParseInt(incoming.ConversationID, 10, 64)
		if err != nil || conversationID <= 0 {
			writeError(c, "invalid conversation id")
			continue
		}

		delivery, err := service.DeliverMessage(
			context.Background(),
			actorID,
			conversationID,
			incoming.Content,
		)
		if err != nil {
			writeError(c, "failed to send message")
			continue
		}

		c.hub.broadcast <- &Message{
			Type:           "message",
			ConversationID: strconv.FormatInt(delivery.Message.ConversationID, 10),
			SenderID:       c.userID,
			RecipientID:    strconv.FormatInt(delivery.RecipientID, 10),
			Content:        delivery.Message.Content,
			Timestamp:      formatTimestamp(delivery.Message.CreatedAt),
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func writeError(client *Client, message string) {
	payload, err := json.Marshal(Message{
		Type:      "error",
		Content:   message,
		Timestamp: formatTimestamp(time.Now().UTC()),
	})
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
		client.hub.Unregister(client)
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
