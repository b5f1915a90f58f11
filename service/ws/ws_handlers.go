package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/fitlink-app/fitlink-server/cmd/models"
	"github.com/fitlink-app/fitlink-server/service/chat"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CredentialResolver turns a raw bearer token into an account id and role.
type CredentialResolver func(token string) (uint, string, error)

// ChatPusher delivers a push notification for an incoming chat message.
type ChatPusher interface {
	NotifyChatMessage(toAccountID uint, content string)
}

// Gateway terminates websocket connections and translates the chat commands
// into service calls and group broadcasts.
type Gateway struct {
	hub      *Hub
	chats    *chat.Service
	push     ChatPusher
	resolver CredentialResolver
}

func NewGateway(hub *Hub, chats *chat.Service, push ChatPusher, resolver CredentialResolver) *Gateway {
	return &Gateway{hub: hub, chats: chats, push: push, resolver: resolver}
}

func (g *Gateway) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/chats", g.HandleWebSocket)
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type sendMessagePayload struct {
	ChatID   uint   `json:"chat_id"`
	Content  string `json:"content"`
	IsSystem bool   `json:"is_system"`
}

type readMessagePayload struct {
	ChatID            uint `json:"chat_id"`
	LastReadMessageID uint `json:"last_read_message_id"`
}

type joinRoomPayload struct {
	ChatID uint `json:"chat_id"`
}

// HandleWebSocket upgrades the connection, authenticates it from the token in
// the query string or Authorization header, and joins it to the caller's
// account group. Authentication failures are reported over the socket as an
// auth.error frame before closing, so clients behind proxies that swallow
// HTTP error bodies still see a reason.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	accountID, role, err := g.resolver(token)
	if err != nil {
		payload, _ := json.Marshal(Event{
			Event: "auth.error",
			Data: map[string]interface{}{
				"code":    http.StatusUnauthorized,
				"message": "WebSocket 인증 실패",
			},
		})
		sock.SetWriteDeadline(time.Now().Add(writeWait))
		sock.WriteMessage(websocket.TextMessage, payload)
		sock.Close()
		log.Printf("ws: authentication failed: %v", err)
		return
	}

	conn := newConn(sock, accountID, role)
	g.hub.Add(conn)
	g.hub.Join(conn, AccountGroup(accountID))
	log.Printf("ws: connected account %d (%s)", accountID, role)

	go g.writePump(conn)
	g.readLoop(conn)
}

func (g *Gateway) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) readLoop(c *Conn) {
	defer g.disconnect(c)

	c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("ws: malformed frame from account %d: %v", c.AccountID, err)
			continue
		}

		switch frame.Event {
		case "join.room":
			g.handleJoinRoom(c, frame.Data)
		case "message.send":
			g.handleSendMessage(c, frame.Data)
		case "message.read":
			g.handleReadMessage(c, frame.Data)
		default:
			log.Printf("ws: unknown event %q from account %d", frame.Event, c.AccountID)
		}
	}
}

func (g *Gateway) disconnect(c *Conn) {
	g.hub.Remove(c)
	c.sock.Close()
	log.Printf("ws: disconnected account %d (%s)", c.AccountID, c.Role)

	// A trainer going offline changes nothing for their remaining devices,
	// but a fresh room list lets them reconcile unread state.
	if c.Role == models.RoleTrainer {
		g.pushTrainerRoomList(c.AccountID)
	}
}

func (g *Gateway) handleJoinRoom(c *Conn, data json.RawMessage) {
	var payload joinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.hub.EmitTo(c, "error", map[string]string{"message": "잘못된 요청입니다."})
		return
	}
	g.hub.Join(c, RoomGroup(payload.ChatID))
}

func (g *Gateway) handleSendMessage(c *Conn, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Content == "" {
		g.hub.EmitTo(c, "error", map[string]string{"message": "잘못된 요청입니다."})
		return
	}

	ctx := context.Background()
	saved, err := g.chats.SaveMessage(ctx, payload.ChatID, c.AccountID, payload.Content, payload.IsSystem)
	if err != nil {
		g.emitDomainError(c, err)
		return
	}

	dto := chat.ChatMessage{
		MessageID:  saved.ID,
		ChatID:     saved.ChatID,
		SenderID:   saved.SenderID,
		SenderRole: c.Role,
		Content:    saved.Content,
		CreatedAt:  saved.CreatedAt.In(models.Seoul).Format(time.RFC3339),
		PhotoURL:   g.chats.SenderPhotoURL(ctx, c.AccountID),
	}

	g.hub.EmitTo(c, "message.receive", dto)

	room, err := g.chats.GetChatWithParticipants(ctx, payload.ChatID)
	if err != nil {
		log.Printf("ws: load chat %d participants: %v", payload.ChatID, err)
		return
	}

	if receiverID, ok := chat.OtherParticipantAccountID(room, c.AccountID); ok {
		g.hub.Emit(AccountGroup(receiverID), "message.receive", dto)
		if g.push != nil {
			g.push.NotifyChatMessage(receiverID, saved.Content)
		}
	}

	if room.Trainer != nil && room.Trainer.Account != nil {
		g.pushTrainerRoomList(room.Trainer.Account.ID)
	}
}

func (g *Gateway) handleReadMessage(c *Conn, data json.RawMessage) {
	var payload readMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.hub.EmitTo(c, "error", map[string]string{"message": "잘못된 요청입니다."})
		return
	}

	ctx := context.Background()
	affected, err := g.chats.MarkMessagesRead(ctx, payload.ChatID, c.AccountID, payload.LastReadMessageID)
	if err != nil {
		g.emitDomainError(c, err)
		return
	}

	if affected > 0 {
		room, err := g.chats.GetChatWithParticipants(ctx, payload.ChatID)
		if err != nil {
			log.Printf("ws: load chat %d participants: %v", payload.ChatID, err)
		} else {
			if otherID, ok := chat.OtherParticipantAccountID(room, c.AccountID); ok {
				g.hub.Emit(AccountGroup(otherID), "message.readStatusUpdate", map[string]interface{}{
					"chat_id":              payload.ChatID,
					"last_read_message_id": payload.LastReadMessageID,
					"read_by":              c.AccountID,
					"reader_role":          c.Role,
				})
			}
			if room.Trainer != nil && room.Trainer.Account != nil {
				g.pushTrainerRoomList(room.Trainer.Account.ID)
			}
		}
	}

	g.hub.EmitTo(c, "message.readConfirm", map[string]interface{}{
		"success":              true,
		"chat_id":              payload.ChatID,
		"last_read_message_id": payload.LastReadMessageID,
		"affected_count":       affected,
	})
}

// pushTrainerRoomList rebuilds and broadcasts the trainer's room list to all
// of the trainer's live connections. Best effort.
func (g *Gateway) pushTrainerRoomList(trainerAccountID uint) {
	rooms, err := g.chats.GetRoomsForTrainer(context.Background(), trainerAccountID)
	if err != nil {
		log.Printf("ws: refresh room list for account %d: %v", trainerAccountID, err)
		return
	}
	g.hub.Emit(AccountGroup(trainerAccountID), "roomList.update", rooms)
}

func (g *Gateway) emitDomainError(c *Conn, err error) {
	var derr *models.DomainError
	if errors.As(err, &derr) {
		g.hub.EmitTo(c, "error", map[string]interface{}{
			"code":    derr.HTTPStatus(),
			"message": derr.Message,
		})
		return
	}
	log.Printf("ws: command from account %d failed: %v", c.AccountID, err)
	g.hub.EmitTo(c, "error", map[string]string{"message": "요청을 처리하지 못했습니다."})
}
