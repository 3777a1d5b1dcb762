package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/sidekickd/sidekick/internal/chat"
	"github.com/sidekickd/sidekick/internal/llm"
	"github.com/sidekickd/sidekick/internal/session"
	"github.com/sidekickd/sidekick/internal/speech"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Message is the WebSocket frame in both directions.
type Message struct {
	Type    string         `json:"type"`
	EventID string         `json:"eventId,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// connectionManager tracks live WebSocket clients per session so
// speech and stream events can fan out to every attached view.
type connectionManager struct {
	mu      sync.RWMutex
	clients map[string][]*wsClient
}

func newConnectionManager() *connectionManager {
	return &connectionManager{clients: make(map[string][]*wsClient)}
}

func (cm *connectionManager) add(sessionID string, c *wsClient) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[sessionID] = append(cm.clients[sessionID], c)
}

func (cm *connectionManager) remove(sessionID string, c *wsClient) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	clients := cm.clients[sessionID]
	for i, existing := range clients {
		if existing == c {
			cm.clients[sessionID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(cm.clients[sessionID]) == 0 {
		delete(cm.clients, sessionID)
	}
}

// broadcast sends to every client of a session, dropping clients whose
// send buffer is full.
func (cm *connectionManager) broadcast(sessionID string, msg Message) {
	cm.mu.RLock()
	clients := make([]*wsClient, len(cm.clients[sessionID]))
	copy(clients, cm.clients[sessionID])
	cm.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			cm.remove(sessionID, c)
		}
	}
}

// wsClient is one WebSocket connection bound to a session.
type wsClient struct {
	conn    *websocket.Conn
	session *session.Session
	send    chan Message
	server  *Server
}

// handleSessionWebSocket upgrades the connection and starts the pumps.
func (s *Server) handleSessionWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn:    conn,
		session: sess,
		send:    make(chan Message, 256),
		server:  s,
	}
	s.connections.add(sess.ID, client)
	s.logger.Debug("websocket client connected", "session", sess.ID)

	go client.writePump()
	go client.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.server.connections.remove(c.session.ID, c)
		c.conn.Close()
		c.server.logger.Debug("websocket client disconnected", "session", c.session.ID)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handleMessage(msg Message) {
	switch msg.Type {
	case "submit":
		c.handleSubmit(msg)
	case "stop":
		c.session.Stop()
	case "ping":
		c.sendMessage(Message{Type: "pong", EventID: msg.EventID})
	default:
		c.sendError("unknown message type", msg.EventID)
	}
}

// handleSubmit runs the two-state send control. While streaming it
// stops the stream; otherwise it starts one and fans the lifecycle out
// to every client of the session.
func (c *wsClient) handleSubmit(msg Message) {
	text, _ := msg.Data["text"].(string)
	images := parseImages(msg.Data["images"])

	sessionID := c.session.ID
	broadcast := func(m Message) {
		m.EventID = msg.EventID
		c.server.connections.broadcast(sessionID, m)
	}

	started, err := c.session.Submit(context.Background(), text, images, chat.Callbacks{
		OnToken: func(delta string) {
			broadcast(Message{Type: "token", Data: map[string]any{"text": delta}})
		},
		OnDone: func(finalText string) {
			broadcast(Message{Type: "done", Data: map[string]any{"text": finalText}})
		},
		OnError: func(err error) {
			broadcast(Message{Type: "stream_error", Data: streamErrorData(err)})
		},
	})
	if err != nil {
		c.sendError(err.Error(), msg.EventID)
		return
	}
	if !started {
		broadcast(Message{Type: "stopped"})
	}
}

// streamErrorData shapes a stream failure for the client. Provider
// rejections carry the HTTP status so the extension can tell a bad key
// or rate limit apart from a dropped connection.
func streamErrorData(err error) map[string]any {
	data := map[string]any{"error": err.Error()}
	if rejected, ok := llm.IsRemoteRejected(err); ok {
		data["status"] = rejected.StatusCode
	}
	return data
}

func parseImages(raw any) []chat.ImageAttachment {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var images []chat.ImageAttachment
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		img := chat.ImageAttachment{}
		img.Base64, _ = m["base64"].(string)
		img.MediaType, _ = m["mediaType"].(string)
		img.Name, _ = m["name"].(string)
		if img.Base64 != "" {
			images = append(images, img)
		}
	}
	return images
}

// speechCallback fans playback state changes out to the session's
// WebSocket clients.
func (s *Server) speechCallback(sessionID, utteranceID string) speech.StateCallback {
	return func(state speech.State, err error) {
		data := map[string]any{"id": utteranceID, "state": string(state)}
		if err != nil {
			data["error"] = err.Error()
		}
		s.connections.broadcast(sessionID, Message{Type: "speech_state", Data: data})
	}
}

func (c *wsClient) sendMessage(msg Message) {
	select {
	case c.send <- msg:
	default:
		c.server.logger.Warn("websocket send buffer full", "session", c.session.ID)
	}
}

func (c *wsClient) sendError(message, eventID string) {
	c.sendMessage(Message{
		Type:    "error",
		EventID: eventID,
		Data:    map[string]any{"error": message},
	})
}
