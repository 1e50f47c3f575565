// Package push fans engine event streams out to websocket clients and
// publishes them to JetStream.
package push

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"quant-engine/internal/infrastructure"
)

// SubjectPrefix is the JetStream namespace for run event streams; one run
// publishes to "engine.events.<run_id>".
const SubjectPrefix = "engine.events."

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// Gateway bridges websocket clients to run event subjects. A NATS
// subscription exists only while at least one client wants the topic.
type Gateway struct {
	logger        *zap.Logger
	js            nats.JetStreamContext
	clients       map[*Client]bool
	subscriptions map[string]map[*Client]bool
	natsSubs      map[string]*nats.Subscription
	mu            sync.RWMutex
}

func NewGateway(js nats.JetStreamContext, logger *zap.Logger) *Gateway {
	return &Gateway{
		logger:        logger,
		js:            js,
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
		natsSubs:      make(map[string]*nats.Subscription),
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
	}

	g.mu.Lock()
	g.clients[client] = true
	g.mu.Unlock()
	infrastructure.WSConnections.Inc()

	go g.writePump(client)
	g.readPump(client)
}

// topicAllowed restricts clients to run event subjects.
func topicAllowed(topic string) bool {
	return strings.HasPrefix(topic, SubjectPrefix) && len(topic) > len(SubjectPrefix)
}

func (g *Gateway) readPump(c *Client) {
	defer func() {
		g.mu.Lock()
		delete(g.clients, c)
		for topic, clients := range g.subscriptions {
			delete(clients, c)
			if len(clients) == 0 {
				g.dropNATSSub(topic)
				delete(g.subscriptions, topic)
			}
		}
		g.mu.Unlock()
		infrastructure.WSConnections.Dec()
		close(c.send)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req struct {
			Action string `json:"action"` // "subscribe", "unsubscribe"
			Topic  string `json:"topic"`  // "engine.events.<run_id>"
		}
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		if !topicAllowed(req.Topic) {
			g.logger.Warn("rejected subscription to topic outside engine namespace", zap.String("topic", req.Topic))
			continue
		}

		g.mu.Lock()
		switch req.Action {
		case "subscribe":
			if g.subscriptions[req.Topic] == nil {
				g.subscriptions[req.Topic] = make(map[*Client]bool)
				if err := g.subscribeToNATS(req.Topic); err != nil {
					g.logger.Error("NATS subscribe failed", zap.String("topic", req.Topic), zap.Error(err))
				}
			}
			g.subscriptions[req.Topic][c] = true
			g.logger.Info("client subscribed", zap.String("topic", req.Topic))
		case "unsubscribe":
			if clients, ok := g.subscriptions[req.Topic]; ok {
				delete(clients, c)
				if len(clients) == 0 {
					g.dropNATSSub(req.Topic)
					delete(g.subscriptions, req.Topic)
				}
			}
		}
		g.mu.Unlock()
	}
}

// dropNATSSub must be called with g.mu held.
func (g *Gateway) dropNATSSub(topic string) {
	if sub, ok := g.natsSubs[topic]; ok {
		sub.Unsubscribe()
		delete(g.natsSubs, topic)
		g.logger.Info("dropped NATS subscription", zap.String("topic", topic))
	}
}

func (g *Gateway) writePump(c *Client) {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (g *Gateway) subscribeToNATS(topic string) error {
	sub, err := g.js.Subscribe(topic, func(msg *nats.Msg) {
		g.mu.RLock()
		clients := g.subscriptions[topic]
		if clients == nil {
			g.mu.RUnlock()
			return
		}

		for c := range clients {
			select {
			case c.send <- msg.Data:
			default:
				// Slow consumers drop rather than stall the stream.
			}
		}
		g.mu.RUnlock()
		msg.Ack()
	}, nats.ManualAck())

	if err != nil {
		return err
	}

	g.natsSubs[topic] = sub
	g.logger.Info("subscribed to NATS topic", zap.String("topic", topic))
	return nil
}
