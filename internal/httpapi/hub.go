package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/domain"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/metrics"
)

const (
	hubSendBuffer = 16
	hubWriteWait  = 10 * time.Second
)

// eventFrame is one JSON message pushed to connected clients.
type eventFrame struct {
	Type string      `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// Hub fans live listener and run events out to websocket clients. It
// implements ports.EventSink; broadcasts never block, slow clients
// simply miss frames.
type Hub struct {
	log     *logrus.Entry
	metrics *metrics.Metrics

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

func NewHub(logger *logrus.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		log:     logger.WithField("component", "hub"),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
	}
}

type hubClient struct {
	conn *websocket.Conn
	send chan eventFrame
	quit chan struct{}
	once sync.Once
}

// ServeHTTP upgrades the request and attaches the connection until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &hubClient{
		conn: conn,
		send: make(chan eventFrame, hubSendBuffer),
		quit: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.log.WithField("clients", total).Info("websocket client connected")

	go h.writeLoop(client)
	h.readLoop(client)
}

func (h *Hub) readLoop(client *hubClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.detach(client)
			return
		}
	}
}

func (h *Hub) writeLoop(client *hubClient) {
	for {
		select {
		case frame := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := client.conn.WriteJSON(frame); err != nil {
				h.detach(client)
				return
			}
		case <-client.quit:
			return
		}
	}
}

// detach removes the client and stops its write loop. The send channel
// is never closed; abandoned channels are collected once both loops
// return.
func (h *Hub) detach(client *hubClient) {
	client.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, client)
		total := len(h.clients)
		h.mu.Unlock()

		close(client.quit)
		_ = client.conn.Close()
		h.log.WithField("clients", total).Info("websocket client disconnected")
	})
}

// Close disconnects every client. New upgrades are refused afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.detach(client)
	}
}

// ClientCount reports currently attached websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ListenerStateChanged(state domain.ListenerState, detail string) {
	h.broadcast(eventFrame{
		Type: "listener_state",
		Data: map[string]string{"state": string(state), "detail": detail},
	})
}

func (h *Hub) DetectionObserved(ev domain.DetectionEvent) {
	h.broadcast(eventFrame{Type: "detection", Data: ev})
}

func (h *Hub) DetectionSuppressed(ev domain.DetectionEvent, reason domain.SuppressReason) {
	h.broadcast(eventFrame{
		Type: "suppressed",
		Data: map[string]interface{}{"event": ev, "reason": string(reason)},
	})
}

func (h *Hub) RunStateChanged(run domain.ActionRun) {
	h.broadcast(eventFrame{Type: "run", Data: run})
}

func (h *Hub) broadcast(frame eventFrame) {
	frame.At = time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			h.metrics.EventDrops.Inc()
		}
	}
}
