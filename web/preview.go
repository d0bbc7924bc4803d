package web

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"drive-camera-publisher/sink"
)

// PreviewHub fans captured frames out to WebSocket viewers. It implements
// sink.Publisher so it can sit next to the message-bus sink behind a
// fan-out. Slow clients get frames dropped, never queued; the preview is
// a debugging aid and must not apply backpressure to the capture loop.
type PreviewHub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	bufSize  int

	mu      sync.Mutex
	clients map[*previewClient]struct{}
	closed  bool
}

type previewClient struct {
	conn *websocket.Conn
	send chan wsMessage
}

type wsMessage struct {
	messageType int
	payload     []byte
}

// NewPreviewHub creates a hub with the given per-client buffer size
func NewPreviewHub(bufSize int, logger *zap.Logger) *PreviewHub {
	if bufSize <= 0 {
		bufSize = 1
	}
	return &PreviewHub{
		logger:  logger,
		bufSize: bufSize,
		clients: make(map[*previewClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Publish sends the encoded frame to every connected viewer, dropping it
// for clients whose buffers are full
func (h *PreviewHub) Publish(msg *sink.ImageMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || len(h.clients) == 0 {
		return
	}

	out := wsMessage{messageType: websocket.BinaryMessage, payload: msg.Encode()}
	for client := range h.clients {
		select {
		case client.send <- out:
		default:
		}
	}
}

// PublishStreamClosed tells viewers the stream ended
func (h *PreviewHub) PublishStreamClosed(event *sink.StreamClosed) {
	payload, err := json.Marshal(map[string]interface{}{
		"event":    "stream_closed",
		"frame_id": event.FrameID,
		"last_seq": event.LastSeq,
		"reason":   event.Reason,
	})
	if err != nil {
		h.logger.Error("Failed to encode stream-closed event", zap.Error(err))
		return
	}

	out := wsMessage{messageType: websocket.TextMessage, payload: payload}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- out:
		default:
		}
	}
}

// HandlePreview upgrades the connection and streams frames until the
// client disconnects
func (h *PreviewHub) HandlePreview(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade preview connection", zap.Error(err))
		return
	}

	client := &previewClient{
		conn: conn,
		send: make(chan wsMessage, h.bufSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Preview client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Int("clients", count))

	go h.writePump(client)
	go h.readPump(client)
}

// writePump drains the client's send channel onto the socket
func (h *PreviewHub) writePump(client *previewClient) {
	for msg := range client.send {
		if err := client.conn.WriteMessage(msg.messageType, msg.payload); err != nil {
			h.remove(client)
			return
		}
	}
	client.conn.WriteMessage(websocket.CloseMessage, []byte{})
	client.conn.Close()
}

// readPump discards inbound messages and detects disconnects
func (h *PreviewHub) readPump(client *previewClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Preview client read error", zap.Error(err))
			}
			h.remove(client)
			return
		}
	}
}

// remove unregisters a client; safe to call more than once
func (h *PreviewHub) remove(client *previewClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
}

// ClientCount returns the number of connected viewers
func (h *PreviewHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all viewers and rejects new ones
func (h *PreviewHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

var _ sink.Publisher = (*PreviewHub)(nil)
