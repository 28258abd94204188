package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/yoockh/yooscribe/internal/events"
	"github.com/yoockh/yooscribe/internal/services"
	"github.com/yoockh/yooscribe/internal/utils"
)

// WSHandler streams pipeline status events to clients. The socket is
// one-way: uploads go over HTTP, the socket only relays what the workers
// publish to Redis.
type WSHandler struct {
	convs    services.ConversationService
	chunks   services.ChunkService
	redis    *redis.Client
	upgrader websocket.Upgrader
}

func NewWSHandler(convs services.ConversationService, chunks services.ChunkService, rdb *redis.Client) *WSHandler {
	return &WSHandler{
		convs:  convs,
		chunks: chunks,
		redis:  rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

// ConversationWS streams status events for a conversation and all of its
// chunks.
func (h *WSHandler) ConversationWS(c *gin.Context) {
	id := c.Param("conversation_id")
	if id == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "WSHandler.ConversationWS", "missing conversation_id", nil))
		return
	}
	if _, err := h.convs.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	h.stream(c, events.ConversationChannel(id))
}

// ChunkWS streams status events for a standalone chunk.
func (h *WSHandler) ChunkWS(c *gin.Context) {
	id := c.Param("chunk_id")
	if id == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "WSHandler.ChunkWS", "missing chunk_id", nil))
		return
	}
	if _, err := h.chunks.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	h.stream(c, events.ChunkChannel(id))
}

// stream upgrades the connection and forwards Redis pub/sub payloads until
// either side goes away.
func (h *WSHandler) stream(c *gin.Context, channel string) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote a response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	// reader: detect client close and answer pings
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				return
			}
		}
	}()

	// writer: Redis pub/sub -> WS, payloads are already JSON
	ch := pubsub.Channel()
	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			if werr := wc.writeText([]byte(m.Payload)); werr != nil {
				return
			}
		}
	}
}
