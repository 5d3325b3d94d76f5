package sse

import (
	"fmt"
	"net/http"
	"time"

	"github.com/UnendingLoop/ImageDigitizer/internal/mwlogger"
	"github.com/wb-go/wbf/ginext"
)

// KeepAlive is the interval of comment pings sent to idle streams.
var KeepAlive = 15 * time.Second

// Stream keeps the connection open and writes every message of topic as an SSE frame.
func (h *Hub) Stream(c *ginext.Context, topic string) {
	logger := mwlogger.LoggerFromContext(c.Request.Context())

	if topic == "" {
		c.JSON(http.StatusBadRequest, map[string]string{"error": "missing topic"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	msgCh := make(chan []byte, 16)
	if !h.Subscribe(msgCh, topic) {
		c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "event stream is shutting down"})
		return
	}
	defer h.Unsubscribe(msgCh, topic)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	fmt.Fprintf(c.Writer, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(KeepAlive)
	defer ticker.Stop()

	notify := c.Request.Context().Done()
	for {
		select {
		case <-notify:
			logger.Debug().Msg("Event stream closed by client")
			return
		case <-h.done:
			return
		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": ping\n\n")
			flusher.Flush()
		case msg := <-msgCh:
			fmt.Fprintf(c.Writer, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
