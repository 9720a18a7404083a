package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const sseKeepAlive = 15 * time.Second

// getEvents streams hub events as server-sent events until the client goes
// away or the server shuts down.
func (s *Server) getEvents(c *gin.Context) {
	if s.hub == nil {
		c.IndentedJSON(http.StatusServiceUnavailable, "event stream disabled")
		return
	}
	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// comment line so clients see the stream open immediately
	_, _ = w.WriteString(": connected\n\n")
	w.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(ev.Name, ev.Data)
			w.Flush()
		case <-keepAlive.C:
			if _, err := w.WriteString(": ping\n\n"); err != nil {
				return
			}
			w.Flush()
		}
	}
}
