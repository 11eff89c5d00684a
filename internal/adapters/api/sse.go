package api

import (
	"io"

	"github.com/gin-gonic/gin"
)

// handleSSE handles Server-Sent Events for real-time updates.
// Clients connect to /api/events and receive job updates and device list
// changes as they happen.
func (s *Server) handleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan := s.addSSEClient()
	defer s.removeSSEClient(clientChan)

	// Send initial state: a connected marker, the devices and any running job
	c.SSEvent("connected", map[string]interface{}{
		"message": "Connected to PhotoTransfer event stream",
	})
	c.SSEvent("devices:snapshot", DevicesResponse{Devices: s.service.Devices()})
	if activeJob := s.service.Jobs().GetActiveJob(); activeJob != nil {
		c.SSEvent("job:snapshot", activeJob)
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			s.logger.Debug("[API] SSE client disconnected (context done)")
			return false
		case msg, ok := <-clientChan:
			if !ok {
				return false
			}
			c.SSEvent(msg.Event, msg.Data)
			return true
		}
	})
}
