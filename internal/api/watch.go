package api

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/lfelipe/studyhall/internal/bus"
)

// watchNamespaces are the bus prefixes forwarded to SSE clients.
var watchNamespaces = []string{"feed.", "session.", "remote.", "outbox."}

// watch streams bus events as server-sent events until the client goes away.
// Each event is written with the bus kind as the SSE event name and the
// payload JSON-encoded in the data field.
func (h *Handler) watch(c *gin.Context) {
	subs := make([]*bus.Subscription, 0, len(watchNamespaces))
	merged := make(chan bus.Event, 256)
	done := c.Request.Context().Done()

	for _, ns := range watchNamespaces {
		sub := h.bus.Subscribe(ns, 64)
		subs = append(subs, sub)
		go func(sub *bus.Subscription) {
			for {
				select {
				case evt := <-sub.C():
					select {
					case merged <- evt:
					default:
					}
				case <-done:
					return
				}
			}
		}(sub)
	}
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case evt := <-merged:
			c.SSEvent(evt.Kind, gin.H{
				"timestamp": evt.Timestamp,
				"payload":   evt.Payload,
			})
			return true
		case <-done:
			return false
		}
	})
}
