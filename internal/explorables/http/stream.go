package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/logger"
)

// stream sends status updates for a project as Server-Sent Events until it
// reaches ready or failed. Published events are forwarded as they arrive;
// polling covers missed events and deployments without Redis.
func (h *Handler) stream(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	projectID := c.Param("id")
	ctx := c.Request.Context()

	rec, err := h.pipeline.Status(ctx, userID, projectID)
	if err != nil {
		writeError(c, "stream_project", err)
		return
	}

	var updates <-chan domain.StatusRecord
	if h.events != nil {
		updates, err = h.events.Subscribe(ctx, projectID)
		if err != nil {
			logger.New(ctx).Warnf("stream_project", "subscribe failed, polling only: %v", err)
		}
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // nginx: disable buffering

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, "stream_project", fmt.Errorf("streaming unsupported"))
		return
	}

	send := func(event string, payload any) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	send("initial", rec)
	if rec.Status.IsTerminal() {
		return
	}

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()
	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()

	last := *rec
	changed := func(next *domain.StatusRecord) bool {
		return next.Status != last.Status || next.UpdatedAt.After(last.UpdatedAt)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-keepAlive.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()

		case next, open := <-updates:
			if !open {
				updates = nil
				continue
			}
			if !changed(&next) {
				continue
			}
			last = next
			send("update", next)
			if next.Status.IsTerminal() {
				return
			}

		case <-poll.C:
			next, err := h.pipeline.Status(ctx, userID, projectID)
			if err != nil {
				if domain.CodeOf(err) == domain.CodeNotFound {
					send("deleted", gin.H{"id": projectID})
					return
				}
				continue
			}
			if !changed(next) {
				continue
			}
			last = *next
			send("update", next)
			if next.Status.IsTerminal() {
				return
			}
		}
	}
}
