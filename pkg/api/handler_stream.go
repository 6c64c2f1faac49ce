package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/intelligence-arena/arena/pkg/events"
)

// sseHeartbeatInterval paces the keep-alive comments that hold idle
// streams open through proxies.
const sseHeartbeatInterval = 15 * time.Second

// matchStreamHandler handles GET /matches/:id/stream. The subscription is
// taken before the snapshot read, so no event can fall between the
// snapshot and the live stream; events already folded into the snapshot
// replay harmlessly. After a lagged marker the client gets a fresh
// snapshot instead of the dropped events. The stream closes itself after
// final, the last event a match ever publishes.
func (s *Server) matchStreamHandler(c *gin.Context) {
	matchID := c.Param("id")

	sub := s.bus.Subscribe(events.MatchTopic(matchID))
	defer sub.Unsubscribe()

	m, err := s.repo.GetMatch(c.Request.Context(), matchID)
	if err != nil {
		respondError(c, err)
		return
	}

	w := openStream(c)
	if err := writeSSE(w, events.NewSnapshotEvent(m)); err != nil {
		return
	}

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()
	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := writeHeartbeat(w); err != nil {
				return
			}
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			switch ev.Type {
			case events.EventTypeLagged:
				fresh, err := s.repo.GetMatch(ctx, matchID)
				if err != nil {
					continue
				}
				if err := writeSSE(w, events.NewSnapshotEvent(fresh)); err != nil {
					return
				}
			case events.EventTypeFinal:
				return
			}
		}
	}
}

// arenaStreamHandler handles GET /matches/stream: the arena-wide
// lifecycle feed. There is no snapshot to resync from, so lagged markers
// are forwarded as-is and the client re-lists matches if it cares.
func (s *Server) arenaStreamHandler(c *gin.Context) {
	sub := s.bus.Subscribe(events.TopicArenaMatches)
	defer sub.Unsubscribe()

	w := openStream(c)

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()
	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := writeHeartbeat(w); err != nil {
				return
			}
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
		}
	}
}

// openStream commits the SSE response headers and flushes them so the
// client sees the stream open before the first event.
func openStream(c *gin.Context) gin.ResponseWriter {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	return c.Writer
}

// writeSSE frames one bus event as an SSE event and flushes it.
func writeSSE(w gin.ResponseWriter, ev events.Event) error {
	if err := sse.Encode(w, sse.Event{Event: ev.Type, Data: ev.Payload}); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// writeHeartbeat emits the keep-alive comment. Clients ignore it.
func writeHeartbeat(w gin.ResponseWriter) error {
	if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
		return err
	}
	w.Flush()
	return nil
}
