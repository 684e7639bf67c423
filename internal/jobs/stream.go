package jobs

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

const writeTimeout = 10 * time.Second

// StreamHandler upgrades to a websocket and writes job snapshots as JSON
// until the job reaches a terminal state or the client goes away.
func StreamHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, ok := store.Get(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "backend.errors.job_not_found"})
			return
		}

		conn, err := websocket.Accept(c.Writer, c.Request, nil)
		if err != nil {
			logging.Warnf("[JOBS] websocket accept failed for %s: %v", id, err)
			return
		}
		defer conn.CloseNow()

		// the client never sends anything; this also notices it leaving
		ctx := conn.CloseRead(c.Request.Context())
		if err := Stream(ctx, conn, store, id); err != nil {
			logging.Debugf("[JOBS] stream for %s ended: %v", id, err)
			return
		}
		conn.Close(websocket.StatusNormalClosure, "job finished")
	}
}

// Stream writes updates for job id to conn.
func Stream(ctx context.Context, conn *websocket.Conn, store *Store, id string) error {
	updates, unsubscribe := store.Subscribe(id)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-updates:
			if !ok {
				return nil
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, job)
			cancel()
			if err != nil {
				return err
			}
			if job.Status.Terminal() {
				return nil
			}
		}
	}
}
