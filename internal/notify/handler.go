package notify

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campus-backend/internal/platform/apierr"
	"campus-backend/internal/platform/auth"
)

const keepAliveInterval = 25 * time.Second

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/notifications", h.List)
	r.PUT("/notifications/mark-as-read", h.MarkAllRead)
	r.GET("/notifications/stream", h.Stream)
}

func (h *Handler) List(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := h.svc.List(c.Request.Context(), caller, limit)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": res})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	n, err := h.svc.MarkAllRead(c.Request.Context(), caller)
	if err != nil {
		apierr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notifications marked as read", "updated": n})
}

// Stream: Server-Sent Events。接続中だけ Registry に登録される
func (h *Handler) Stream(c *gin.Context) {
	caller, _ := auth.CallerFrom(c)
	conn, cancel := h.svc.Subscribe(caller)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case n, ok := <-conn.C():
			if !ok {
				return false
			}
			c.SSEvent("notification", n)
			return true
		case <-ticker.C:
			c.SSEvent("ping", "")
			return true
		}
	})
}
