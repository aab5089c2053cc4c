package reqid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	Header = "X-Request-ID"
	ctxKey = "request_id"
)

// Middleware: X-Request-ID が無ければ採番し、レスポンスにも付ける
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxKey, id)
		c.Header(Header, id)
		c.Next()
	}
}

func From(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(ctxKey)
}
