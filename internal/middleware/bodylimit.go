package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultBodyLimit 请求体默认上限。别名创建和认证请求都很小，
// 64KB 已经远超正常载荷
const DefaultBodyLimit = 64 << 10

// BodySizeLimit 限制请求体大小，超限的读取会在绑定阶段失败
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
