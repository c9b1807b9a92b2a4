package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mailalias/backend/internal/monitoring"
)

// Metrics 记录每个请求的计数和耗时指标
//
// 路径标签使用路由模板而不是原始 URL，避免高基数标签。
func Metrics(m *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
