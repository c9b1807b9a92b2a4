package httptransport

import (
	"github.com/gin-gonic/gin"
)

// Error 失败响应，统一为 {"error": message} 形态
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// StatusError 状态类端点的失败响应，形态为 {"status": "error", "message": ...}
func StatusError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"status":  "error",
		"message": message,
	})
}
