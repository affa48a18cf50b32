package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"IMProject/logger"
)

// AccessLog 替代 gin.Logger：走统一的 zap 输出
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infof("[HTTP] %s %s status=%d cost=%s client=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start), c.ClientIP())
	}
}
