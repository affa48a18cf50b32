package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Origin /ws 升级前的门槛检查：必须是真的 WebSocket 升级请求。
// 域名/签名校验按部署环境在这里加。
func Origin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && c.Request.URL.Path == "/ws" {
			if !strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
				c.AbortWithStatus(http.StatusBadRequest)
				return
			}
		}
		c.Next()
	}
}
