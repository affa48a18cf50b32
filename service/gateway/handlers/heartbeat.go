package handlers

import (
	"time"

	"IMProject/logger"
	"IMProject/service/gateway"
	"IMProject/tools/security"
)

// HeartbeatHandler 心跳：身份只认连接属性（防伪造）；token 快过期时
// 用 REFRESH_TOKEN 替代普通回执；续期统一交给批量调度，不直写目录。
type HeartbeatHandler struct{}

func NewHeartbeatHandler() gateway.Handler { return &HeartbeatHandler{} }

func (h *HeartbeatHandler) Code() int { return gateway.CodeHeartbeat }

func (h *HeartbeatHandler) Handle(ctx *gateway.Context, e *gateway.Envelope, c *gateway.Client) error {
	s := ctx.S

	ident, ok := c.Identity()
	if !ok {
		c.CloseWith(gateway.BuildAck(e, gateway.CodeNotLogin, "not logged in"))
		return nil
	}

	c.Touch()

	code := gateway.CodeHeartbeatSuccess
	message := "heartbeat ok"
	remaining := security.Remaining(&security.TokenInfo{ExpiresAt: ident.TokenExpireAt}, time.Now())
	if remaining <= s.Cfg().RefreshThreshold {
		// 客户端收到后应主动向鉴权服务换新 token
		code = gateway.CodeRefreshToken
		message = "token expiring"
		logger.Warnf("[HeartBeat] user=%s token remaining=%s, ask refresh", ident.UserId, remaining)
	}

	s.Renewal().OnHeartbeat(ident.UserId)

	// 无论哪种码都回包，客户端靠它重置自己的存活定时器
	return c.EnqueueEnvelope(gateway.BuildAck(e, code, message))
}
