package handlers

import (
	"IMProject/logger"
	"IMProject/service/gateway"
)

// LogoutHandler 主动下线：回执后收割连接，目录清理由 reaper 的
// 最后下线回调统一做，这里不直接删（可能还有别的端在线）。
type LogoutHandler struct{}

func NewLogoutHandler() gateway.Handler { return &LogoutHandler{} }

func (h *LogoutHandler) Code() int { return gateway.CodeLogout }

func (h *LogoutHandler) Handle(ctx *gateway.Context, e *gateway.Envelope, c *gateway.Client) error {
	if ident, ok := c.Identity(); ok {
		logger.Infof("[Logout] user=%s conn=%s", ident.UserId, c.ConnId)
	}
	_ = c.EnqueueEnvelope(gateway.BuildAck(e, gateway.CodeSuccess, "bye"))
	ctx.S.Reaper().OnClose(c)
	return nil
}
