package handlers

import (
	"context"
	"time"

	"IMProject/global"
	"IMProject/logger"
	"IMProject/service/gateway"
)

// LoginHandler 处理登录帧：校验 token、执行多端策略、写会话目录、回执。
// 序列里任何一步失败都关连接，绝不留下"半注册"的连接。
type LoginHandler struct{}

func NewLoginHandler() gateway.Handler { return &LoginHandler{} }

func (h *LoginHandler) Code() int { return gateway.CodeLogin }

func (h *LoginHandler) Handle(ctx *gateway.Context, e *gateway.Envelope, c *gateway.Client) error {
	s := ctx.S

	if c.State() == gateway.StateAuthenticated {
		// 重复登录帧：幂等回执
		return c.EnqueueEnvelope(gateway.BuildAck(e, gateway.CodeRegisterSuccess, "already logged in"))
	}

	info, err := s.Validator().Validate(e.Token)
	if err != nil {
		logger.Warnf("[Login] token reject conn=%s err=%v", c.ConnId, err)
		c.CloseWith(gateway.BuildAck(e, gateway.CodeTokenError, "invalid token"))
		return nil
	}
	userId := info.UserID

	deviceType := h.resolveDeviceType(e)

	dctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// 目录里已有别的节点持有这个用户：广播让那边踢（单端语义）
	if prev, lerr := s.Store().Load(dctx, userId); lerr == nil && prev != nil &&
		prev.BrokerId != "" && prev.BrokerId != s.BrokerId() && !s.Reg().MultiDevice() {
		if k := s.KickerOrNil(); k != nil {
			_ = k.PublishKick(userId, "", "login on another node")
		}
	}

	if s.Reg().MultiDevice() && s.Cfg().RejectNewOnDup {
		// 多端模式下同槽位已有活连接：拒绝新连接，老连接不动（策略可配）。
		// 查与占必须是一次原子操作，否则并发登录会双双通过再互踢。
		if old, ok := s.Reg().PutIfVacant(userId, deviceType, c); !ok {
			logger.Infof("[Login] duplicate device login user=%s device=%s conn=%s held-by=%s", userId, deviceType, c.ConnId, old.ConnId)
			c.CloseWith(gateway.BuildAck(e, gateway.CodeDuplicateLogin, "already logged in on this device"))
			return nil
		}
	} else {
		evicted := s.Reg().Put(userId, deviceType, c)
		for _, old := range evicted {
			logger.Infof("[Login] kick old conn user=%s device=%s old=%s new=%s", userId, deviceType, old.ConnId, c.ConnId)
			s.Kick(old, "logged in elsewhere")
		}
	}

	if !c.Authenticate(gateway.Identity{
		UserId:        userId,
		DeviceId:      h.resolveDeviceId(e),
		DeviceType:    deviceType,
		Token:         e.Token,
		TokenExpireAt: info.ExpiresAt,
	}) {
		// 并发关闭抢先：收割并退出
		s.Reaper().OnClose(c)
		return nil
	}

	ttl := s.Cfg().SessionTTL()
	sess := &global.UserSession{
		UserId:     userId,
		BrokerId:   s.BrokerId(),
		DeviceType: deviceType,
		Token:      e.Token,
		IssuedAt:   time.Now().Unix(),
		TTL:        int64(ttl / time.Second),
	}
	if serr := s.Store().Save(dctx, sess, ttl); serr != nil {
		// 没有 presence 记录就不许留在线：目录不可用时拒绝登录
		logger.Errorf("[Login] session directory write failed user=%s err=%v", userId, serr)
		c.CloseWith(gateway.BuildAck(e, gateway.CodeRegisterFailed, "service unavailable"))
		s.Reaper().OnClose(c)
		return nil
	}

	// 日活标记走工作池，失败无所谓（近似集合）
	_ = s.Pool().Submit(func() {
		mctx, mcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer mcancel()
		if merr := s.Store().MarkActive(mctx, userId); merr != nil {
			logger.Debugf("[Login] mark active failed user=%s err=%v", userId, merr)
		}
	})

	logger.Infof("[Login] user=%s device=%s conn=%s online", userId, deviceType, c.ConnId)
	return c.EnqueueEnvelope(gateway.BuildAck(e, gateway.CodeRegisterSuccess, "login success"))
}

// deviceType 取值顺序：负载 -> 帧头 -> default
func (h *LoginHandler) resolveDeviceType(e *gateway.Envelope) string {
	if p, err := e.Payload(); err == nil {
		if lp, ok := p.(*gateway.LoginPayload); ok && lp.DeviceType != "" {
			return lp.DeviceType
		}
	}
	if e.DeviceType != "" {
		return e.DeviceType
	}
	return gateway.DefaultDeviceType
}

func (h *LoginHandler) resolveDeviceId(e *gateway.Envelope) string {
	if p, err := e.Payload(); err == nil {
		if lp, ok := p.(*gateway.LoginPayload); ok {
			return lp.DeviceId
		}
	}
	return ""
}
