package gateway

import (
	"context"
	"time"

	"IMProject/global"
	"IMProject/logger"
	security "IMProject/tools/security"
)

// SessionStore 会话目录读写面（redis 实现在 service/storage）
type SessionStore interface {
	Save(ctx context.Context, sess *global.UserSession, ttl time.Duration) error
	Load(ctx context.Context, userId string) (*global.UserSession, error)
	Delete(ctx context.Context, userId string) error
	ExtendTTL(ctx context.Context, userIds []string, ttl time.Duration) error
	MarkActive(ctx context.Context, userId string) error
}

// Forwarder 跨节点转发面：把一帧投给 brokerId 对应的节点 topic
type Forwarder interface {
	Forward(ctx context.Context, brokerId, userId string, raw []byte) error
}

// KickPublisher 强制下线广播面（其它节点收到后踢本地连接）
type KickPublisher interface {
	PublishKick(userId, deviceType, reason string) error
}

// Server 网关装配点：注册表、分发表、目录、续期、收割、工作池
type Server struct {
	cfg       *global.AppConfig
	reg       *Registry
	disp      *Dispatcher
	rooms     *Rooms
	store     SessionStore
	validator security.Validator
	renewal   *Renewal
	reaper    *Reaper
	pool      *Pool

	forwarder Forwarder
	kicker    KickPublisher
}

func NewServer(cfg *global.AppConfig, store SessionStore, validator security.Validator) *Server {
	s := &Server{
		cfg:       cfg,
		reg:       NewRegistry(cfg.MultiDevice),
		disp:      NewDispatcher(),
		rooms:     NewRooms(),
		store:     store,
		validator: validator,
		pool:      NewPool(cfg.WorkerCount, cfg.WorkerQueueSize),
	}
	s.renewal = NewRenewal(store, cfg.RenewalInterval, cfg.SessionTTL())
	s.reaper = NewReaper(s.reg, s.rooms, cfg.IdleTimeout, s.onRemoved)
	return s
}

func (s *Server) Cfg() *global.AppConfig        { return s.cfg }
func (s *Server) Reg() *Registry                { return s.reg }
func (s *Server) Disp() *Dispatcher             { return s.disp }
func (s *Server) Rooms() *Rooms                 { return s.rooms }
func (s *Server) Store() SessionStore           { return s.store }
func (s *Server) Validator() security.Validator { return s.validator }
func (s *Server) Renewal() *Renewal             { return s.renewal }
func (s *Server) Reaper() *Reaper               { return s.reaper }
func (s *Server) Pool() *Pool                   { return s.pool }
func (s *Server) BrokerId() string              { return s.cfg.GatewayNodeId }

func (s *Server) SetForwarder(f Forwarder)   { s.forwarder = f }
func (s *Server) SetKicker(k KickPublisher)  { s.kicker = k }
func (s *Server) KickerOrNil() KickPublisher { return s.kicker }

func (s *Server) Start() {
	s.renewal.Start()
	s.reaper.Start()
}

func (s *Server) Shutdown() {
	s.renewal.Stop()
	s.reaper.Stop()
	for _, c := range s.reg.Snapshot() {
		c.Close()
	}
	s.pool.Close()
}

// Kick 给旧连接发 FORCE_LOGOUT 再收割
func (s *Server) Kick(c *Client, reason string) {
	c.CloseWith(BuildNotice(CodeForceLogout, reason, nil))
	s.reaper.OnClose(c)
}

// KickUser 跨节点踢人入口（NATS 订阅回调）：踢掉本地该用户指定槽位；
// deviceType 为空踢全部。每条连接都走 Kick -> 收割，房间通知不会漏。
func (s *Server) KickUser(userId, deviceType, reason string) {
	if deviceType == "" {
		for _, c := range s.reg.UserConns(userId) {
			s.Kick(c, reason)
		}
		return
	}
	if c, ok := s.reg.Get(userId, deviceType); ok {
		s.Kick(c, reason)
	}
}

// onRemoved 注册表摘除成功后的收尾：目录里的会话记录只有当它仍指向本节点
// 且本地已无该用户连接时才删，避免误删新节点刚写入的记录。
func (s *Server) onRemoved(c *Client) {
	ident, ok := c.Identity()
	if !ok {
		return
	}
	if _, still := s.reg.GetAny(ident.UserId); still {
		return
	}
	userId := ident.UserId
	if err := s.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sess, err := s.store.Load(ctx, userId)
		if err != nil || sess == nil {
			return
		}
		if sess.BrokerId == s.BrokerId() {
			_ = s.store.Delete(ctx, userId)
		}
	}); err != nil {
		logger.Warnf("[Server] offline cleanup queue full user=%s", userId)
	}
}
