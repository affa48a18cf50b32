package gateway

import (
	"net"
	"net/http"
	"time"

	"IMProject/logger"
	"IMProject/middleware"
	errs "IMProject/tools/errs"
	ids "IMProject/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const maxFrameSize = 1 << 20 // 1MB，超限由 gorilla 直接断

// Router 挂载网关路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.AccessLog(), middleware.Origin())
	r.GET("/ws", s.HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"broker_id": s.BrokerId(), "conns": s.reg.Len()})
	})
	return r
}

// HandleWS ===== WebSocket 入口：升级、建连、读循环 =====
// 读协程只读；所有写都经 Client 的写协程。每条连接的帧按到达顺序处理。
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	client := NewClient(ids.GenerateConnID(), ws, s.cfg.SendQueueSize)
	client.StartWriter()
	logger.Infof("[HandleWS] accepted conn=%s remote=%s", client.ConnId, client.Remote)

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	ws.SetPongHandler(func(string) error {
		client.Touch()
		return ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	})

	s.readLoop(client, ws)

	// ---- 退出阶段：收割（幂等，空闲清扫可能已经做过） ----
	s.reaper.OnClose(client)
}

func (s *Server) readLoop(client *Client, ws *websocket.Conn) {
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed conn=%s err=%v", client.ConnId, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout conn=%s err=%v", client.ConnId, rerr)
			} else {
				logger.Infof("[WS] read err conn=%s err=%v", client.ConnId, rerr)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		client.Touch()
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))

		if !s.handleFrame(client, data) {
			return
		}
	}
}

// handleFrame 处理一帧，返回 false 表示连接该关了。
// 协议类错误（解码失败、负载与 code 不符）只丢帧并累计，不立刻断连；
// 其余 handler 错误解决为关连接，绝不让异常出边界。
func (s *Server) handleFrame(client *Client, data []byte) bool {
	env, perr := Decode(data)
	if perr != nil {
		return s.protocolFailure(client, perr, data)
	}

	h := s.disp.GetHandler(env.Code)
	if h == nil {
		// 未知 code 在 handler 层拒绝，不在 codec 层
		logger.Infof("[WS] no handler for code=%d conn=%s", env.Code, client.ConnId)
		_ = client.EnqueueEnvelope(BuildAck(env, CodeError, "unsupported code"))
		return true
	}

	if err := h.Handle(&Context{S: s}, env, client); err != nil {
		if errs.ErrProtocol.Is(err) {
			// 帧坏了但连接没坏：与解码失败共用同一个计数器
			return s.protocolFailure(client, err, data)
		}
		logger.Errorf("[WS] handler err code=%d conn=%s err=%v", env.Code, client.ConnId, err)
		return false
	}
	return !client.IsClosed()
}

// protocolFailure 坏帧：丢帧不断连；连续坏帧超过阈值按脏客户端断开
func (s *Server) protocolFailure(client *Client, err error, data []byte) bool {
	n := client.DecodeFailure()
	sample := data
	if len(sample) > 128 {
		sample = sample[:128]
	}
	logger.Warnf("[WS] bad frame conn=%s n=%d err=%v sample=%x", client.ConnId, n, err, sample)
	if n >= s.cfg.MaxDecodeErrors {
		logger.Warnf("[WS] too many bad frames, closing conn=%s", client.ConnId)
		return false
	}
	return true
}
