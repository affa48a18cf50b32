package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"IMProject/logger"
	"IMProject/tools/safe"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// 连接状态机：Anonymous -> Authenticated -> Closed（任意状态可进 Closed）
type State int32

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateClosed
)

// Identity 鉴权后附着在连接上的身份；消息处理一律从这里取，不信任帧内字段
type Identity struct {
	UserId        string
	DeviceId      string
	DeviceType    string
	Token         string
	TokenExpireAt time.Time
}

// Client 一条 WebSocket 连接。出站帧进 send 队列，由唯一写协程消费；
// 读协程只读。Close 幂等，写关闭后入队快速失败。
type Client struct {
	ConnId string
	Remote string

	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closedCh  chan struct{}

	mu    sync.RWMutex
	state State
	ident Identity

	lastSeen   atomic.Int64 // unix 纳秒，心跳/收帧刷新
	decodeErrs atomic.Int32
	createdAt  time.Time
}

func NewClient(connId string, ws *websocket.Conn, sendQueueSize int) *Client {
	c := &Client{
		ConnId:    connId,
		ws:        ws,
		send:      make(chan []byte, sendQueueSize),
		closedCh:  make(chan struct{}),
		createdAt: time.Now(),
	}
	if ws != nil {
		if ra := ws.RemoteAddr(); ra != nil {
			c.Remote = ra.String()
		}
	}
	c.Touch()
	return c
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Identity 返回身份；未鉴权时 ok=false
func (c *Client) Identity() (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ident, c.state == StateAuthenticated
}

// Authenticate 只允许从匿名态晋升一次
func (c *Client) Authenticate(ident Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAnonymous {
		return false
	}
	c.state = StateAuthenticated
	c.ident = ident
	return true
}

func (c *Client) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// DecodeFailure 递增解码失败计数，返回当前值
func (c *Client) DecodeFailure() int {
	return int(c.decodeErrs.Add(1))
}

// Enqueue 入队出站帧。关闭或队列打满立即报错，不阻塞调用方。
func (c *Client) Enqueue(frame []byte) error {
	select {
	case <-c.closedCh:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.closedCh:
		return errors.New("connection closed")
	default:
		return errors.New("send queue full")
	}
}

// Outbox 出站帧队列的只读视图（未启动写协程时也可直接消费）
func (c *Client) Outbox() <-chan []byte {
	return c.send
}

// EnqueueEnvelope 编码后入队
func (c *Client) EnqueueEnvelope(e *Envelope) error {
	raw, err := Encode(e)
	if err != nil {
		return err
	}
	return c.Enqueue(raw)
}

func (c *Client) IsClosed() bool {
	select {
	case <-c.closedCh:
		return true
	default:
		return false
	}
}

// Close 幂等关闭：置状态、唤醒写协程收尾。底层 socket 由写协程关。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.closedCh)
	})
}

// CloseWith 先尽力送出一帧错误/通知再关闭（鉴权失败、被踢等场景）
func (c *Client) CloseWith(e *Envelope) {
	if raw, err := Encode(e); err == nil {
		_ = c.Enqueue(raw)
	}
	c.Close()
}

const (
	writeWait    = 10 * time.Second
	pingInterval = 25 * time.Second
)

// StartWriter 唯一写协程：业务帧优先，其次周期 ping；退出时发 Close 帧并关 socket。
func (c *Client) StartWriter() {
	if c.ws == nil {
		return
	}
	safe.SafeGo("client-writer", func() {
		ticker := time.NewTicker(pingInterval)
		defer func() {
			ticker.Stop()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.ws.Close()
		}()

		for {
			select {
			case payload := <-c.send:
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
					logger.Infof("[WS] write payload err conn=%s err=%v", c.ConnId, err)
					c.Close()
					return
				}
			case <-ticker.C:
				if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
					logger.Infof("[WS] ping err conn=%s err=%v", c.ConnId, err)
					c.Close()
					return
				}
			case <-c.closedCh:
				// 关闭前清空积压帧，尽力而为
				for {
					select {
					case payload := <-c.send:
						_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
						if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
							return
						}
					default:
						return
					}
				}
			}
		}
	})
}
