package gateway

import (
	"sync"
)

// DefaultDeviceType 帧与连接属性都没给 deviceType 时的兜底槽位
const DefaultDeviceType = "default"

type slotRef struct {
	userId     string
	deviceType string
}

// Registry 本节点连接表：(userId, deviceType) -> *Client，另有 connId 反查索引
// 用于断线 O(1) 清理。put/remove 全部在一把锁内完成，不存在先查后改的竞态窗口。
type Registry struct {
	mu          sync.Mutex
	multiDevice bool
	byUser      map[string]map[string]*Client // userId -> deviceType -> client
	byConn      map[string]slotRef            // connId -> 槽位
}

func NewRegistry(multiDevice bool) *Registry {
	return &Registry{
		multiDevice: multiDevice,
		byUser:      make(map[string]map[string]*Client),
		byConn:      make(map[string]slotRef),
	}
}

func (r *Registry) MultiDevice() bool { return r.multiDevice }

// Put 注册连接并返回被挤掉的旧连接（调用方负责发 FORCE_LOGOUT 并关闭）。
// 多端模式：仅同 (userId, deviceType) 槽位互斥；单端模式：该用户所有槽位全部让位。
// 同一个 Client 重复 Put 是无操作。
func (r *Registry) Put(userId, deviceType string, c *Client) []*Client {
	if deviceType == "" {
		deviceType = DefaultDeviceType
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []*Client
	slots := r.byUser[userId]
	if slots == nil {
		slots = make(map[string]*Client)
		r.byUser[userId] = slots
	}

	if r.multiDevice {
		if old, ok := slots[deviceType]; ok {
			if old == c {
				return nil
			}
			evicted = append(evicted, old)
			delete(r.byConn, old.ConnId)
		}
	} else {
		for dt, old := range slots {
			if old == c {
				continue
			}
			evicted = append(evicted, old)
			delete(r.byConn, old.ConnId)
			delete(slots, dt)
		}
	}

	slots[deviceType] = c
	r.byConn[c.ConnId] = slotRef{userId: userId, deviceType: deviceType}
	return evicted
}

// PutIfVacant 槽位空闲（或占用者已关闭）才注册，否则原样返回占用者。
// reject-new 策略的原子入口：并发登录只会有一个成功，输家拿到 ok=false，
// 不存在先查后放的竞态窗口。
func (r *Registry) PutIfVacant(userId, deviceType string, c *Client) (*Client, bool) {
	if deviceType == "" {
		deviceType = DefaultDeviceType
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	slots := r.byUser[userId]
	if slots == nil {
		slots = make(map[string]*Client)
		r.byUser[userId] = slots
	}
	if old, ok := slots[deviceType]; ok {
		if old == c {
			return nil, true
		}
		if !old.IsClosed() {
			return old, false
		}
		// 死连接占着槽位（收割还没跑到）：直接顶掉
		delete(r.byConn, old.ConnId)
	}
	slots[deviceType] = c
	r.byConn[c.ConnId] = slotRef{userId: userId, deviceType: deviceType}
	return nil, true
}

func (r *Registry) Get(userId, deviceType string) (*Client, bool) {
	if deviceType == "" {
		deviceType = DefaultDeviceType
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byUser[userId][deviceType]
	return c, ok
}

// GetAny 设备类型未指定时的投递入口：优先 default 槽位，否则任取一条。
func (r *Registry) GetAny(userId string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slots := r.byUser[userId]
	if len(slots) == 0 {
		return nil, false
	}
	if c, ok := slots[DefaultDeviceType]; ok {
		return c, true
	}
	for _, c := range slots {
		return c, true
	}
	return nil, false
}

// Remove 按反查索引摘除；已摘除过返回 false（幂等，reaper 依赖这点）。
// 槽位上已经换成别的连接时不动它。
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.byConn[c.ConnId]
	if !ok {
		return false
	}
	if cur, ok := r.byUser[ref.userId][ref.deviceType]; !ok || cur != c {
		delete(r.byConn, c.ConnId)
		return false
	}
	delete(r.byConn, c.ConnId)
	delete(r.byUser[ref.userId], ref.deviceType)
	if len(r.byUser[ref.userId]) == 0 {
		delete(r.byUser, ref.userId)
	}
	return true
}

// UserConns 某用户当前全部本地连接的快照（跨节点踢人用）。
// 只读不摘，摘除统一走 Remove，房间退出等收尾才不会被绕过。
func (r *Registry) UserConns(userId string) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	slots := r.byUser[userId]
	if len(slots) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(slots))
	for _, c := range slots {
		out = append(out, c)
	}
	return out
}

// Snapshot 当前全部连接（sweeper/统计用）
func (r *Registry) Snapshot() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, slots := range r.byUser {
		for _, c := range slots {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConn)
}
