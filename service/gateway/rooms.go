package gateway

import (
	"sync"
)

// Rooms 视频会话之类的轻量房间层：房间 -> 成员连接。
// 只为断开时通知剩余参与者，不承载任何信令逻辑。
type Rooms struct {
	mu     sync.Mutex
	byRoom map[string]map[string]*Client // roomId -> connId -> client
	byConn map[string]string             // connId -> roomId
}

func NewRooms() *Rooms {
	return &Rooms{
		byRoom: make(map[string]map[string]*Client),
		byConn: make(map[string]string),
	}
}

// Join 一条连接同时只在一个房间里；换房先退旧房
func (r *Rooms) Join(roomId string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byConn[c.ConnId]; ok && prev != roomId {
		r.leaveLocked(prev, c)
	}
	m := r.byRoom[roomId]
	if m == nil {
		m = make(map[string]*Client)
		r.byRoom[roomId] = m
	}
	m[c.ConnId] = c
	r.byConn[c.ConnId] = roomId
}

// Leave 返回离开的房间和剩余成员；不在任何房间返回 ("", nil)
func (r *Rooms) Leave(c *Client) (string, []*Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomId, ok := r.byConn[c.ConnId]
	if !ok {
		return "", nil
	}
	r.leaveLocked(roomId, c)
	var rest []*Client
	for _, member := range r.byRoom[roomId] {
		rest = append(rest, member)
	}
	return roomId, rest
}

func (r *Rooms) leaveLocked(roomId string, c *Client) {
	delete(r.byConn, c.ConnId)
	if m := r.byRoom[roomId]; m != nil {
		delete(m, c.ConnId)
		if len(m) == 0 {
			delete(r.byRoom, roomId)
		}
	}
}
