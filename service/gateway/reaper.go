package gateway

import (
	"time"

	"IMProject/logger"
	"IMProject/tools/safe"
)

// Reaper 断线收割：连接关闭和空闲超时两条触发路径都落到 OnClose，
// OnClose 幂等——注册表摘不到就什么都不做，不会重复广播离开通知。
type Reaper struct {
	reg   *Registry
	rooms *Rooms

	idleTimeout time.Duration
	sweepEvery  time.Duration

	// 摘除成功后的回调（目录删除、存量统计），由 Server 注入
	onRemoved func(c *Client)

	stopOnce chan struct{}
}

func NewReaper(reg *Registry, rooms *Rooms, idleTimeout time.Duration, onRemoved func(*Client)) *Reaper {
	sweep := idleTimeout / 3
	if sweep <= 0 {
		sweep = 10 * time.Second
	}
	return &Reaper{
		reg:         reg,
		rooms:       rooms,
		idleTimeout: idleTimeout,
		sweepEvery:  sweep,
		onRemoved:   onRemoved,
		stopOnce:    make(chan struct{}),
	}
}

// OnClose 摘注册表、退房并通知剩余参与者。重复调用是无操作。
func (rp *Reaper) OnClose(c *Client) {
	c.Close()
	if !rp.reg.Remove(c) {
		return
	}

	ident, _ := c.Identity()
	if roomId, rest := rp.rooms.Leave(c); roomId != "" {
		notice := BuildNotice(CodeDisconnect, "participant left", map[string]string{
			"room_id": roomId,
			"user_id": ident.UserId,
		})
		for _, member := range rest {
			if err := member.EnqueueEnvelope(notice); err != nil {
				logger.Debugf("[Reaper] leave notice drop conn=%s err=%v", member.ConnId, err)
			}
		}
	}

	if rp.onRemoved != nil {
		rp.onRemoved(c)
	}
	logger.Infof("[Reaper] removed conn=%s user=%s", c.ConnId, ident.UserId)
}

// Start 空闲清扫：超过 idleTimeout 没有任何帧（含心跳）就硬断
func (rp *Reaper) Start() {
	safe.SafeGo("reaper-sweep", func() {
		t := time.NewTicker(rp.sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-rp.stopOnce:
				return
			case now := <-t.C:
				rp.sweepOnce(now)
			}
		}
	})
}

func (rp *Reaper) Stop() {
	select {
	case <-rp.stopOnce:
	default:
		close(rp.stopOnce)
	}
}

func (rp *Reaper) sweepOnce(now time.Time) {
	for _, c := range rp.reg.Snapshot() {
		if now.Sub(c.LastSeen()) > rp.idleTimeout {
			logger.Infof("[Reaper] idle kick conn=%s lastSeen=%s", c.ConnId, c.LastSeen().Format(time.RFC3339))
			rp.OnClose(c)
		}
	}
}
