package gateway

import (
	"context"
	"sync"
	"time"

	"IMProject/logger"
	"IMProject/tools/safe"
)

// TTLExtender 会话目录批量续期的最小面
type TTLExtender interface {
	ExtendTTL(ctx context.Context, userIds []string, ttl time.Duration) error
}

// Renewal 把海量心跳合并成周期性的一次批量续期，压住目录写放大。
// 最多一个 tick 的陈旧窗口，目录 TTL 本身是 2 倍心跳，抗得住。
type Renewal struct {
	mu      sync.Mutex
	touched map[string]struct{}

	store    TTLExtender
	interval time.Duration
	ttl      time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRenewal(store TTLExtender, interval, ttl time.Duration) *Renewal {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Renewal{
		touched:  make(map[string]struct{}),
		store:    store,
		interval: interval,
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
}

// OnHeartbeat 记录触达；多条心跳落在同一 tick 内只产生一次目录写
func (r *Renewal) OnHeartbeat(userId string) {
	if userId == "" {
		return
	}
	r.mu.Lock()
	r.touched[userId] = struct{}{}
	r.mu.Unlock()
}

func (r *Renewal) Start() {
	safe.SafeGo("renewal-tick", func() {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				r.Flush(ctx)
				cancel()
			}
		}
	})
}

func (r *Renewal) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Flush 原子换出触达集再写目录。写失败把这批用户放回去，下个 tick 重试——
// 心跳侧对目录故障的降级就是"只回 ack，续期晚一拍"。
func (r *Renewal) Flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.touched) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.touched
	r.touched = make(map[string]struct{})
	r.mu.Unlock()

	userIds := make([]string, 0, len(batch))
	for uid := range batch {
		userIds = append(userIds, uid)
	}

	if err := r.store.ExtendTTL(ctx, userIds, r.ttl); err != nil {
		logger.Warnf("[Renewal] extend ttl failed, will retry next tick users=%d err=%v", len(userIds), err)
		r.mu.Lock()
		for uid := range batch {
			r.touched[uid] = struct{}{}
		}
		r.mu.Unlock()
	}
}

// TouchedCount 仅测试/指标用
func (r *Renewal) TouchedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.touched)
}
