package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(connId string) *Client {
	return NewClient(connId, nil, 16)
}

func TestRegistrySingleDeviceEvictsEverything(t *testing.T) {
	reg := NewRegistry(false)

	c1 := newTestClient("c1")
	require.Empty(t, reg.Put("u1", "mobile", c1))

	c2 := newTestClient("c2")
	evicted := reg.Put("u1", "desktop", c2)
	require.Equal(t, []*Client{c1}, evicted)

	got, ok := reg.GetAny("u1")
	require.True(t, ok)
	require.Same(t, c2, got)
	require.Equal(t, 1, reg.Len())
}

func TestRegistryMultiDeviceSlotsIndependent(t *testing.T) {
	reg := NewRegistry(true)

	mobile := newTestClient("m1")
	desktop := newTestClient("d1")
	require.Empty(t, reg.Put("u1", "mobile", mobile))
	require.Empty(t, reg.Put("u1", "desktop", desktop))
	require.Equal(t, 2, reg.Len())

	// 同槽位再登录只挤掉同槽位
	mobile2 := newTestClient("m2")
	evicted := reg.Put("u1", "mobile", mobile2)
	require.Equal(t, []*Client{mobile}, evicted)

	got, ok := reg.Get("u1", "desktop")
	require.True(t, ok)
	require.Same(t, desktop, got)
}

func TestRegistryRePutSameClientIsNoop(t *testing.T) {
	reg := NewRegistry(true)
	c := newTestClient("c1")
	require.Empty(t, reg.Put("u1", "mobile", c))
	require.Empty(t, reg.Put("u1", "mobile", c))
	require.Equal(t, 1, reg.Len())
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	reg := NewRegistry(true)
	c := newTestClient("c1")
	reg.Put("u1", "mobile", c)

	require.True(t, reg.Remove(c))
	require.False(t, reg.Remove(c))
	require.Equal(t, 0, reg.Len())
}

func TestRegistryRemoveSkipsReplacedSlot(t *testing.T) {
	reg := NewRegistry(true)
	old := newTestClient("old")
	reg.Put("u1", "mobile", old)
	reg.Put("u1", "mobile", newTestClient("new"))

	// 槽位已被新连接占用，旧连接的迟到摘除不能误伤
	require.False(t, reg.Remove(old))
	require.Equal(t, 1, reg.Len())
}

func TestRegistryPutIfVacantRejectsLiveOccupant(t *testing.T) {
	reg := NewRegistry(true)

	first := newTestClient("c1")
	old, ok := reg.PutIfVacant("u1", "mobile", first)
	require.True(t, ok)
	require.Nil(t, old)

	// 槽位被活连接占着：拒绝，返回占用者
	old, ok = reg.PutIfVacant("u1", "mobile", newTestClient("c2"))
	require.False(t, ok)
	require.Same(t, first, old)
	require.Equal(t, 1, reg.Len())

	// 同连接重入是幂等的
	old, ok = reg.PutIfVacant("u1", "mobile", first)
	require.True(t, ok)
	require.Nil(t, old)
	require.Equal(t, 1, reg.Len())
}

func TestRegistryPutIfVacantReplacesClosedOccupant(t *testing.T) {
	reg := NewRegistry(true)

	dead := newTestClient("dead")
	_, ok := reg.PutIfVacant("u1", "mobile", dead)
	require.True(t, ok)
	dead.Close()

	// 已关闭的占用者还没被收割：新连接直接顶掉
	fresh := newTestClient("fresh")
	old, ok := reg.PutIfVacant("u1", "mobile", fresh)
	require.True(t, ok)
	require.Nil(t, old)

	got, found := reg.Get("u1", "mobile")
	require.True(t, found)
	require.Same(t, fresh, got)
	// 迟到的摘除不能误伤新占用者
	require.False(t, reg.Remove(dead))
	require.Equal(t, 1, reg.Len())
}

func TestRegistryConcurrentPutIfVacantSingleOwner(t *testing.T) {
	reg := NewRegistry(true)

	const n = 64
	var wg sync.WaitGroup
	var okCount int32

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, ok := reg.PutIfVacant("u1", "mobile", newTestClient(fmt.Sprintf("c%d", i))); ok {
				atomic.AddInt32(&okCount, 1)
			}
		}(i)
	}
	wg.Wait()

	// 并发抢同一槽位只有一个成功，其余都被原子拒绝
	require.Equal(t, int32(1), atomic.LoadInt32(&okCount))
	require.Equal(t, 1, reg.Len())
}

func TestRegistryConcurrentPutsKeepOneWinner(t *testing.T) {
	reg := NewRegistry(true)

	const n = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	var evictedTotal int

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := reg.Put("u1", "mobile", newTestClient(fmt.Sprintf("c%d", i)))
			mu.Lock()
			evictedTotal += len(ev)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, reg.Len())
	require.Equal(t, n-1, evictedTotal)
}
