package gateway

import (
	"IMProject/tools/safe"

	"github.com/pkg/errors"
)

// Pool 有界工作池：会话目录等阻塞调用全部丢进来跑，
// 读协程永远不直接等 Redis。队列打满返回错误，由调用方降级。
type Pool struct {
	jobs chan func()
}

func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 16
	}
	if queue <= 0 {
		queue = 512
	}
	p := &Pool{jobs: make(chan func(), queue)}
	for i := 0; i < workers; i++ {
		safe.SafeGo("pool-worker", func() {
			for job := range p.jobs {
				job()
			}
		})
	}
	return p
}

// Submit 非阻塞提交；满了直接报错（背压）
func (p *Pool) Submit(job func()) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		return errors.New("worker pool queue full")
	}
}

func (p *Pool) Close() { close(p.jobs) }
