package filecheck

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultWorkers 是同时进行的校验计算的默认上限
const DefaultWorkers = 55

// Pool 是有上限的哈希计算池
//
// Submit 只在所有许可都被占用时阻塞调用方；任务本身在独立的goroutine中运行，
// 结束时释放许可。
type Pool struct {
	sem   *semaphore.Weighted
	limit int64
	wg    sync.WaitGroup

	inFlight atomic.Int64
	peak     atomic.Int64

	// onChange 在并发数变化时被调用(用于metrics)，可为nil
	onChange func(n int64)
}

// NewPool 创建一个上限为 limit 的池，limit <= 0 时使用 DefaultWorkers
func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = DefaultWorkers
	}
	return &Pool{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: int64(limit),
	}
}

// Limit 返回并发上限
func (p *Pool) Limit() int { return int(p.limit) }

// Submit 获取一个许可后在新的goroutine中执行 job
//
// 若 ctx 在等待许可期间被取消，job 不会执行并返回 ctx.Err()
func (p *Pool) Submit(ctx context.Context, job func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.wg.Add(1)
	p.enter()
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer p.leave()
		job()
	}()
	return nil
}

// Wait 等待所有已提交的任务结束
func (p *Pool) Wait() { p.wg.Wait() }

// InFlight 返回当前正在运行的任务数
func (p *Pool) InFlight() int64 { return p.inFlight.Load() }

// Peak 返回运行以来同时运行任务数的最大值
func (p *Pool) Peak() int64 { return p.peak.Load() }

func (p *Pool) enter() {
	n := p.inFlight.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	if p.onChange != nil {
		p.onChange(n)
	}
}

func (p *Pool) leave() {
	n := p.inFlight.Add(-1)
	if p.onChange != nil {
		p.onChange(n)
	}
}
