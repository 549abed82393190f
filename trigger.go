package filecheck

import (
	"context"
	"os"
	"sync"
	"time"
)

// Source 表示一次重新校验请求的来源
type Source string

const (
	SourceTimer  Source = "timer"
	SourceWatch  Source = "watch"
	SourceSignal Source = "signal"
	SourceAPI    Source = "api"
)

// Trigger 是一次重新校验请求
type Trigger struct {
	Source Source
	Reason string
	At     time.Time
}

// Queue 是重新校验请求的计数队列
//
// 多个生产者 Post，orchestrator 逐个 Wait。排队的请求不会合并：
// 每次 Post 都对应之后的一个完整周期。
type Queue struct {
	mu      sync.Mutex
	pending []Trigger
	ready   chan struct{}
	now     func() time.Time
}

func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		now:   time.Now,
	}
}

// Post 追加一个请求，从不阻塞
func (q *Queue) Post(src Source, reason string) {
	q.mu.Lock()
	q.pending = append(q.pending, Trigger{Source: src, Reason: reason, At: q.now()})
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Wait 阻塞直到至少有一个请求，取出最早的一个
func (q *Queue) Wait(ctx context.Context) (Trigger, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Trigger{}, err
		}
		q.mu.Lock()
		if len(q.pending) > 0 {
			t := q.pending[0]
			q.pending[0] = Trigger{}
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return t, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return Trigger{}, ctx.Err()
		}
	}
}

// Len 返回排队中的请求数
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// RunTicker 每隔 interval 投递一次请求，直到 ctx 结束
func RunTicker(ctx context.Context, q *Queue, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			q.Post(SourceTimer, "interval")
		case <-ctx.Done():
			return nil
		}
	}
}

// RunSignals 把 sigCh 上收到的每个信号转换为一次重新校验请求
//
// 调用方负责 signal.Notify(sigCh, syscall.SIGUSR1)
func RunSignals(ctx context.Context, q *Queue, sigCh <-chan os.Signal) error {
	for {
		select {
		case sig := <-sigCh:
			q.Post(SourceSignal, sig.String())
		case <-ctx.Done():
			return nil
		}
	}
}
