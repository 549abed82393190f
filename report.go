package filecheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrPipelineClosed 表示报告消费者已经退出
var ErrPipelineClosed = errors.New("report pipeline closed")

// MessageKind 是报告通道上消息的标签
type MessageKind int

const (
	MsgCycleStart MessageKind = iota + 1
	MsgFinding
	MsgCycleEnd
)

// Message 是报告通道上的一条完整消息
type Message struct {
	Kind    MessageKind
	Cycle   uint64
	Finding Finding
	Verdict Verdict
}

// Renderer 把一个周期的 Finding 渲染成报告
//
// first 为 true 表示这是报告中的第一个元素(前面不加分隔符)
type Renderer interface {
	Begin(cycle uint64) error
	Entry(f Finding, first bool) error
	End(v Verdict) error
}

// Pipeline 是从 orchestrator 到唯一报告消费者的有序通道
//
// 每个周期：Begin 发送周期开始标记，Emit 发送 Finding，End 发送周期结束标记并
// 阻塞到消费者渲染完成。同一时刻只有一个周期的报告在处理中。
type Pipeline struct {
	msgs     chan Message
	finished chan error
	quit     chan struct{}
	once     sync.Once
	renderer Renderer
	log      *slog.Logger

	// onFinding 在每条 Finding 被渲染后调用(用于metrics)，可为nil
	onFinding func(Finding)
}

// NewPipeline 创建报告通道，buffer 是通道缓冲大小
func NewPipeline(r Renderer, buffer int, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Pipeline{
		msgs:     make(chan Message, buffer),
		finished: make(chan error),
		quit:     make(chan struct{}),
		renderer: r,
		log:      log,
	}
}

// Begin 发送周期开始标记
func (p *Pipeline) Begin(cycle uint64) error {
	return p.send(Message{Kind: MsgCycleStart, Cycle: cycle})
}

// Emit 发送一条 Finding
func (p *Pipeline) Emit(f Finding) error {
	return p.send(Message{Kind: MsgFinding, Cycle: f.Cycle, Finding: f})
}

// End 发送周期结束标记并等待消费者完成渲染
func (p *Pipeline) End(cycle uint64, v Verdict) error {
	if err := p.send(Message{Kind: MsgCycleEnd, Cycle: cycle, Verdict: v}); err != nil {
		return err
	}
	select {
	case err := <-p.finished:
		return err
	case <-p.quit:
		return ErrPipelineClosed
	}
}

func (p *Pipeline) send(m Message) error {
	select {
	case p.msgs <- m:
		return nil
	case <-p.quit:
		return ErrPipelineClosed
	}
}

// Run 是唯一的报告消费者
//
// 两个周期之间它阻塞在周期开始标记上；一旦开始，它会一直渲染到周期结束标记，
// 不理会 ctx。渲染失败时返回错误并关闭通道，生产者随后得到 ErrPipelineClosed。
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.once.Do(func() { close(p.quit) })
	for {
		var start Message
		select {
		case start = <-p.msgs:
		case <-ctx.Done():
			return nil
		}
		if start.Kind != MsgCycleStart {
			return fmt.Errorf("report stream out of order: expected cycle start, got %d", start.Kind)
		}
		err := p.render(start.Cycle)
		if err != nil {
			p.log.Error("render report", "cycle", start.Cycle, "err", err)
			return err
		}
		// End 总在等待这个确认
		p.finished <- nil
	}
}

// render 消费一个周期的消息直到结束标记
func (p *Pipeline) render(cycle uint64) error {
	if err := p.renderer.Begin(cycle); err != nil {
		return fmt.Errorf("begin report: %w", err)
	}
	first := true
	for m := range p.msgs {
		switch m.Kind {
		case MsgFinding:
			if err := p.renderer.Entry(m.Finding, first); err != nil {
				return fmt.Errorf("write report entry %s: %w", m.Finding.Name, err)
			}
			first = false
			if p.onFinding != nil {
				p.onFinding(m.Finding)
			}
		case MsgCycleEnd:
			if m.Cycle != cycle {
				return fmt.Errorf("report stream out of order: end of cycle %d inside cycle %d", m.Cycle, cycle)
			}
			if err := p.renderer.End(m.Verdict); err != nil {
				return fmt.Errorf("finish report: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("report stream out of order: unexpected message %d inside cycle %d", m.Kind, cycle)
		}
	}
	return ErrPipelineClosed
}
