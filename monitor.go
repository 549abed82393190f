package filecheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrBaseline 表示无法建立基线(首次计算中任一文件失败)
var ErrBaseline = errors.New("initial calculation failed")

// Phase 是 orchestrator 在一个周期中的阶段
type Phase int32

const (
	// PhaseIdle 等待下一个重新校验请求
	PhaseIdle Phase = iota
	// PhaseListing 列出被监控目录
	PhaseListing
	// PhaseDispatching 报告新文件并为已跟踪文件派发计算
	PhaseDispatching
	// PhaseJoining 按基线顺序收集每条记录的结果
	PhaseJoining
	// PhaseReconciled 所有结果已收齐，结论已确定
	PhaseReconciled
	// PhaseReporting 等待报告消费者写完报告
	PhaseReporting
)

var phaseNames = [...]string{"idle", "listing", "dispatching", "joining", "reconciled", "reporting"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// HashFunc 计算一个文件的校验值，默认是 ChecksumFile
type HashFunc func(path string) (uint32, int64, error)

// Monitor 驱动校验周期：列目录、派发计算、与基线对账、交给报告通道
type Monitor struct {
	reg   *Registry
	pool  *Pool
	queue *Queue
	pipe  *Pipeline
	log   *slog.Logger
	hash  HashFunc

	cycle atomic.Uint64
	phase atomic.Int32
	last  atomic.Pointer[CycleSummary]

	obsMu     sync.Mutex
	observers []func(CycleSummary)
}

// NewMonitor 组装 orchestrator
func NewMonitor(reg *Registry, pool *Pool, q *Queue, pipe *Pipeline, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		reg:   reg,
		pool:  pool,
		queue: q,
		pipe:  pipe,
		log:   log,
		hash:  ChecksumFile,
	}
}

// SetHashFunc 替换校验函数
func (m *Monitor) SetHashFunc(fn HashFunc) { m.hash = fn }

// OnCycle 注册一个在每个周期报告完成后调用的回调
func (m *Monitor) OnCycle(fn func(CycleSummary)) {
	m.obsMu.Lock()
	m.observers = append(m.observers, fn)
	m.obsMu.Unlock()
}

// Cycle 返回最近开始的周期号，0 表示还没有常规周期
func (m *Monitor) Cycle() uint64 { return m.cycle.Load() }

// Phase 返回当前阶段
func (m *Monitor) Phase() Phase { return Phase(m.phase.Load()) }

// Last 返回最近完成的周期汇总，没有时返回 nil
func (m *Monitor) Last() *CycleSummary { return m.last.Load() }

func (m *Monitor) setPhase(p Phase) { m.phase.Store(int32(p)) }

func (m *Monitor) path(name string) string {
	return filepath.Join(m.reg.Dir(), name)
}

// Establish 执行首次计算，为每条记录建立基线
//
// 任一文件计算失败都会返回 ErrBaseline：无法建立可信基线时不能继续运行
func (m *Monitor) Establish(ctx context.Context) error {
	handles := m.reg.Handles()
	errs := make([]error, len(handles))
	var wg sync.WaitGroup
	for _, h := range handles {
		name := m.reg.Record(h).Name
		wg.Add(1)
		err := m.pool.Submit(ctx, func() {
			defer wg.Done()
			sum, n, err := m.hash(m.path(name))
			m.reg.apply(h, sum, n, err)
			errs[h] = err
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("%w: %v", ErrBaseline, err)
		}
	}
	wg.Wait()

	var total int64
	for _, h := range handles {
		rec := m.reg.Record(h)
		if errs[h] != nil {
			m.log.Error("Initial calculation: FAIL", "path", m.path(rec.Name), "err", errs[h])
			return fmt.Errorf("%w: %s: %w", ErrBaseline, rec.Name, errs[h])
		}
		total += rec.Size
	}
	m.log.Info("Initial calculation finished. Service ready.",
		"dir", m.reg.Dir(),
		"files", len(handles),
		"bytes", humanize.IBytes(uint64(total)),
	)
	return nil
}

// Run 逐个取出重新校验请求并执行周期，直到 ctx 结束
//
// 正在进行的周期会完整结束(包括等待报告写完)后才返回
func (m *Monitor) Run(ctx context.Context) error {
	for {
		trig, err := m.queue.Wait(ctx)
		if err != nil {
			return nil
		}
		m.log.Debug("re-verification requested", "source", trig.Source, "reason", trig.Reason, "queued", m.queue.Len())
		if _, err := m.RunCycle(context.WithoutCancel(ctx), trig); err != nil {
			if errors.Is(err, ErrPipelineClosed) && ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// RunCycle 执行一个完整的校验周期
//
// 报告中的顺序：先是 Dispatching 阶段按目录列表顺序发现的新文件，
// 然后是 Joining 阶段按基线顺序的各记录结果。
func (m *Monitor) RunCycle(ctx context.Context, trig Trigger) (CycleSummary, error) {
	seq := m.cycle.Add(1)
	started := time.Now()
	defer m.setPhase(PhaseIdle)

	summary := CycleSummary{
		Cycle:     seq,
		Trigger:   trig.Source,
		StartedAt: started,
		Counts:    make(map[string]int),
	}
	ok := true
	emit := func(f Finding) error {
		summary.Findings++
		summary.Counts[f.Kind.String()]++
		if !f.OK() {
			ok = false
			summary.Failures = append(summary.Failures, f.Name+": "+f.Status())
			m.logFailure(f)
		}
		return m.pipe.Emit(f)
	}

	m.setPhase(PhaseListing)
	names, err := listRegularFiles(m.reg.Dir())
	if err != nil {
		return summary, err
	}

	if err := m.pipe.Begin(seq); err != nil {
		return summary, err
	}

	m.setPhase(PhaseDispatching)
	slots := make([]chan Finding, m.reg.Len())
	for _, name := range names {
		h, tracked := m.reg.Lookup(name)
		if !tracked {
			if err := emit(Finding{Kind: Unexpected, Cycle: seq, Name: name}); err != nil {
				return summary, err
			}
			continue
		}
		m.reg.Stamp(h, seq)
		slot := make(chan Finding, 1)
		slots[h] = slot
		if err := m.pool.Submit(ctx, m.verify(h, name, seq, slot)); err != nil {
			return summary, err
		}
	}

	m.setPhase(PhaseJoining)
	for _, h := range m.reg.Handles() {
		rec := m.reg.Record(h)
		var f Finding
		if rec.LastSeen != seq {
			f = Finding{Kind: Missing, Cycle: seq, Name: rec.Name, Baseline: rec.Baseline, Current: rec.Current}
		} else {
			f = <-slots[h]
		}
		if err := emit(f); err != nil {
			return summary, err
		}
	}

	m.setPhase(PhaseReconciled)
	verdict := Verdict(ok)
	summary.Verdict = verdict.String()
	if ok {
		m.log.Info("Integrity check: OK", "cycle", seq, "files", m.reg.Len())
	}

	m.setPhase(PhaseReporting)
	if err := m.pipe.End(seq, verdict); err != nil {
		return summary, err
	}

	summary.Duration = time.Since(started)
	m.log.Debug("cycle finished", "cycle", seq, "verdict", summary.Verdict, "elapsed", summary.Duration)
	m.last.Store(&summary)
	m.notify(summary)
	return summary, nil
}

// verify 返回一个计算记录 h 并把唯一的 Finding 放入 slot 的任务
func (m *Monitor) verify(h Handle, name string, seq uint64, slot chan<- Finding) func() {
	return func() {
		sum, n, err := m.hash(m.path(name))
		rec := m.reg.apply(h, sum, n, err)
		f := Finding{Cycle: seq, Name: name, Baseline: rec.Baseline, Current: rec.Current}
		switch {
		case err != nil:
			f.Kind = ComputeFailed
			f.Err = err
		case rec.Current == rec.Baseline:
			f.Kind = Match
		default:
			f.Kind = Mismatch
		}
		slot <- f
	}
}

func (m *Monitor) logFailure(f Finding) {
	path := m.path(f.Name)
	switch f.Kind {
	case Mismatch:
		m.log.Warn("Integrity check: FAIL", "cycle", f.Cycle, "path", path,
			"baseline", FormatDigest(f.Baseline), "current", FormatDigest(f.Current))
	case ComputeFailed:
		m.log.Warn("Integrity check: FAIL", "cycle", f.Cycle, "path", path, "err", f.Err)
	default:
		m.log.Warn("Integrity check: FAIL", "cycle", f.Cycle, "path", path, "status", f.Status())
	}
}

func (m *Monitor) notify(s CycleSummary) {
	m.obsMu.Lock()
	obs := append([]func(CycleSummary){}, m.observers...)
	m.obsMu.Unlock()
	for _, fn := range obs {
		fn(s)
	}
}
