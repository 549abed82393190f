package filecheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// reportBuffer 是报告通道的缓冲大小
const reportBuffer = 64

// Daemon 持有一次运行的全部组件，生命周期等于进程生命周期
type Daemon struct {
	cfg *Config
	run string
	log *slog.Logger

	registry *Registry
	pool     *Pool
	queue    *Queue
	renderer *FileRenderer
	pipeline *Pipeline
	monitor  *Monitor
	watcher  *Watcher

	metrics  *Metrics
	promReg  *prometheus.Registry
	api      *API
	notifier *Notifier
}

// New 校验配置，建立基线文件集合并组装所有组件
//
// 目录无法列出或无法监听都是致命错误
func New(cfg *Config, log *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	run := uuid.NewString()
	log = log.With("run", run)

	reg, err := NewRegistry(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		run:      run,
		log:      log,
		registry: reg,
		pool:     NewPool(cfg.Workers),
		queue:    NewQueue(),
		renderer: NewFileRenderer(cfg.Report, cfg.Dir),
		metrics:  NewMetrics(),
		promReg:  prometheus.NewRegistry(),
	}
	d.pipeline = NewPipeline(d.renderer, reportBuffer, log)
	d.monitor = NewMonitor(reg, d.pool, d.queue, d.pipeline, log)

	d.metrics.Register(d.promReg)
	d.metrics.TrackedFiles.Set(float64(reg.Len()))
	d.pool.onChange = d.metrics.setInFlight
	d.pipeline.onFinding = d.metrics.observeFinding
	d.monitor.OnCycle(d.metrics.observeCycle)

	if cfg.Webhook != "" {
		d.notifier = NewNotifier(cfg.Webhook, run, cfg.Dir, cfg.Report, log)
		d.monitor.OnCycle(d.notifier.Observe)
	}
	d.api = NewAPI(d.monitor, reg, d.queue, d.pool, d.promReg, log)

	w, err := NewWatcher(cfg.Dir, d.queue, log)
	if err != nil {
		return nil, err
	}
	d.watcher = w
	return d, nil
}

// Monitor 返回 orchestrator
func (d *Daemon) Monitor() *Monitor { return d.monitor }

// Queue 返回重新校验请求队列
func (d *Daemon) Queue() *Queue { return d.queue }

// Registry 返回基线文件集合
func (d *Daemon) Registry() *Registry { return d.registry }

// Run 建立基线，然后运行所有后台组件直到 ctx 结束或发生致命错误
//
// sigCh 上的每个信号都会触发一次重新校验，可为nil。
// 首次计算期间 ctx 结束视为正常停止。被监控目录丢失时立即返回 ErrDirectoryLost，
// 不等待正在进行的周期和计算。
func (d *Daemon) Run(ctx context.Context, sigCh <-chan os.Signal) error {
	d.log.Info("Program started",
		"uid", os.Getuid(),
		"pid", os.Getpid(),
		"dir", d.cfg.Dir,
		"interval", d.cfg.IntervalDuration().String(),
		"report", d.cfg.Report,
		"workers", d.pool.Limit(),
		"files", d.registry.Len(),
	)

	if err := d.monitor.Establish(ctx); err != nil {
		_ = d.watcher.Close()
		if ctx.Err() != nil {
			d.log.Info("Program stopped during initial calculation", "uid", os.Getuid(), "pid", os.Getpid())
			return nil
		}
		return err
	}

	lost := make(chan error, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.pipeline.Run(gctx) })
	g.Go(func() error {
		err := d.watcher.Run(gctx)
		if errors.Is(err, ErrDirectoryLost) {
			lost <- err
		}
		return err
	})
	g.Go(func() error { return RunTicker(gctx, d.queue, d.cfg.IntervalDuration()) })
	if sigCh != nil {
		g.Go(func() error { return RunSignals(gctx, d.queue, sigCh) })
	}
	if d.cfg.Listen != "" {
		g.Go(func() error { return d.api.Serve(gctx, d.cfg.Listen) })
	}
	g.Go(func() error { return d.monitor.Run(gctx) })

	done := make(chan error, 1)
	go func() {
		err := g.Wait()
		d.pool.Wait()
		done <- err
	}()

	select {
	case err := <-lost:
		return err
	case err := <-done:
		if err != nil {
			return err
		}
	}
	d.log.Info("Program stopped", "uid", os.Getuid(), "pid", os.Getpid(), "cycles", d.monitor.Cycle())
	return nil
}
