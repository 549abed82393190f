package filecheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ErrDirectoryLost 表示被监控目录本身被删除或移走
var ErrDirectoryLost = errors.New("monitored directory lost")

// Watcher 监听被监控目录(不递归)，每个相关事件向 Queue 投递一个请求
//
// fsWatcher：底层的 fsnotify.Watcher，负责删除、移出与目录本身的丢失
// closes：写完关闭与移入事件的 inotify 监听(仅 Linux)
// queue：请求队列
// dir：被监控目录(已清理的路径)
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	closes    *closeWatch
	queue     *Queue
	dir       string
	log       *slog.Logger
}

// NewWatcher 创建并注册对 dir 的监听
func NewWatcher(dir string, q *Queue, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	clean := filepath.Clean(dir)
	if err := fsw.Add(clean); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", clean, err)
	}
	cw, err := newCloseWatch(clean)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", clean, err)
	}
	return &Watcher{fsWatcher: fsw, closes: cw, queue: q, dir: clean, log: log}, nil
}

// Run 不断读取事件，直到 ctx 结束或目录丢失
//
// 目录本身被删除/移走时返回 ErrDirectoryLost，调用方应立即以失败退出
func (w *Watcher) Run(ctx context.Context) error {
	closed := make(chan struct{})
	if w.closes != nil {
		go func() {
			defer close(closed)
			w.closes.run(w.queue, w.log)
		}()
	} else {
		close(closed)
	}
	defer func() {
		_ = w.Close()
		<-closed
	}()

	for {
		select {
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if err := w.handle(ev); err != nil {
				return err
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.handleError(err)

		case <-ctx.Done():
			return nil
		}
	}
}

// Close 停止监听，可重复调用
func (w *Watcher) Close() error {
	err := w.fsWatcher.Close()
	if w.closes != nil {
		if cerr := w.closes.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

func (w *Watcher) handle(ev fsnotify.Event) error {
	if filepath.Clean(ev.Name) == w.dir {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			w.log.Error("monitored directory deleted", "dir", w.dir, "op", ev.Op.String())
			return fmt.Errorf("%w: %s (%s)", ErrDirectoryLost, w.dir, ev.Op)
		}
		return nil
	}
	if ev.Op&watchOps == 0 {
		return nil
	}
	w.log.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
	w.queue.Post(SourceWatch, ev.Op.String()+" "+filepath.Base(ev.Name))
	return nil
}

// handleError 记录 fsnotify 错误；事件队列溢出时丢失的变化无法得知，投递一次请求重新校验
func (w *Watcher) handleError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		w.log.Warn("fsnotify event overflow", "dir", w.dir, "err", err)
		w.queue.Post(SourceWatch, "overflow")
		return
	}
	w.log.Warn("fsnotify error", "dir", w.dir, "err", err)
}
