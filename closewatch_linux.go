//go:build linux

package filecheck

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"
)

// watchOps 是 fsnotify 上会触发重新校验的子文件事件
//
// 写完关闭(IN_CLOSE_WRITE)与移入(IN_MOVED_TO)由 closeWatch 负责，一次写入只对应一个请求。
const watchOps = fsnotify.Remove | fsnotify.Rename

// closeWatchMask 是 closeWatch 注册的 inotify 事件
const closeWatchMask = unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_ONLYDIR

// closeWatch 是对被监控目录的第二个 inotify 实例，只关心写完关闭与移入
//
// fd 以非阻塞方式打开并交给 os.File，Read 由 runtime poller 驱动，Close 会让阻塞中的 Read 返回。
type closeWatch struct {
	file *os.File
	dir  string
}

func newCloseWatch(dir string) (*closeWatch, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}
	if _, err := unix.InotifyAddWatch(fd, dir, closeWatchMask); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("inotify_add_watch %s: %w", dir, err)
	}
	return &closeWatch{file: os.NewFile(uintptr(fd), "inotify"), dir: dir}, nil
}

// run 读取事件并为每个事件投递一个请求，直到 Close 或监听被内核移除
func (c *closeWatch) run(q *Queue, log *slog.Logger) {
	var buf [unix.SizeofInotifyEvent * 256]byte
	for {
		n, err := c.file.Read(buf[:])
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				log.Warn("inotify read failed", "dir", c.dir, "err", err)
			}
			return
		}
		if !parseInotify(buf[:n], func(mask uint32, name string) bool {
			switch {
			case mask&unix.IN_Q_OVERFLOW != 0:
				log.Warn("inotify queue overflow", "dir", c.dir)
				q.Post(SourceWatch, "overflow")
			case mask&unix.IN_IGNORED != 0:
				return false
			case mask&unix.IN_CLOSE_WRITE != 0:
				log.Debug("change detected", "path", name, "op", "CLOSE_WRITE")
				q.Post(SourceWatch, "CLOSE_WRITE "+name)
			case mask&unix.IN_MOVED_TO != 0:
				log.Debug("change detected", "path", name, "op", "MOVED_TO")
				q.Post(SourceWatch, "MOVED_TO "+name)
			}
			return true
		}) {
			return
		}
	}
}

// parseInotify 依次把 buf 中的 inotify_event 交给 fn，fn 返回 false 时停止
func parseInotify(buf []byte, fn func(mask uint32, name string) bool) bool {
	for off := 0; off+unix.SizeofInotifyEvent <= len(buf); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
		end := off + unix.SizeofInotifyEvent + int(raw.Len)
		if end > len(buf) {
			return true
		}
		name := buf[off+unix.SizeofInotifyEvent : end]
		name = bytes.TrimRight(name, "\x00")
		if !fn(raw.Mask, string(name)) {
			return false
		}
		off = end
	}
	return true
}

func (c *closeWatch) Close() error {
	return c.file.Close()
}
