//go:build !linux

package filecheck

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// watchOps 是会触发重新校验的子文件事件；没有 IN_CLOSE_WRITE 的平台上退回到 Write/Create
const watchOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

type closeWatch struct{}

func newCloseWatch(string) (*closeWatch, error) { return nil, nil }

func (*closeWatch) run(*Queue, *slog.Logger) {}

func (*closeWatch) Close() error { return nil }
