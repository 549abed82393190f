//go:build linux

package filecheck

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
)

// startWatcher 在 dir 上启动 Watcher，测试结束时停止
func startWatcher(t *testing.T, dir string) *Queue {
	t.Helper()
	q := NewQueue()
	w, err := NewWatcher(dir, q, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return q
}

// expectTriggers 等待恰好 want 个请求，再确认之后没有多余的请求
func expectTriggers(t *testing.T, q *Queue, want int) []Trigger {
	t.Helper()
	var got []Trigger
	for len(got) < want {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		trig, err := q.Wait(ctx)
		cancel()
		if err != nil {
			t.Fatalf("got %d triggers; want %d", len(got), want)
		}
		got = append(got, trig)
	}
	time.Sleep(200 * time.Millisecond)
	if n := q.Len(); n != 0 {
		t.Fatalf("got %d extra triggers", n)
	}
	return got
}

// TestWatcherOneTriggerPerClosedWrite 一次打开、多次写入、关闭只产生一个请求
func TestWatcherOneTriggerPerClosedWrite(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tracked.txt", "initial")
	q := startWatcher(t, dir)

	f, err := os.OpenFile(filepath.Join(dir, "tracked.txt"), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		if _, err := f.Write([]byte("chunk\n")); err != nil {
			t.Fatal(err)
		}
	}

	// 写入过程中不应有任何请求
	time.Sleep(100 * time.Millisecond)
	if n := q.Len(); n != 0 {
		t.Fatalf("%d triggers queued before close", n)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	got := expectTriggers(t, q, 1)
	if got[0].Reason != "CLOSE_WRITE tracked.txt" {
		t.Errorf("reason = %q", got[0].Reason)
	}
}

// TestWatcherMovedIn 从别处移入的文件产生一个请求
func TestWatcherMovedIn(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	writeFile(t, outside, "incoming.txt", "data")
	q := startWatcher(t, dir)

	if err := os.Rename(filepath.Join(outside, "incoming.txt"), filepath.Join(dir, "incoming.txt")); err != nil {
		t.Fatal(err)
	}
	got := expectTriggers(t, q, 1)
	if got[0].Reason != "MOVED_TO incoming.txt" {
		t.Errorf("reason = %q", got[0].Reason)
	}
}

// TestWatcherRemoveAndMoveOut 删除与移出各产生一个请求
func TestWatcherRemoveAndMoveOut(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	writeFile(t, dir, "a.txt", "a")
	writeFile(t, dir, "b.txt", "b")
	q := startWatcher(t, dir)

	if err := os.Remove(filepath.Join(dir, "a.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(filepath.Join(dir, "b.txt"), filepath.Join(outside, "b.txt")); err != nil {
		t.Fatal(err)
	}
	expectTriggers(t, q, 2)
}

// appendInotifyEvent 按内核格式追加一个 inotify_event，名字以NUL填充
func appendInotifyEvent(buf []byte, mask uint32, name string) []byte {
	nameLen := 0
	if name != "" {
		nameLen = (len(name)/unix.SizeofInotifyEvent + 1) * unix.SizeofInotifyEvent
	}
	ev := make([]byte, unix.SizeofInotifyEvent+nameLen)
	raw := (*unix.InotifyEvent)(unsafe.Pointer(&ev[0]))
	raw.Mask = mask
	raw.Len = uint32(nameLen)
	copy(ev[unix.SizeofInotifyEvent:], name)
	return append(buf, ev...)
}

func TestParseInotify(t *testing.T) {
	var buf []byte
	buf = appendInotifyEvent(buf, unix.IN_CLOSE_WRITE, "a.txt")
	buf = appendInotifyEvent(buf, unix.IN_Q_OVERFLOW, "")
	buf = appendInotifyEvent(buf, unix.IN_MOVED_TO, "a-very-long-file-name.txt")
	buf = appendInotifyEvent(buf, unix.IN_IGNORED, "")
	buf = appendInotifyEvent(buf, unix.IN_CLOSE_WRITE, "never.txt")

	var got []string
	complete := parseInotify(buf, func(mask uint32, name string) bool {
		if mask&unix.IN_IGNORED != 0 {
			return false
		}
		got = append(got, name)
		return true
	})
	if complete {
		t.Error("parse should stop when the callback returns false")
	}
	if diff := cmp.Diff([]string{"a.txt", "", "a-very-long-file-name.txt"}, got); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	// 不完整的尾部事件被忽略
	got = nil
	one := appendInotifyEvent(nil, unix.IN_CLOSE_WRITE, "x")
	if !parseInotify(one[:len(one)-1], func(_ uint32, name string) bool {
		got = append(got, name)
		return true
	}) || len(got) != 0 {
		t.Errorf("truncated event delivered: %v", got)
	}
}
