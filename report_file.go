package filecheck

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ReportEntry 是报告文件中的一个元素
//
// 对于已跟踪文件，BaselineCRC32/CurrentCRC32 为 0xXXXXXXXX，Status 为 OK 或 FAIL；
// 对于异常(NEW / DELETED / 读错误)，只有 Path 与 Status。
type ReportEntry struct {
	Path          string `json:"path"`
	BaselineCRC32 string `json:"etalon_crc32,omitempty"`
	CurrentCRC32  string `json:"result_crc32,omitempty"`
	Status        string `json:"status"`
}

// EntryFor 把 Finding 转换为报告条目，dir 是被监控目录
func EntryFor(dir string, f Finding) ReportEntry {
	e := ReportEntry{
		Path:   strings.TrimSuffix(dir, "/") + "/" + f.Name,
		Status: f.Status(),
	}
	if f.HasDigests() {
		e.BaselineCRC32 = FormatDigest(f.Baseline)
		e.CurrentCRC32 = FormatDigest(f.Current)
	}
	return e
}

// FileRenderer 把每个周期的报告写成一个 JSON 列表文件
//
// 每个周期先写入同目录下的临时文件，End 时替换目标文件，
// 读者永远不会看到写了一半的报告。
type FileRenderer struct {
	path string
	dir  string

	tmp *os.File
	w   *bufio.Writer
}

// NewFileRenderer 创建写入 path 的渲染器，dir 是被监控目录(用于条目路径)
func NewFileRenderer(path, dir string) *FileRenderer {
	return &FileRenderer{path: path, dir: dir}
}

// Path 返回报告文件路径
func (r *FileRenderer) Path() string { return r.path }

func (r *FileRenderer) Begin(cycle uint64) error {
	r.discard()
	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create report %s: %w", r.path, err)
	}
	r.tmp = tmp
	r.w = bufio.NewWriter(tmp)
	_, err = r.w.WriteString("[\n")
	return err
}

func (r *FileRenderer) Entry(f Finding, first bool) error {
	if r.w == nil {
		return errors.New("report entry written outside of a cycle")
	}
	data, err := json.Marshal(EntryFor(r.dir, f))
	if err != nil {
		return err
	}
	sep := byte(',')
	if first {
		sep = ' '
	}
	if err := r.w.WriteByte(sep); err != nil {
		return err
	}
	if _, err := r.w.Write(data); err != nil {
		return err
	}
	return r.w.WriteByte('\n')
}

func (r *FileRenderer) End(Verdict) error {
	if r.w == nil {
		return errors.New("report finished outside of a cycle")
	}
	defer r.discard()
	if _, err := r.w.WriteString("]\n"); err != nil {
		return err
	}
	if err := r.w.Flush(); err != nil {
		return err
	}
	if err := r.tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := r.tmp.Sync(); err != nil {
		return err
	}
	name := r.tmp.Name()
	if err := r.tmp.Close(); err != nil {
		return err
	}
	r.tmp = nil
	if err := os.Rename(name, r.path); err != nil {
		return fmt.Errorf("replace report %s: %w", r.path, err)
	}
	return nil
}

// discard 清理未完成的临时文件
func (r *FileRenderer) discard() {
	if r.tmp != nil {
		name := r.tmp.Name()
		_ = r.tmp.Close()
		_ = os.Remove(name)
	}
	r.tmp = nil
	r.w = nil
}

// ParseReport 解析报告文件内容
func ParseReport(rd io.Reader) ([]ReportEntry, error) {
	var entries []ReportEntry
	if err := json.NewDecoder(rd).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return entries, nil
}

// ReadReport 读取并解析 path 处的报告文件
func ReadReport(path string) ([]ReportEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()
	return ParseReport(f)
}
