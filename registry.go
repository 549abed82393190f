package filecheck

import (
	"fmt"
	"os"
	"sync"
)

// RecordState 是 FileRecord 的状态
type RecordState int

const (
	// StatePending 等待首次(基线)计算
	StatePending RecordState = iota
	// StateTracked 基线已建立
	StateTracked
	// StateFailed 最近一次计算发生读错误
	StateFailed
)

func (s RecordState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateTracked:
		return "tracked"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("RecordState(%d)", int(s))
	}
}

// FileRecord 描述启动时存在于监控目录中的一个文件
//
// Name：目录内的文件名，创建后不再改变
// Baseline：首次计算得到的基线校验值，只写一次
// Current：最近一个周期计算得到的校验值
// State：记录状态
// LastSeen：最近一次在目录列表中出现并被派发计算的周期号
// Size：最近一次计算读取的字节数
type FileRecord struct {
	Name     string
	Baseline uint32
	Current  uint32
	State    RecordState
	LastSeen uint64
	Size     int64
}

// Handle 是记录在 Registry 中的下标，worker 和 orchestrator 都通过它引用记录
type Handle int

// Registry 是启动时建立的基线文件集合
//
// 文件集合在 NewRegistry 之后不再增删，之后出现的文件永远不会被加入。
// index 只读，可并发查找；mu 保护记录中的可变字段。
type Registry struct {
	dir     string
	mu      sync.RWMutex
	records []FileRecord
	index   map[string]Handle
}

// NewRegistry 列出 dir 中的普通文件，为每个文件创建一个 Pending 记录(按列表顺序)
func NewRegistry(dir string) (*Registry, error) {
	names, err := listRegularFiles(dir)
	if err != nil {
		return nil, err
	}
	return newRegistry(dir, names), nil
}

func newRegistry(dir string, names []string) *Registry {
	r := &Registry{
		dir:     dir,
		records: make([]FileRecord, 0, len(names)),
		index:   make(map[string]Handle, len(names)),
	}
	for _, name := range names {
		if _, dup := r.index[name]; dup {
			continue
		}
		r.index[name] = Handle(len(r.records))
		r.records = append(r.records, FileRecord{Name: name, State: StatePending})
	}
	return r
}

// Dir 返回被监控目录
func (r *Registry) Dir() string { return r.dir }

// Len 返回记录数，启动后恒定
func (r *Registry) Len() int { return len(r.records) }

// Lookup 按文件名查找记录
func (r *Registry) Lookup(name string) (Handle, bool) {
	h, ok := r.index[name]
	return h, ok
}

// Handles 按注册顺序返回所有句柄
func (r *Registry) Handles() []Handle {
	out := make([]Handle, len(r.records))
	for i := range out {
		out[i] = Handle(i)
	}
	return out
}

// Record 返回记录的一份拷贝
func (r *Registry) Record(h Handle) FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[h]
}

// Records 返回所有记录的拷贝，用于状态展示
func (r *Registry) Records() []FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FileRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Stamp 记录 h 在 cycle 中被看到。只由 orchestrator 调用。
func (r *Registry) Stamp(h Handle, cycle uint64) {
	r.mu.Lock()
	r.records[h].LastSeen = cycle
	r.mu.Unlock()
}

// apply 写入一次计算结果。只由该记录本周期的 worker 调用。
//
// Pending 记录成功时设置基线(且仅此一次)，之后只更新 Current。
func (r *Registry) apply(h Handle, sum uint32, size int64, err error) FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &r.records[h]
	if err != nil {
		rec.State = StateFailed
		return *rec
	}
	if rec.State == StatePending {
		rec.Baseline = sum
	}
	rec.Current = sum
	rec.Size = size
	rec.State = StateTracked
	return *rec
}

// listRegularFiles 按目录列表顺序返回 dir 下的普通文件名(不递归)
func listRegularFiles(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open dir %s: %w", dir, err)
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
