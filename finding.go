package filecheck

import (
	"errors"
	"fmt"
	"time"
)

// FindingKind 是一条 Finding 的类型
type FindingKind int

const (
	// Match 校验值与基线一致
	Match FindingKind = iota + 1
	// Mismatch 校验值与基线不一致
	Mismatch
	// ComputeFailed 计算已跟踪文件时发生I/O错误
	ComputeFailed
	// Unexpected 目录中存在但不在基线中的文件
	Unexpected
	// Missing 基线中的文件本周期不在目录中
	Missing
)

var kindNames = map[FindingKind]string{
	Match:         "match",
	Mismatch:      "mismatch",
	ComputeFailed: "compute_error",
	Unexpected:    "unexpected",
	Missing:       "missing",
}

func (k FindingKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("FindingKind(%d)", int(k))
}

// 报告中的状态字符串
const (
	StatusOK      = "OK"
	StatusFail    = "FAIL"
	StatusNew     = "NEW"
	StatusDeleted = "DELETED"
)

// Finding 是一个周期内关于一个文件的一条观察
//
// Baseline/Current 只对 Match 与 Mismatch 有意义；Err 只对 ComputeFailed 有意义
type Finding struct {
	Kind     FindingKind
	Cycle    uint64
	Name     string
	Baseline uint32
	Current  uint32
	Err      error
}

// OK 表示该 Finding 不会让周期失败
func (f Finding) OK() bool { return f.Kind == Match }

// Status 返回报告中使用的状态字符串
func (f Finding) Status() string {
	switch f.Kind {
	case Match:
		return StatusOK
	case Mismatch:
		return StatusFail
	case Unexpected:
		return StatusNew
	case Missing:
		return StatusDeleted
	case ComputeFailed:
		var ce *ComputeError
		if errors.As(f.Err, &ce) {
			return ce.Description()
		}
		if f.Err != nil {
			return f.Err.Error()
		}
		return "compute error"
	default:
		return f.Kind.String()
	}
}

// HasDigests 表示该条目是否携带校验值
func (f Finding) HasDigests() bool {
	return f.Kind == Match || f.Kind == Mismatch
}

// Verdict 是一个周期的总体结论
type Verdict bool

const (
	VerdictOK   Verdict = true
	VerdictFail Verdict = false
)

func (v Verdict) String() string {
	if v {
		return "ok"
	}
	return "fail"
}

// CycleSummary 汇总一个周期的结果
type CycleSummary struct {
	Cycle     uint64         `json:"cycle"`
	Trigger   Source         `json:"trigger"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration_ns"`
	Verdict   string         `json:"verdict"`
	Counts    map[string]int `json:"counts"`
	Findings  int            `json:"findings"`
	Failures  []string       `json:"failures,omitempty"`
}

// OK 报告该周期是否所有 Finding 都是 Match
func (s CycleSummary) OK() bool { return s.Verdict == VerdictOK.String() }
