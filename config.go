package filecheck

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig 表示配置缺失或取值非法
var ErrInvalidConfig = errors.New("invalid configuration")

// Config 是守护进程的配置
//
// Dir：被监控目录
// Interval：定时重新校验的间隔(秒)
// Report：报告文件路径
// Workers：同时进行的校验计算上限, 默认 55
// LogFile：日志文件，为空时写到stderr
// Debug：输出debug级别日志
// Listen：状态/metrics HTTP 监听地址，为空时不启动
// Webhook：周期失败时通知的URL，为空时不通知
type Config struct {
	Dir      string `yaml:"path"`
	Interval int    `yaml:"interval"`
	Report   string `yaml:"report"`
	Workers  int    `yaml:"workers"`
	LogFile  string `yaml:"log_file"`
	Debug    bool   `yaml:"debug"`
	Listen   string `yaml:"listen"`
	Webhook  string `yaml:"webhook"`
}

// DefaultConfig 返回带默认值的配置
func DefaultConfig() *Config {
	return &Config{
		Workers: DefaultWorkers,
	}
}

// LoadFile 从 YAML 文件读取配置，文件中没有的字段保留 cfg 中的值
func (cfg *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv 用 FILECHECK_* 环境变量覆盖配置
func (cfg *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("FILECHECK_PATH"); v != "" {
		cfg.Dir = v
	}
	if v := getenv("FILECHECK_INTERVAL"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: FILECHECK_INTERVAL %q", ErrInvalidConfig, v)
		}
		cfg.Interval = n
	}
	if v := getenv("FILECHECK_REPORT"); v != "" {
		cfg.Report = v
	}
	if v := getenv("FILECHECK_WORKERS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: FILECHECK_WORKERS %q", ErrInvalidConfig, v)
		}
		cfg.Workers = n
	}
	if v := getenv("FILECHECK_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := getenv("FILECHECK_DEBUG"); v != "" {
		cfg.Debug = v == "true" || v == "1"
	}
	if v := getenv("FILECHECK_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := getenv("FILECHECK_WEBHOOK"); v != "" {
		cfg.Webhook = v
	}
	return nil
}

// Validate 检查必填项并规范化取值
func (cfg *Config) Validate() error {
	if cfg.Dir == "" {
		return fmt.Errorf("%w: path not set", ErrInvalidConfig)
	}
	if d := strings.TrimRight(cfg.Dir, "/"); d != "" {
		cfg.Dir = d
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidConfig, cfg.Interval)
	}
	if cfg.Report == "" {
		return fmt.Errorf("%w: report not set", ErrInvalidConfig)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return nil
}

// IntervalDuration 返回定时间隔
func (cfg *Config) IntervalDuration() time.Duration {
	return time.Duration(cfg.Interval) * time.Second
}

// NewLogger 创建 JSON 结构化日志，写到 LogFile(若设置)或 stderr
//
// 返回的 io.Closer 关闭日志文件，没有文件时是空操作
func NewLogger(cfg *Config) (*slog.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", cfg.LogFile, err)
		}
		out = f
		closer = f
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
