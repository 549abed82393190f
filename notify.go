package filecheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const applicationJSON = "application/json"

// Alert 是发送到 webhook 的周期失败通知
type Alert struct {
	Run     string       `json:"run"`
	Dir     string       `json:"dir"`
	Report  string       `json:"report"`
	Summary CycleSummary `json:"summary"`
}

// Notifier 在周期失败时把汇总 POST 到 webhook
type Notifier struct {
	url    string
	run    string
	dir    string
	report string
	http   *retryablehttp.Client
	log    *slog.Logger
}

// NewNotifier 创建通知器，run 是本次运行的ID
func NewNotifier(url, run, dir, report string, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	return &Notifier{url: url, run: run, dir: dir, report: report, http: client, log: log}
}

// Observe 是 Monitor.OnCycle 回调；只通知失败的周期，发送在后台进行
func (n *Notifier) Observe(s CycleSummary) {
	if s.OK() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := n.Send(ctx, s); err != nil {
			n.log.Warn("webhook delivery failed", "url", n.url, "cycle", s.Cycle, "err", err)
		}
	}()
}

// Send 同步发送一条通知
func (n *Notifier) Send(ctx context.Context, s CycleSummary) error {
	body, err := json.Marshal(Alert{Run: n.run, Dir: n.dir, Report: n.report, Summary: s})
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", applicationJSON)

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}
