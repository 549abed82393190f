package filecheck

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type response struct {
	Ok    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type recordStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Baseline string `json:"baseline_crc32"`
	Current  string `json:"current_crc32"`
	LastSeen uint64 `json:"last_seen_cycle"`
}

type statusResponse struct {
	Dir       string         `json:"dir"`
	Phase     string         `json:"phase"`
	Cycle     uint64         `json:"cycle"`
	Queued    int            `json:"queued"`
	InFlight  int64          `json:"hashes_in_flight"`
	LastCycle *CycleSummary  `json:"last_cycle,omitempty"`
	Records   []recordStatus `json:"records,omitempty"`
}

// API 是守护进程的只读状态接口，外加一个手动触发重新校验的入口
type API struct {
	monitor  *Monitor
	registry *Registry
	queue    *Queue
	pool     *Pool
	gatherer prometheus.Gatherer
	log      *slog.Logger
}

func NewAPI(m *Monitor, reg *Registry, q *Queue, pool *Pool, g prometheus.Gatherer, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{monitor: m, registry: reg, queue: q, pool: pool, gatherer: g, log: log}
}

// Router 返回注册好路由的 gin.Engine
func (a *API) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	a.RegisterRoutes(router)
	return router
}

func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", a.healthz)
	router.GET("/status", a.status)
	router.POST("/trigger", a.trigger)
	if a.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}
}

func (a *API) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, response{Ok: true})
}

func (a *API) status(c *gin.Context) {
	st := statusResponse{
		Dir:       a.registry.Dir(),
		Phase:     a.monitor.Phase().String(),
		Cycle:     a.monitor.Cycle(),
		Queued:    a.queue.Len(),
		InFlight:  a.pool.InFlight(),
		LastCycle: a.monitor.Last(),
	}
	if c.Query("records") == "true" {
		for _, rec := range a.registry.Records() {
			st.Records = append(st.Records, recordStatus{
				Name:     rec.Name,
				State:    rec.State.String(),
				Baseline: FormatDigest(rec.Baseline),
				Current:  FormatDigest(rec.Current),
				LastSeen: rec.LastSeen,
			})
		}
	}
	c.JSON(http.StatusOK, response{Ok: true, Data: st})
}

func (a *API) trigger(c *gin.Context) {
	a.queue.Post(SourceAPI, c.ClientIP())
	a.log.Info("re-verification requested over http", "remote", c.ClientIP())
	c.JSON(http.StatusAccepted, response{Ok: true, Data: gin.H{"queued": a.queue.Len()}})
}

// Serve 在 addr 上运行 HTTP 服务，直到 ctx 结束
func (a *API) Serve(ctx context.Context, addr string) error {
	s := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()
	a.log.Info("status server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
