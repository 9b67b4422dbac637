package server

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loykin/kudoman/internal/store"
)

// Router exposes read-only observability endpoints for a running collector:
//
//	GET /status   collector identity and series summary (JSON)
//	GET /chart    the most recently rendered chart PNG
//	GET /metrics  Prometheus metrics
//
// It never writes to the store; handlers read whatever state the collector
// loop last published.
type Router struct {
	st        *store.Store
	chartPath string
	started   time.Time
}

func NewRouter(st *store.Store, chartPath string) *Router {
	return &Router{st: st, chartPath: chartPath, started: time.Now()}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/status", r.handleStatus)
	g.GET("/chart", r.handleChart)
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr serving this router.
// Shut it down via http.Server's Close.
func NewServer(addr string, st *store.Store, chartPath string) *http.Server {
	r := NewRouter(st, chartPath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type statusResp struct {
	PID           int      `json:"pid"`
	UptimeSeconds float64  `json:"uptime_seconds"`
	Samples       int      `json:"samples"`
	LatestTime    *float64 `json:"latest_time,omitempty"`
	LatestKudos   *int64   `json:"latest_kudos,omitempty"`
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleStatus(c *gin.Context) {
	samples, err := r.st.Samples()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	resp := statusResp{
		PID:           os.Getpid(),
		UptimeSeconds: time.Since(r.started).Seconds(),
		Samples:       len(samples),
	}
	if n := len(samples); n > 0 {
		resp.LatestTime = &samples[n-1].Time
		resp.LatestKudos = &samples[n-1].Kudos
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleChart(c *gin.Context) {
	if _, err := os.Stat(r.chartPath); err != nil {
		c.JSON(http.StatusNotFound, errorResp{Error: "no chart rendered yet"})
		return
	}
	c.File(r.chartPath)
}
